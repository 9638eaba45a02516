package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is a member who may upload once approved.
type User struct {
	ID         string
	AuthUserID string
	Email      string
	Username   string
	Approved   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewUser describes a user to create.
type NewUser struct {
	AuthUserID string
	Email      string
	Username   string
	Approved   bool
}

const userColumns = "id, auth_user_id, email, username, approved, created_at, updated_at"

// CreateUser inserts a user with a fresh UUID. It returns ErrDuplicate when
// the auth id is already registered.
func (s *Store) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	in.AuthUserID = strings.TrimSpace(in.AuthUserID)
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if in.AuthUserID == "" {
		return nil, errors.New("create user: auth user id is required")
	}
	if in.Username == "" {
		return nil, errors.New("create user: username is required")
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	now := s.timestamp()
	user := &User{
		ID:         uuid.NewString(),
		AuthUserID: in.AuthUserID,
		Email:      in.Email,
		Username:   in.Username,
		Approved:   in.Approved,
		CreatedAt:  parseTime(now),
		UpdatedAt:  parseTime(now),
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO users (id, auth_user_id, email, username, approved, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.AuthUserID, user.Email, user.Username, boolToInt(user.Approved), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create user %s: %w", in.AuthUserID, ErrDuplicate)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// UserByAuthID returns the user linked to an authentication identity.
func (s *Store) UserByAuthID(ctx context.Context, authUserID string) (*User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE auth_user_id = ?", strings.TrimSpace(authUserID))
	return scanUser(row)
}

// UserByID returns the user with the internal id.
func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

// SetApproved flips the approval flag for an auth identity.
func (s *Store) SetApproved(ctx context.Context, authUserID string, approved bool) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	res, err := s.execWithRetry(ctx,
		"UPDATE users SET approved = ?, updated_at = ? WHERE auth_user_id = ?",
		boolToInt(approved), s.timestamp(), strings.TrimSpace(authUserID),
	)
	if err != nil {
		return fmt.Errorf("set approval: %w", err)
	}
	return requireOne(res)
}

// ListUsers returns every user ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	var (
		user      User
		approved  int
		createdAt string
		updatedAt string
	)
	err := row.Scan(&user.ID, &user.AuthUserID, &user.Email, &user.Username, &approved, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.Approved = approved != 0
	user.CreatedAt = parseTime(createdAt)
	user.UpdatedAt = parseTime(updatedAt)
	return &user, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
