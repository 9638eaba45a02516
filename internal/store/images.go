package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ImageStatus tracks where an image record is in the upload lifecycle.
type ImageStatus string

const (
	// StatusPending rows were reserved before the upload finished.
	StatusPending ImageStatus = "pending"
	// StatusStored rows point at an object that exists in storage.
	StatusStored ImageStatus = "stored"
	// StatusAbandoned rows never produced a stored object.
	StatusAbandoned ImageStatus = "abandoned"
)

// Image is the persisted metadata for one uploaded object.
type Image struct {
	ID         int64
	UserID     string
	StorageKey string
	URL        string
	Status     ImageStatus
	Width      int
	Height     int
	ByteSize   int64
	ErrorCode  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Reservation is the data recorded before an upload starts.
type Reservation struct {
	UserID     string
	StorageKey string
	Width      int
	Height     int
	ByteSize   int64
}

// ListFilter narrows ListImages. Zero values match everything.
type ListFilter struct {
	UserID string
	Status ImageStatus
	Limit  int
}

// Stats summarizes the store for health reporting.
type Stats struct {
	Users         int
	ApprovedUsers int
	Images        map[ImageStatus]int
	StoredBytes   int64
}

const imageColumns = "id, user_id, storage_key, url, status, width, height, byte_size, error_code, created_at, updated_at"

// ReserveImage records a pending image row for an upload about to start.
func (s *Store) ReserveImage(ctx context.Context, in Reservation) (*Image, error) {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.StorageKey) == "" {
		return nil, errors.New("reserve image: user id and storage key are required")
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO images (user_id, storage_key, status, width, height, byte_size, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.UserID, in.StorageKey, StatusPending, in.Width, in.Height, in.ByteSize, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("reserve image %s: %w", in.StorageKey, ErrDuplicate)
		}
		return nil, fmt.Errorf("reserve image: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reserve image: last insert id: %w", err)
	}
	return &Image{
		ID:         id,
		UserID:     in.UserID,
		StorageKey: in.StorageKey,
		Status:     StatusPending,
		Width:      in.Width,
		Height:     in.Height,
		ByteSize:   in.ByteSize,
		CreatedAt:  parseTime(now),
		UpdatedAt:  parseTime(now),
	}, nil
}

// CompleteImage promotes a pending row to stored with its public URL.
func (s *Store) CompleteImage(ctx context.Context, id int64, url string) error {
	return s.settle(ctx, id, StatusStored, url, "")
}

// AbandonImage marks a pending row as never stored, recording why.
func (s *Store) AbandonImage(ctx context.Context, id int64, code string) error {
	return s.settle(ctx, id, StatusAbandoned, "", code)
}

func (s *Store) settle(ctx context.Context, id int64, status ImageStatus, url, code string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.execWithRetry(ctx,
		`UPDATE images SET status = ?, url = NULLIF(?, ''), error_code = NULLIF(?, ''), updated_at = ?
		 WHERE id = ? AND status = ?`,
		status, url, code, s.timestamp(), id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("%s image %d: %w", status, id, err)
	}
	if err := requireOne(res); err != nil {
		if _, lookupErr := s.imageByID(ctx, id); lookupErr == nil {
			return fmt.Errorf("%s image %d: %w", status, id, ErrNotPending)
		}
		return fmt.Errorf("%s image %d: %w", status, id, err)
	}
	return nil
}

// StalePending returns up to limit pending rows created before cutoff,
// oldest first.
func (s *Store) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]*Image, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+imageColumns+" FROM images WHERE status = ? AND created_at < ? ORDER BY created_at, id LIMIT ?",
		StatusPending, formatTime(cutoff), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale pending: %w", err)
	}
	return collectImages(rows)
}

// ListImages returns images newest first.
func (s *Store) ListImages(ctx context.Context, filter ListFilter) ([]*Image, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	query := "SELECT " + imageColumns + " FROM images"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return collectImages(rows)
}

// ImageByID returns a single image row.
func (s *Store) ImageByID(ctx context.Context, id int64) (*Image, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.imageByID(ctx, id)
}

func (s *Store) imageByID(ctx context.Context, id int64) (*Image, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+imageColumns+" FROM images WHERE id = ?", id)
	return scanImage(row)
}

// Stats counts users and images.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	stats := Stats{Images: map[ImageStatus]int{}}
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1), COALESCE(SUM(approved), 0) FROM users",
	).Scan(&stats.Users, &stats.ApprovedUsers)
	if err != nil {
		return Stats{}, fmt.Errorf("count users: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(1), COALESCE(SUM(CASE WHEN status = 'stored' THEN byte_size ELSE 0 END), 0) FROM images GROUP BY status",
	)
	if err != nil {
		return Stats{}, fmt.Errorf("count images: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status ImageStatus
			count  int
			bytes  int64
		)
		if err := rows.Scan(&status, &count, &bytes); err != nil {
			return Stats{}, fmt.Errorf("scan image counts: %w", err)
		}
		stats.Images[status] = count
		stats.StoredBytes += bytes
	}
	return stats, rows.Err()
}

func collectImages(rows *sql.Rows) ([]*Image, error) {
	defer rows.Close()
	var images []*Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func scanImage(row scanner) (*Image, error) {
	var (
		img       Image
		url       sql.NullString
		code      sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&img.ID, &img.UserID, &img.StorageKey, &url, &img.Status,
		&img.Width, &img.Height, &img.ByteSize, &code, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan image: %w", err)
	}
	img.URL = url.String
	img.ErrorCode = code.String
	img.CreatedAt = parseTime(createdAt)
	img.UpdatedAt = parseTime(updatedAt)
	return &img, nil
}
