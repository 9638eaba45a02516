// Package approval gates uploads on the member directory. Lookups are cached
// briefly so a burst of uploads does not hit the database for every image,
// while a revoked user is locked out within one TTL.
package approval

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"photoline/internal/faults"
	"photoline/internal/logging"
	"photoline/internal/store"
)

const stage = "authorizing"

// Directory resolves an authentication identity to a member record.
type Directory interface {
	UserByAuthID(ctx context.Context, authUserID string) (*store.User, error)
}

// Gate decides whether an authenticated identity may upload.
type Gate struct {
	dir    Directory
	cache  *expirable.LRU[string, store.User]
	logger *slog.Logger
}

// New returns a Gate over dir. A ttl of zero disables caching.
func New(dir Directory, size int, ttl time.Duration, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = logging.NewNop()
	}
	g := &Gate{dir: dir, logger: logger}
	if ttl > 0 && size > 0 {
		g.cache = expirable.NewLRU[string, store.User](size, nil, ttl)
	}
	return g
}

// Authorize returns the approved member for authUserID. A missing identity
// fails with AUTH-SESSION-001; unknown and unapproved members fail with
// AUTH-USER-001; directory failures fail with UPLOAD-DB-002.
func (g *Gate) Authorize(ctx context.Context, authUserID string) (*store.User, error) {
	authUserID = strings.TrimSpace(authUserID)
	if authUserID == "" {
		return nil, faults.Wrap(faults.AuthSessionRequired, stage, "check session", "no authenticated user", nil)
	}

	user, err := g.lookup(ctx, authUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, faults.Wrap(faults.UserNotApproved, stage, "lookup member", "no member record", nil)
		}
		return nil, faults.Wrap(faults.UserRecordFailed, stage, "lookup member", "", err)
	}
	if !user.Approved {
		g.logger.Info("upload refused for unapproved member",
			logging.String(logging.FieldUserID, user.ID),
			logging.String(logging.FieldEventType, "approval_denied"),
		)
		return nil, faults.Wrap(faults.UserNotApproved, stage, "check approval", "member is awaiting approval", nil)
	}
	return user, nil
}

// Forget drops a cached decision so the next lookup reads the directory.
func (g *Gate) Forget(authUserID string) {
	if g.cache != nil {
		g.cache.Remove(strings.TrimSpace(authUserID))
	}
}

func (g *Gate) lookup(ctx context.Context, authUserID string) (*store.User, error) {
	if g.cache != nil {
		if cached, ok := g.cache.Get(authUserID); ok {
			user := cached
			return &user, nil
		}
	}
	user, err := g.dir.UserByAuthID(ctx, authUserID)
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		g.cache.Add(authUserID, *user)
	}
	return user, nil
}
