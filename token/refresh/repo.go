package refresh

import (
	"context"
	"time"
)

// Repo persists refresh token records keyed by token hash, plus a
// per-session index enabling cascading revocation. Consume is atomic:
// exactly one caller observes a stored record.
type Repo interface {
	Save(ctx context.Context, hash string, record *StoredRefreshToken, ttl time.Duration) error
	Consume(ctx context.Context, hash string) (*StoredRefreshToken, error)
	RevokeSession(ctx context.Context, sessionID string) error
}
