package sessions

import (
	"context"
	"time"
)

// Repo manages persistence of sessions. Implementations must be safe for
// concurrent use and must expire entries after the supplied TTL.
type Repo interface {
	Upsert(ctx context.Context, session *Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}
