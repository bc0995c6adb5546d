package codes

import (
	"context"
	"time"
)

// Repo persists authorization codes and pending authorizations. Consume
// operations are atomic: exactly one caller observes a stored entry, every
// other caller misses.
type Repo interface {
	SavePending(ctx context.Context, pending *PendingAuthorization, ttl time.Duration) error
	ConsumePending(ctx context.Context, sessionID string) (*PendingAuthorization, error)

	SaveCode(ctx context.Context, codeHash string, code *AuthorizationCode, ttl time.Duration) error
	ConsumeCode(ctx context.Context, codeHash string) (*AuthorizationCode, error)
}
