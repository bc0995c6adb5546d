package codes

import (
	"context"
	"sync"
	"time"

	"github.com/graphgate/graph-gateway/internal/errors"
)

type pendingEntry struct {
	pending   *PendingAuthorization
	expiresAt time.Time
}

type codeEntry struct {
	code      *AuthorizationCode
	expiresAt time.Time
}

// InMemoryRepo is a map-backed Repo for single-instance deployments and
// tests. Consume operations delete under the write lock, so single use
// holds across goroutines.
type InMemoryRepo struct {
	mu      sync.Mutex
	pending map[string]pendingEntry
	codes   map[string]codeEntry
}

// NewInMemoryRepo creates an empty in-memory code repository.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		pending: make(map[string]pendingEntry),
		codes:   make(map[string]codeEntry),
	}
}

func (r *InMemoryRepo) SavePending(_ context.Context, pending *PendingAuthorization, ttl time.Duration) error {
	if pending == nil || pending.SessionID == "" {
		return errors.ErrInvalidRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *pending
	r.pending[pending.SessionID] = pendingEntry{pending: &stored, expiresAt: NowTimeFunc().Add(ttl)}
	return nil
}

func (r *InMemoryRepo) ConsumePending(_ context.Context, sessionID string) (*PendingAuthorization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.pending[sessionID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	delete(r.pending, sessionID)
	if NowTimeFunc().After(entry.expiresAt) {
		return nil, errors.ErrNotFound
	}
	return entry.pending, nil
}

func (r *InMemoryRepo) SaveCode(_ context.Context, codeHash string, code *AuthorizationCode, ttl time.Duration) error {
	if codeHash == "" || code == nil {
		return errors.ErrInvalidRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *code
	r.codes[codeHash] = codeEntry{code: &stored, expiresAt: NowTimeFunc().Add(ttl)}
	return nil
}

func (r *InMemoryRepo) ConsumeCode(_ context.Context, codeHash string) (*AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.codes[codeHash]
	if !ok {
		return nil, errors.ErrInvalidAuthorizationCode
	}
	delete(r.codes, codeHash)
	if NowTimeFunc().After(entry.expiresAt) {
		return nil, errors.ErrInvalidAuthorizationCode
	}
	return entry.code, nil
}
