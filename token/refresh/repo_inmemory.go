package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/graphgate/graph-gateway/internal/errors"
)

type tokenEntry struct {
	record    *StoredRefreshToken
	expiresAt time.Time
}

// InMemoryRepo is a map-backed Repo for single-instance deployments and
// tests.
type InMemoryRepo struct {
	mu           sync.Mutex
	tokens       map[string]tokenEntry
	sessionIndex map[string]map[string]struct{}
}

// NewInMemoryRepo creates an empty in-memory refresh token repository.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		tokens:       make(map[string]tokenEntry),
		sessionIndex: make(map[string]map[string]struct{}),
	}
}

func (r *InMemoryRepo) Save(_ context.Context, hash string, record *StoredRefreshToken, ttl time.Duration) error {
	if hash == "" || record == nil {
		return errors.ErrInvalidRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *record
	r.tokens[hash] = tokenEntry{record: &stored, expiresAt: NowTimeFunc().Add(ttl)}

	index, ok := r.sessionIndex[record.SessionID]
	if !ok {
		index = make(map[string]struct{})
		r.sessionIndex[record.SessionID] = index
	}
	index[hash] = struct{}{}
	return nil
}

func (r *InMemoryRepo) Consume(_ context.Context, hash string) (*StoredRefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.tokens[hash]
	if !ok {
		return nil, errors.ErrInvalidRefreshToken
	}
	delete(r.tokens, hash)
	r.removeFromIndex(entry.record.SessionID, hash)

	if NowTimeFunc().After(entry.expiresAt) {
		return nil, errors.ErrInvalidRefreshToken
	}
	return entry.record, nil
}

func (r *InMemoryRepo) RevokeSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash := range r.sessionIndex[sessionID] {
		delete(r.tokens, hash)
	}
	delete(r.sessionIndex, sessionID)
	return nil
}

func (r *InMemoryRepo) removeFromIndex(sessionID, hash string) {
	index, ok := r.sessionIndex[sessionID]
	if !ok {
		return
	}
	delete(index, hash)
	if len(index) == 0 {
		delete(r.sessionIndex, sessionID)
	}
}
