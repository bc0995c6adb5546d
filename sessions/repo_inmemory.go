package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/graphgate/graph-gateway/internal/errors"
)

type inMemoryEntry struct {
	session   *Session
	expiresAt time.Time
}

// InMemoryRepo is a thread-safe in-memory implementation of Repo. Entries
// carry an absolute expiry checked lazily on read; suitable for
// single-instance, non-durable operation only.
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]inMemoryEntry
}

// NewInMemoryRepo creates a new in-memory session repository.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		sessions: make(map[string]inMemoryEntry),
	}
}

func (r *InMemoryRepo) Upsert(_ context.Context, session *Session, ttl time.Duration) error {
	if session == nil || session.ID == "" {
		return errors.ErrInvalidRequest
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = inMemoryEntry{
		session:   session.Clone(),
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, errors.ErrInvalidRequest
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(r.sessions, id)
		return nil, errors.ErrSessionNotFound
	}
	return entry.session.Clone(), nil
}

func (r *InMemoryRepo) Delete(_ context.Context, id string) error {
	if id == "" {
		return errors.ErrInvalidRequest
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}
