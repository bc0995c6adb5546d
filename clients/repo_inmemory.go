package clients

import (
	"context"
	"sync"

	"github.com/graphgate/graph-gateway/internal/errors"
)

// InMemoryRepo is a map-backed Repo for single-instance deployments and
// tests.
type InMemoryRepo struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewInMemoryRepo creates an empty in-memory client repository.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{clients: make(map[string]*Client)}
}

func (r *InMemoryRepo) Upsert(_ context.Context, client *Client) error {
	if client == nil || client.ClientID == "" {
		return errors.ErrInvalidRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *client
	r.clients[client.ClientID] = &stored
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, clientID string) (*Client, error) {
	if clientID == "" {
		return nil, errors.ErrInvalidRequest
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[clientID]
	if !ok {
		return nil, errors.ErrInvalidClient
	}
	copied := *client
	return &copied, nil
}

func (r *InMemoryRepo) Delete(_ context.Context, clientID string) error {
	if clientID == "" {
		return errors.ErrInvalidRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, clientID)
	return nil
}
