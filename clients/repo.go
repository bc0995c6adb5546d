package clients

import "context"

// Repo persists registered clients. Registrations have no TTL; they live
// until explicitly deleted.
type Repo interface {
	Upsert(ctx context.Context, client *Client) error
	Get(ctx context.Context, clientID string) (*Client, error)
	Delete(ctx context.Context, clientID string) error
}
