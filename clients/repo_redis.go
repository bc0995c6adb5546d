package clients

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/graphgate/graph-gateway/internal/errors"
)

const clientKeyPrefix = "client:"

// RedisRepo is a Redis-backed implementation of Repo for shared, multi-
// instance deployments. Client records are stored without expiry.
type RedisRepo struct {
	client *redis.Client
}

// NewRedisRepo creates a Redis client repository.
func NewRedisRepo(client *redis.Client) *RedisRepo {
	return &RedisRepo{client: client}
}

func (r *RedisRepo) Upsert(ctx context.Context, client *Client) error {
	if client == nil || client.ClientID == "" {
		return errors.ErrInvalidRequest
	}
	payload, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}
	return r.client.Set(ctx, clientKeyPrefix+client.ClientID, payload, 0).Err()
}

func (r *RedisRepo) Get(ctx context.Context, clientID string) (*Client, error) {
	if clientID == "" {
		return nil, errors.ErrInvalidRequest
	}
	val, err := r.client.Get(ctx, clientKeyPrefix+clientID).Result()
	if err == redis.Nil {
		return nil, errors.ErrInvalidClient
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read client: %w", err)
	}

	var client Client
	if err := json.Unmarshal([]byte(val), &client); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}
	return &client, nil
}

func (r *RedisRepo) Delete(ctx context.Context, clientID string) error {
	if clientID == "" {
		return errors.ErrInvalidRequest
	}
	return r.client.Del(ctx, clientKeyPrefix+clientID).Err()
}
