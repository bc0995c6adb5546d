package codes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/graphgate/graph-gateway/internal/errors"
)

const (
	pendingKeyPrefix = "pending_auth:"
	codeKeyPrefix    = "auth_code:"
)

// RedisRepo is a Redis-backed implementation of Repo. Consume operations use
// GETDEL so exactly one caller wins even across gateway instances.
type RedisRepo struct {
	client *redis.Client
}

// NewRedisRepo creates a Redis code repository.
func NewRedisRepo(client *redis.Client) *RedisRepo {
	return &RedisRepo{client: client}
}

func (r *RedisRepo) SavePending(ctx context.Context, pending *PendingAuthorization, ttl time.Duration) error {
	if pending == nil || pending.SessionID == "" {
		return errors.ErrInvalidRequest
	}
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal pending authorization: %w", err)
	}
	return r.client.Set(ctx, pendingKeyPrefix+pending.SessionID, payload, ttl).Err()
}

func (r *RedisRepo) ConsumePending(ctx context.Context, sessionID string) (*PendingAuthorization, error) {
	val, err := r.client.GetDel(ctx, pendingKeyPrefix+sessionID).Result()
	if err == redis.Nil {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume pending authorization: %w", err)
	}

	var pending PendingAuthorization
	if err := json.Unmarshal([]byte(val), &pending); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending authorization: %w", err)
	}
	return &pending, nil
}

func (r *RedisRepo) SaveCode(ctx context.Context, codeHash string, code *AuthorizationCode, ttl time.Duration) error {
	if codeHash == "" || code == nil {
		return errors.ErrInvalidRequest
	}
	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}
	return r.client.Set(ctx, codeKeyPrefix+codeHash, payload, ttl).Err()
}

func (r *RedisRepo) ConsumeCode(ctx context.Context, codeHash string) (*AuthorizationCode, error) {
	val, err := r.client.GetDel(ctx, codeKeyPrefix+codeHash).Result()
	if err == redis.Nil {
		return nil, errors.ErrInvalidAuthorizationCode
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	var code AuthorizationCode
	if err := json.Unmarshal([]byte(val), &code); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}
	return &code, nil
}
