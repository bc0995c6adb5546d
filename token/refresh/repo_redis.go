package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/graphgate/graph-gateway/internal/errors"
)

const (
	refreshKeyPrefix      = "refresh_token:"
	sessionIndexKeyPrefix = "session_tokens:"
)

// RedisRepo is a Redis-backed implementation of Repo. Token records carry
// their TTL; the per-session index is a set whose expiry is pushed out on
// every save so it outlives the newest token it references.
type RedisRepo struct {
	client *redis.Client
}

// NewRedisRepo creates a Redis refresh token repository.
func NewRedisRepo(client *redis.Client) *RedisRepo {
	return &RedisRepo{client: client}
}

func (r *RedisRepo) Save(ctx context.Context, hash string, record *StoredRefreshToken, ttl time.Duration) error {
	if hash == "" || record == nil {
		return errors.ErrInvalidRequest
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}
	if err := r.client.Set(ctx, refreshKeyPrefix+hash, payload, ttl).Err(); err != nil {
		return err
	}

	indexKey := sessionIndexKeyPrefix + record.SessionID
	if err := r.client.SAdd(ctx, indexKey, hash).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, indexKey, ttl).Err()
}

func (r *RedisRepo) Consume(ctx context.Context, hash string) (*StoredRefreshToken, error) {
	val, err := r.client.GetDel(ctx, refreshKeyPrefix+hash).Result()
	if err == redis.Nil {
		return nil, errors.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	var record StoredRefreshToken
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}

	if err := r.client.SRem(ctx, sessionIndexKeyPrefix+record.SessionID, hash).Err(); err != nil {
		log.Warn().Err(err).Str("session_id", record.SessionID).Msg("failed to prune session token index")
	}
	return &record, nil
}

func (r *RedisRepo) RevokeSession(ctx context.Context, sessionID string) error {
	indexKey := sessionIndexKeyPrefix + sessionID
	hashes, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read session token index: %w", err)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, hash := range hashes {
		keys = append(keys, refreshKeyPrefix+hash)
	}
	keys = append(keys, indexKey)
	return r.client.Del(ctx, keys...).Err()
}
