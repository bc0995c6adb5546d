package sessions

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
	sessionKeyPrefix = "session:"

	// legacySessionKey is the single global key the previous cache scheme
	// wrote every session under. Read-path migration only.
	legacySessionKey = "gateway:session"
)

// RedisRepo is a Redis-backed implementation of Repo for shared, multi-
// instance deployments.
type RedisRepo struct {
	client        *redis.Client
	migrateLegacy bool
}

// NewRedisRepo creates a Redis session repository. When migrateLegacy is
// set, a miss on the per-session key falls back once to the old single-key
// scheme and rewrites the entry under the new key.
func NewRedisRepo(client *redis.Client, migrateLegacy bool) *RedisRepo {
	return &RedisRepo{client: client, migrateLegacy: migrateLegacy}
}

func (r *RedisRepo) Upsert(ctx context.Context, session *Session, ttl time.Duration) error {
	if session == nil || session.ID == "" {
		return errors.ErrInvalidRequest
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return r.client.Set(ctx, sessionKeyPrefix+session.ID, payload, ttl).Err()
}

func (r *RedisRepo) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, errors.ErrInvalidRequest
	}

	val, err := r.client.Get(ctx, sessionKeyPrefix+id).Result()
	if err == redis.Nil {
		if r.migrateLegacy {
			return r.migrateFromLegacyKey(ctx, id)
		}
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisRepo) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.ErrInvalidRequest
	}
	return r.client.Del(ctx, sessionKeyPrefix+id).Err()
}

// migrateFromLegacyKey reads the old single-key cache entry and, if it holds
// the requested session, rewrites it under the per-session key and deletes
// the legacy entry. One-time backward-compatibility shim, not a steady-state
// code path.
func (r *RedisRepo) migrateFromLegacyKey(ctx context.Context, id string) (*Session, error) {
	val, err := r.client.Get(ctx, legacySessionKey).Result()
	if err == redis.Nil {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy session key: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal legacy session: %w", err)
	}
	if session.ID != id {
		return nil, errors.ErrSessionNotFound
	}

	ttl, err := r.client.TTL(ctx, legacySessionKey).Result()
	if err != nil || ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+id, val, ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to migrate legacy session: %w", err)
	}
	if err := r.client.Del(ctx, legacySessionKey).Err(); err != nil {
		log.Warn().Err(err).Msg("failed to delete legacy session key after migration")
	}

	log.Info().Str("session_id", id).Msg("migrated session from legacy cache key")
	return &session, nil
}
