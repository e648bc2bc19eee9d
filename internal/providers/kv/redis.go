package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore is a Redis-backed alternative to the Cloudflare KV REST client,
// grounded on the teacher's internal/common/redis.Client wrapper. Useful for
// local/dev runs and for tests driven against miniredis.
type RedisStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisStore wraps an already-constructed go-redis client.
func NewRedisStore(rdb *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, logger: logger}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis kv get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Put(ctx context.Context, key, value string, ttlSeconds int) error {
	err := s.rdb.Set(ctx, key, value, time.Duration(ttlSeconds)*time.Second).Err()
	if err != nil {
		return fmt.Errorf("redis kv put %s: %w", key, err)
	}
	return nil
}
