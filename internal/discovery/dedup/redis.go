package dedup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSeen is a cross-invocation Seen backed by Redis SETNX, letting
// dedup survive process restarts between runs (distilled spec §9, the
// in-memory/Redis split mirrored from the blob/KV provider abstraction).
type RedisSeen struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSeen wraps an already-connected go-redis client. ttl bounds how
// long a fingerprint is remembered; zero means "forever".
func NewRedisSeen(rdb *redis.Client, ttl time.Duration) *RedisSeen {
	return &RedisSeen{rdb: rdb, ttl: ttl}
}

// CheckAndSet atomically records fingerprint if absent, returning whether
// it was already present.
func (r *RedisSeen) CheckAndSet(ctx context.Context, fingerprint uint64) (bool, error) {
	key := "prerender:dedup:" + strconv.FormatUint(fingerprint, 16)
	ok, err := r.rdb.SetNX(ctx, key, "1", r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return !ok, nil
}
