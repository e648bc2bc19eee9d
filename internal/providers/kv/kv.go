// Package kv defines the capability interface the Cache Synchronizer uses
// to read and write index records, plus a Cloudflare Workers KV REST
// client, a Redis-backed alternative, and an in-memory fake for tests.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist, translating
// the KV provider's own not-found signal (distilled spec §6: "a 404-typed
// exception indicates absence") at the boundary.
var ErrNotFound = errors.New("kv: key not found")

// Store is the small capability surface the synchronizer depends on.
type Store interface {
	Get(ctx context.Context, key string) (value string, err error)
	Put(ctx context.Context, key, value string, ttlSeconds int) error
}
