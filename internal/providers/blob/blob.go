// Package blob defines the capability interface the Cache Synchronizer
// uses to put and delete HTML bodies, plus a production S3-compatible
// implementation and an in-memory fake for tests.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Delete when the key does not exist. Providers
// translate their own not-found signal into this sentinel at the boundary
// so the synchronizer never sees provider-specific error types.
var ErrNotFound = errors.New("blob: object not found")

// Object is what gets uploaded for one publish.
type Object struct {
	Key          string
	Body         []byte
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

// Store is the small capability surface the synchronizer depends on
// (distilled spec §9 "Dynamic dispatch / provider abstraction").
type Store interface {
	Put(ctx context.Context, bucket string, obj Object) error
	Delete(ctx context.Context, bucket, key string) error
}
