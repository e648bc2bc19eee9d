// Package cachesync implements the Cache Synchronizer (C4): publishes a
// fresh HTML body to a blob store and an index record to a KV store,
// garbage-collects the stale blob the previous index record pointed at,
// and keeps the two stores ordered so a reader never observes a dangling
// index pointer (distilled spec §4.4).
package cachesync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lovablehtml/prerender/internal/core/hash"
	"github.com/lovablehtml/prerender/internal/providers/blob"
	"github.com/lovablehtml/prerender/internal/providers/kv"
	"github.com/lovablehtml/prerender/pkg/types"
)

// Clock abstracts time.Now so BuildObjectKey's timestamp component is
// testable without real wall-clock waits.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Synchronizer wires a blob store and a KV store behind the ordered
// publish-then-invalidate-then-flip algorithm.
type Synchronizer struct {
	blobStore blob.Store
	kvStore   kv.Store
	bucket    string
	cacheTTL  int
	logger    *zap.Logger
	clock     Clock
}

// New constructs a Synchronizer. cacheTTLSeconds is used both as the
// Cache-Control max-age/s-maxage value and the KV record's TTL.
func New(blobStore blob.Store, kvStore kv.Store, bucket string, cacheTTLSeconds int, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		blobStore: blobStore,
		kvStore:   kvStore,
		bucket:    bucket,
		cacheTTL:  cacheTTLSeconds,
		logger:    logger,
		clock:     realClock{},
	}
}

// WithClock overrides the clock used for the blob key's timestamp
// component, for deterministic tests.
func (s *Synchronizer) WithClock(clock Clock) *Synchronizer {
	s.clock = clock
	return s
}

// Sync runs the ordered publish algorithm for one render and returns which
// sides were synced. The targetURL used for key derivation is the final
// URL captured by the render driver (distilled spec §9 open question,
// resolved in favor of the final URL consistently for both keys).
func (s *Synchronizer) Sync(
	ctx context.Context,
	finalURL string,
	html string,
	seo types.SEOAnalysis,
	userAgent string,
	accept string,
) types.SyncResult {
	u, err := url.Parse(finalURL)
	if err != nil {
		s.logger.Error("cache sync: failed to parse final URL", zap.String("url", finalURL), zap.Error(err))
		return types.SyncResult{}
	}

	now := s.clock.Now()
	digest := hash.SHA256Hex(html)
	objectKey := hash.BuildObjectKey(u, digest, now)
	body := []byte(html)

	record := types.IndexRecord{
		URL:           finalURL,
		ObjectKey:     objectKey,
		Digest:        digest,
		CreatedAt:     now.UTC().Format(time.RFC3339),
		ContentType:   types.HTMLContentType,
		ContentLength: len(body),
		CacheVersion:  types.CacheVersion,
		UserAgent:     userAgent,
		Accept:        accept,
	}

	cacheControl := fmt.Sprintf("public, max-age=%d, s-maxage=%d", s.cacheTTL, s.cacheTTL)

	if err := s.blobStore.Put(ctx, s.bucket, blob.Object{
		Key:          objectKey,
		Body:         body,
		ContentType:  types.HTMLContentType,
		CacheControl: cacheControl,
		Metadata:     buildMetadata(record, seo),
	}); err != nil {
		s.logger.Error("cache sync: blob put failed", zap.String("key", objectKey), zap.Error(err))
		return types.SyncResult{}
	}

	kvKey := hash.BuildKvKey(u)

	s.invalidateStaleBlob(ctx, kvKey, objectKey)

	recordJSON, err := json.Marshal(record)
	if err != nil {
		// Marshaling a plain struct of strings/ints cannot fail in practice;
		// treat it as a KV put failure per the same policy.
		s.logger.Error("cache sync: failed to marshal index record", zap.Error(err))
		return types.SyncResult{R2Synced: true}
	}

	if err := s.kvStore.Put(ctx, kvKey, string(recordJSON), s.cacheTTL); err != nil {
		s.logger.Error("cache sync: kv put failed", zap.String("key", kvKey), zap.Error(err))
		return types.SyncResult{R2Synced: true}
	}

	return types.SyncResult{KVSynced: true, R2Synced: true}
}

// invalidateStaleBlob deletes the blob the prior index record pointed at,
// best-effort: every failure is logged and swallowed (distilled spec §4.4
// step 5, invariant 7).
func (s *Synchronizer) invalidateStaleBlob(ctx context.Context, kvKey, newObjectKey string) {
	prior, err := s.kvStore.Get(ctx, kvKey)
	if err != nil {
		if err != kv.ErrNotFound {
			s.logger.Warn("cache sync: kv read for invalidation failed", zap.String("key", kvKey), zap.Error(err))
		}
		return
	}

	var priorRecord types.IndexRecord
	if err := json.Unmarshal([]byte(prior), &priorRecord); err != nil {
		s.logger.Warn("cache sync: prior index record unparsable, skipping invalidation",
			zap.String("key", kvKey), zap.Error(err))
		return
	}

	if priorRecord.ObjectKey == "" || priorRecord.ObjectKey == newObjectKey {
		return
	}

	if err := s.blobStore.Delete(ctx, s.bucket, priorRecord.ObjectKey); err != nil {
		s.logger.Warn("cache sync: stale blob delete failed",
			zap.String("key", priorRecord.ObjectKey), zap.Error(err))
	}
}

// buildMetadata flattens the index record and SEO analysis into a flat
// string map, stringifying booleans/numerics and leaving missing fields
// empty (distilled spec §4.4 step 3).
func buildMetadata(record types.IndexRecord, seo types.SEOAnalysis) map[string]string {
	return map[string]string{
		"url":              record.URL,
		"digest":           record.Digest,
		"createdAt":        record.CreatedAt,
		"cacheVersion":     record.CacheVersion,
		"userAgent":        record.UserAgent,
		"accept":           record.Accept,
		"title":            seo.Title,
		"metaDescription":  seo.MetaDescription,
		"h1Count":          strconv.Itoa(seo.H1Count),
		"hasOpenGraph":     strconv.FormatBool(seo.HasOpenGraph),
		"hasTwitterCard":   strconv.FormatBool(seo.HasTwitterCard),
		"hasViewport":      strconv.FormatBool(seo.HasViewport),
		"isSoft404":        strconv.FormatBool(seo.IsSoft404),
	}
}
