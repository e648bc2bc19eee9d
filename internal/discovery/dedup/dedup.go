// Package dedup removes duplicate and cosmetically-different URLs from a
// discovered URL set before the Pipeline Orchestrator renders them, using
// the same xxhash-keyed normalization idiom as the teacher's
// internal/edge/hash.URLNormalizer (minus tracking-param stripping, which
// is edge-gateway specific and out of scope here).
package dedup

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/lovablehtml/prerender/internal/core/hash"
)

// Seen is the capability dedup needs to check and record a fingerprint
// across invocations. MemSeen satisfies it for a single run; a Redis-backed
// implementation lets dedup survive across runs.
type Seen interface {
	// CheckAndSet returns true if fingerprint was already recorded, and
	// records it as seen if it was not.
	CheckAndSet(ctx context.Context, fingerprint uint64) (bool, error)
}

// MemSeen is an in-process, single-run Seen backed by a map.
type MemSeen struct {
	seen map[uint64]struct{}
}

// NewMemSeen constructs an empty in-memory dedup set.
func NewMemSeen() *MemSeen {
	return &MemSeen{seen: make(map[uint64]struct{})}
}

// CheckAndSet never errors; it exists to satisfy Seen.
func (m *MemSeen) CheckAndSet(_ context.Context, fingerprint uint64) (bool, error) {
	if _, ok := m.seen[fingerprint]; ok {
		return true, nil
	}
	m.seen[fingerprint] = struct{}{}
	return false, nil
}

// Dedup normalizes and deduplicates a raw URL list, preserving first-seen
// order. Unparsable URLs are dropped and logged by the caller via the
// returned dropped slice rather than failing the whole batch.
type Dedup struct {
	seen Seen
}

// New constructs a Dedup backed by the given Seen store.
func New(seen Seen) *Dedup {
	return &Dedup{seen: seen}
}

// Result is the outcome of deduplicating one URL list.
type Result struct {
	URLs    []string
	Dropped []string // unparsable input entries
}

// Filter normalizes every URL in raw, fingerprints it with xxhash, and
// keeps only the first occurrence of each fingerprint.
func (d *Dedup) Filter(ctx context.Context, raw []string) (Result, error) {
	result := Result{URLs: make([]string, 0, len(raw))}

	for _, candidate := range raw {
		normalized, err := normalize(candidate)
		if err != nil {
			result.Dropped = append(result.Dropped, candidate)
			continue
		}

		fingerprint := xxhash.Sum64String(normalized)
		alreadySeen, err := d.seen.CheckAndSet(ctx, fingerprint)
		if err != nil {
			return result, fmt.Errorf("dedup store check failed for %s: %w", candidate, err)
		}
		if alreadySeen {
			continue
		}

		result.URLs = append(result.URLs, candidate)
	}

	return result, nil
}

// normalize lowercases scheme and host, strips default ports and fragment,
// and canonicalizes the query string the same way the cache key builder
// does, so two URLs that would resolve to the same cache entry also
// dedup to the same fingerprint.
func normalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Host = strings.TrimSuffix(u.Host, ".")
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	u.RawQuery = hash.SortedQuery(u.RawQuery)

	return u.String(), nil
}
