// Package hash implements the Hasher & URL Canonicalizer (C1): a SHA-256
// content digest and the canonical KV/blob key builders that make cache
// keys stable under cosmetic URL variation.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/lovablehtml/prerender/pkg/types"
)

// blockedQueryParams is the fixed internal query-param blocklist (distilled
// spec §3/§6). These are stripped before the canonical key is built.
var blockedQueryParams = map[string]struct{}{
	"to_html":              {},
	"cache_invalidate":     {},
	"x-lovablehtml-render": {},
}

// SHA256Hex returns the lowercase hex SHA-256 digest of the UTF-8 bytes of
// html (distilled spec §4.1, invariant 8).
func SHA256Hex(html string) string {
	sum := sha256.Sum256([]byte(html))
	return hex.EncodeToString(sum[:])
}

// SortedQuery builds the canonical query string: drop blocklisted params,
// sort remaining (name, value) pairs by name then value, join without
// re-encoding. Decoded values are compared and joined raw, per distilled
// spec §9 ("the source sorts raw decoded values").
func SortedQuery(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return ""
	}

	type pair struct{ name, value string }
	var pairs []pair
	for name, vals := range values {
		if _, blocked := blockedQueryParams[name]; blocked {
			continue
		}
		for _, v := range vals {
			pairs = append(pairs, pair{name, v})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].name != pairs[j].name {
			return pairs[i].name < pairs[j].name
		}
		return pairs[i].value < pairs[j].value
	})

	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.name+"="+p.value)
	}
	return strings.Join(parts, "&")
}

// CanonicalPath builds urlPath + ("?" + sortedQuery if any), preserving
// trailing slashes as-is.
func CanonicalPath(u *url.URL) string {
	path := u.Path
	query := SortedQuery(u.RawQuery)
	if query == "" {
		return path
	}
	return path + "?" + query
}

// BuildKvKey builds the Index key: "to_html:" + cacheVersion + ":" + host +
// ":" + canonicalPath (distilled spec §3).
func BuildKvKey(u *url.URL) string {
	return "to_html:" + types.CacheVersion + ":" + strings.ToLower(u.Host) + ":" + CanonicalPath(u)
}

var (
	unsafeHostChars = regexp.MustCompile(`[^a-z0-9.-]`)
	unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._/-]`)
	repeatedSlashes = regexp.MustCompile(`/+`)
	isoStrip        = regexp.MustCompile(`[:.]`)
)

func safeHost(host string) string {
	return unsafeHostChars.ReplaceAllString(strings.ToLower(host), "-")
}

func safePath(path string) string {
	p := strings.TrimPrefix(path, "/")
	p = unsafePathChars.ReplaceAllString(p, "-")
	p = repeatedSlashes.ReplaceAllString(p, "/")
	return strings.ReplaceAll(p, "/", "_")
}

// BuildObjectKey builds the Blob key:
// cacheVersion + "/" + safeHost + "/" + (safePath or "root") + "_" +
// digest[0..16] + "_" + timestamp + ".html" (distilled spec §3). now is
// injected so callers control the timestamp component explicitly (keeps
// the function pure and testable; two calls with distinct now values never
// collide — distilled spec §8 invariant 5).
func BuildObjectKey(u *url.URL, digest string, now time.Time) string {
	path := safePath(u.Path)
	if path == "" {
		path = "root"
	}

	digestPrefix := digest
	if len(digestPrefix) > 16 {
		digestPrefix = digestPrefix[:16]
	}

	timestamp := isoStrip.ReplaceAllString(now.UTC().Format(time.RFC3339Nano), "")

	return fmt.Sprintf("%s/%s/%s_%s_%s.html", types.CacheVersion, safeHost(u.Host), path, digestPrefix, timestamp)
}
