// Package sitemap discovers candidate URLs from a sitemap.xml (or
// sitemapindex) document, optionally filtering to entries whose <lastmod>
// falls within a recent window (distilled spec §6 "Inputs",
// sitemap_updated_within: 1d,3d,7d,30d,all). Gzip-compressed sitemaps are
// decoded with the teacher's compression library rather than the stdlib
// gzip package, matching internal/edge/cache's choice of klauspost/compress
// for payload decoding.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/lovablehtml/prerender/internal/common/urlutil"
)

// maxSitemapIndexDepth bounds recursion into nested sitemap indexes; real
// sitemap indexes are one level deep, but a misconfigured site could point
// a sitemap index at itself.
const maxSitemapIndexDepth = 3

// urlSet matches <urlset><url><loc>...</loc><lastmod>...</lastmod></url></urlset>.
type urlSet struct {
	XMLName xml.Name  `xml:"urlset"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// sitemapIndex matches <sitemapindex><sitemap><loc>...</loc></sitemap></sitemapindex>.
type sitemapIndex struct {
	XMLName  xml.Name       `xml:"sitemapindex"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type sitemapEntry struct {
	Loc string `xml:"loc"`
}

// Fetcher downloads and parses sitemap documents into a flat URL list.
type Fetcher struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewFetcher builds a Fetcher with a bounded-timeout HTTP client. The
// transport rejects connections to private/reserved IPs since sitemapURL is
// operator-supplied and this is an outbound fetch, not a fixed endpoint.
func NewFetcher(logger *zap.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: urlutil.NewGuardedTransport(),
		},
		logger: logger,
	}
}

// Discover fetches sitemapURL, recursing through sitemap indexes, and
// returns every <loc> whose <lastmod> (when present) falls within window.
// An empty or "all" window disables the lastmod filter entirely; entries
// with no <lastmod> always pass the filter, since absence of a freshness
// signal is not evidence of staleness.
func (f *Fetcher) Discover(ctx context.Context, sitemapURL string, window string) ([]string, error) {
	cutoff, filterByLastmod := cutoffFor(window)
	return f.discover(ctx, sitemapURL, cutoff, filterByLastmod, 0)
}

func (f *Fetcher) discover(ctx context.Context, loc string, cutoff time.Time, filter bool, depth int) ([]string, error) {
	if depth > maxSitemapIndexDepth {
		return nil, fmt.Errorf("sitemap index nesting exceeded %d levels at %s", maxSitemapIndexDepth, loc)
	}

	body, err := f.fetch(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sitemap %s: %w", loc, err)
	}

	if index, ok := tryParseIndex(body); ok {
		f.logger.Debug("sitemap: descending into sitemap index", zap.String("url", loc), zap.Int("children", len(index.Sitemaps)))
		var all []string
		for _, child := range index.Sitemaps {
			childURLs, err := f.discover(ctx, child.Loc, cutoff, filter, depth+1)
			if err != nil {
				f.logger.Warn("sitemap: skipping unreadable child sitemap", zap.String("url", child.Loc), zap.Error(err))
				continue
			}
			all = append(all, childURLs...)
		}
		return all, nil
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap xml: %w", err)
	}

	urls := make([]string, 0, len(set.URLs))
	for _, entry := range set.URLs {
		if entry.Loc == "" {
			continue
		}
		if filter && !withinWindow(entry.LastMod, cutoff) {
			continue
		}
		urls = append(urls, entry.Loc)
	}
	return urls, nil
}

func (f *Fetcher) fetch(ctx context.Context, loc string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid sitemap URL: %w", err)
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if isGzipResponse(resp, loc) {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	return io.ReadAll(reader)
}

func isGzipResponse(resp *http.Response, loc string) bool {
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		return true
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "gzip") {
		return true
	}
	return strings.HasSuffix(loc, ".gz")
}

func tryParseIndex(body []byte) (*sitemapIndex, bool) {
	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err != nil {
		return nil, false
	}
	if len(index.Sitemaps) == 0 {
		return nil, false
	}
	return &index, true
}

// cutoffFor translates the sitemap_updated_within window name into an
// absolute cutoff time, and whether lastmod filtering applies at all.
func cutoffFor(window string) (time.Time, bool) {
	var d time.Duration
	switch window {
	case "1d":
		d = 24 * time.Hour
	case "3d":
		d = 3 * 24 * time.Hour
	case "7d":
		d = 7 * 24 * time.Hour
	case "30d":
		d = 30 * 24 * time.Hour
	default:
		return time.Time{}, false
	}
	return time.Now().Add(-d), true
}

// withinWindow reports whether lastMod is on or after cutoff. An unparsable
// or absent lastMod passes the filter.
func withinWindow(lastMod string, cutoff time.Time) bool {
	if lastMod == "" {
		return true
	}
	t, err := parseLastMod(lastMod)
	if err != nil {
		return true
	}
	return !t.Before(cutoff)
}

func parseLastMod(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized lastmod format: %q", s)
}
