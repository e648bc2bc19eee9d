// Package types holds the data model shared across the prerender pipeline:
// render targets and outcomes, readiness reasons, index records, blob
// objects, and the aggregate pipeline result.
package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ReadinessReason is the terminal classification returned by the readiness
// controller for a single render.
type ReadinessReason string

const (
	ReadinessAppSignaled             ReadinessReason = "AppSignaled"
	ReadinessNetworkAndDomStable     ReadinessReason = "NetworkAndDomStable"
	ReadinessNetworkStableDomTimeout ReadinessReason = "NetworkStableDomTimeout"
	ReadinessHardTimeout             ReadinessReason = "HardTimeout"
)

// RenderTarget is a single absolute URL chosen for rendering. Immutable
// once enqueued by the orchestrator.
type RenderTarget struct {
	URL string
}

// RenderOutcome is the result of driving one render through the browser.
// When Failed is true, only FailureReason is meaningful.
type RenderOutcome struct {
	Failed          bool
	HTML            string
	StatusCode      int
	FinalURL        string
	XRobotsTag      string
	ReadinessReason ReadinessReason
	FailureReason   string
}

// IndexRecord is the KV value describing the current blob for a canonical
// URL.
type IndexRecord struct {
	URL           string `json:"url"`
	ObjectKey     string `json:"objectKey"`
	Digest        string `json:"digest"`
	CreatedAt     string `json:"createdAt"`
	ContentType   string `json:"contentType"`
	ContentLength int    `json:"contentLength"`
	CacheVersion  string `json:"cacheVersion"`
	UserAgent     string `json:"userAgent"`
	Accept        string `json:"accept,omitempty"`
}

// CacheVersion is the only supported cache format version.
const CacheVersion = "v1"

// HTMLContentType is the fixed content type written for every cached body.
const HTMLContentType = "text/html; charset=utf-8"

// BlobObject is what gets written to the blob store for one sync.
type BlobObject struct {
	Key          string
	Body         []byte
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

// SyncResult is the outcome of one Cache Synchronizer invocation.
type SyncResult struct {
	KVSynced bool
	R2Synced bool
}

// PipelineResult is the per-URL outcome reported by the orchestrator.
type PipelineResult struct {
	URL           string `json:"url"`
	IsRendered    bool   `json:"isRendered"`
	IsAnalyzed    bool   `json:"isAnalyzed"`
	IsCachedToR2  bool   `json:"isCachedToR2"`
	IsCachedToKV  bool   `json:"isCachedToKV"`
	FailureReason string `json:"failureReason,omitempty"`
}

// BatchResult is the job-level aggregate over every URL in the run.
type BatchResult struct {
	CountRendered  int              `json:"countRendered"`
	CountAnalyzed  int              `json:"countAnalyzed"`
	CountKvSynced  int              `json:"countKvSynced"`
	CountR2Synced  int              `json:"countR2Synced"`
	FailedToRender []string         `json:"failedToRender"`
	FailedToSync   []string         `json:"failedToSync"`
	Results        []PipelineResult `json:"results"`
}

// SEOAnalysis is the mechanically-derived signal set fed into the blob
// metadata map by the Cache Synchronizer. Boolean/numeric fields are
// stringified and missing fields become empty strings at the synchronizer
// boundary (distilled spec §4.4 step 3).
type SEOAnalysis struct {
	Title           string
	MetaDescription string
	H1Count         int
	HasOpenGraph    bool
	HasTwitterCard  bool
	HasViewport     bool
	IsSoft404       bool
}

// Duration wraps time.Duration with extended YAML/JSON parsing support for
// days and weeks, matching the teacher's configuration duration idiom.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for extended duration formats.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := time.ParseDuration(s)
	if err == nil {
		*d = Duration(dur)
		return nil
	}

	dur, err = parseExtendedDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalJSON accepts both numbers (nanoseconds) and strings ("15s", "30d").
func (d *Duration) UnmarshalJSON(data []byte) error {
	var ns int64
	if err := json.Unmarshal(data, &ns); err == nil {
		*d = Duration(ns)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string or number, got %s", string(data))
	}

	dur, err := time.ParseDuration(s)
	if err == nil {
		*d = Duration(dur)
		return nil
	}

	dur, err = parseExtendedDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON implements json.Marshaler for Duration.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Concurrency holds either a literal worker count or the sentinel "auto",
// which defers sizing to a RAM-based calculation at load time (mirrors the
// teacher's chrome.Config.PoolSize string field, which accepts the same
// two shapes for the Chrome tab pool).
type Concurrency struct {
	Auto  bool
	Fixed int
}

// UnmarshalYAML accepts either an integer or the string "auto".
func (c *Concurrency) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case int:
		*c = Concurrency{Fixed: v}
	case string:
		if v != "auto" {
			return fmt.Errorf("concurrency string value must be %q, got %q", "auto", v)
		}
		*c = Concurrency{Auto: true}
	default:
		return fmt.Errorf("concurrency must be an integer or %q", "auto")
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (c Concurrency) MarshalYAML() (interface{}, error) {
	if c.Auto {
		return "auto", nil
	}
	return c.Fixed, nil
}

var extendedDurationPattern = regexp.MustCompile(`^(-?)(\d+(?:\.\d+)?)(d|w)$`)

// parseExtendedDuration parses day ("30d") and week ("2w") suffixed
// durations that time.ParseDuration does not support natively.
func parseExtendedDuration(s string) (time.Duration, error) {
	matches := extendedDurationPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid format, expected format like '30d' or '2w'")
	}

	sign := matches[1]
	value, err := strconv.ParseFloat(matches[2], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value: %w", err)
	}
	if sign == "-" {
		value = -value
	}

	switch matches[3] {
	case "d":
		return time.Duration(value * float64(24*time.Hour)), nil
	case "w":
		return time.Duration(value * float64(7*24*time.Hour)), nil
	default:
		return 0, fmt.Errorf("unsupported suffix %q", matches[3])
	}
}
