// Package config loads and validates the job configuration for one
// prerender run: URL sources, render/concurrency knobs, and the blob/KV/
// report provider credentials (distilled spec §6 "Inputs"). Logging,
// Redis, and metrics sections reuse the teacher's generic configtypes
// structs; everything edge-gateway-specific in that package (hosts,
// bypass, sharding, tracking params) has no place here.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"github.com/lovablehtml/prerender/internal/common/configtypes"
	"github.com/lovablehtml/prerender/internal/common/yamlutil"
	"github.com/lovablehtml/prerender/pkg/pattern"
	"github.com/lovablehtml/prerender/pkg/types"
)

// allowedSitemapWindows are the recognized values of SitemapUpdatedWithin
// (distilled spec §6, "1d,3d,7d,30d,all").
var allowedSitemapWindows = map[string]bool{
	"1d": true, "3d": true, "7d": true, "30d": true, "all": true,
}

// BlobConfig carries the R2/S3-compatible object store credentials used
// by the blob provider (C4's blobStore).
type BlobConfig struct {
	AccountID       string `yaml:"account_id"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
}

// KVConfig carries the Cloudflare Workers KV credentials used by the KV
// provider (C4's kvStore). NamespaceID is optional when Redis is used as
// the KV backend instead.
type KVConfig struct {
	AccountID   string `yaml:"account_id,omitempty"`
	APIToken    string `yaml:"api_token,omitempty"`
	NamespaceID string `yaml:"namespace_id,omitempty"`
	Backend     string `yaml:"backend,omitempty"` // "cloudflare" (default) or "redis"
}

// ReportConfig configures the optional fire-and-forget webhook notification
// sent after a run completes (distilled spec §7, "reported, not retried").
type ReportConfig struct {
	WebhookURL string         `yaml:"webhook_url,omitempty"`
	Timeout    types.Duration `yaml:"timeout,omitempty"`
}

// Config is the root configuration for one prerender job invocation.
type Config struct {
	URLList              []string `yaml:"url_list,omitempty"`
	SitemapURL           string   `yaml:"sitemap_url,omitempty"`
	SitemapUpdatedWithin string   `yaml:"sitemap_updated_within,omitempty"`
	SkipSitemapParsing   bool     `yaml:"skip_sitemap_parsing,omitempty"`

	// ExcludeURLPatterns drops discovered URLs matching any pattern before
	// dedup runs. Each entry uses the shared pattern syntax: a bare string
	// is an exact match, "*" wildcards any run of characters, "~" prefixes
	// a case-sensitive regexp, and "~*" a case-insensitive one.
	ExcludeURLPatterns []string `yaml:"exclude_url_patterns,omitempty"`

	UserAgent     string            `yaml:"user_agent"`
	Concurrency   types.Concurrency `yaml:"concurrency"`
	CacheTTL      types.Duration    `yaml:"cache_ttl"`
	SkipCacheSync bool              `yaml:"skip_cache_sync,omitempty"`
	Accept        string            `yaml:"accept,omitempty"`

	Blob   BlobConfig   `yaml:"blob"`
	KV     KVConfig     `yaml:"kv"`
	Report ReportConfig `yaml:"report,omitempty"`

	Redis   configtypes.RedisConfig   `yaml:"redis,omitempty"`
	Logging configtypes.LogConfig     `yaml:"logging"`
	Metrics configtypes.MetricsConfig `yaml:"metrics"`

	// ResolvedConcurrency is Concurrency resolved to a concrete worker
	// count: the literal value, or the gopsutil-derived size when
	// Concurrency is "auto". Set by Load, not part of the YAML surface.
	ResolvedConcurrency int `yaml:"-"`
}

// applyDefaults fills in values the teacher's cache-daemon loader would
// apply at load time, before validation would otherwise reject zero values
// that simply mean "use the default".
func applyDefaults(cfg *Config) {
	if !cfg.Concurrency.Auto && cfg.Concurrency.Fixed == 0 {
		cfg.Concurrency.Fixed = 5
	}
	if time.Duration(cfg.CacheTTL) == 0 {
		cfg.CacheTTL = types.Duration(24 * time.Hour)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; lovablehtml-prerender/1.0; +https://lovablehtml.com/bot)"
	}
	if cfg.SitemapUpdatedWithin == "" {
		cfg.SitemapUpdatedWithin = "all"
	}
	if cfg.KV.Backend == "" {
		cfg.KV.Backend = "cloudflare"
	}

	if !cfg.Logging.Console.Enabled && !cfg.Logging.File.Enabled {
		cfg.Logging.Console.Enabled = true
	}
	if cfg.Logging.Console.Format == "" {
		cfg.Logging.Console.Format = configtypes.LogFormatConsole
	}
	if cfg.Logging.File.Format == "" {
		cfg.Logging.File.Format = configtypes.LogFormatText
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = configtypes.LogLevelInfo
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "prerender"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate checks the loaded configuration for internal consistency
// (distilled spec §6 Inputs, §7 "config errors are fatal, checked before
// any browser launches").
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	if len(c.URLList) == 0 && c.SitemapURL == "" {
		return fmt.Errorf("either url_list or sitemap_url must be specified")
	}

	if c.SitemapURL != "" && c.SkipSitemapParsing {
		return fmt.Errorf("sitemap_url and skip_sitemap_parsing are mutually exclusive")
	}

	if c.SitemapUpdatedWithin != "" && !allowedSitemapWindows[c.SitemapUpdatedWithin] {
		return fmt.Errorf("sitemap_updated_within must be one of 1d, 3d, 7d, 30d, all, got %q", c.SitemapUpdatedWithin)
	}

	if !c.Concurrency.Auto && c.Concurrency.Fixed < 0 {
		return fmt.Errorf("concurrency must be >= 0, got %d", c.Concurrency.Fixed)
	}

	if time.Duration(c.CacheTTL) < 0 {
		return fmt.Errorf("cache_ttl must be >= 0")
	}

	if !c.SkipCacheSync {
		if c.Blob.AccountID == "" || c.Blob.AccessKeyID == "" || c.Blob.SecretAccessKey == "" {
			return fmt.Errorf("blob.account_id, blob.access_key_id, and blob.secret_access_key are required unless skip_cache_sync is set")
		}
		if c.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required unless skip_cache_sync is set")
		}

		switch c.KV.Backend {
		case "", "cloudflare":
			if c.KV.AccountID == "" || c.KV.APIToken == "" || c.KV.NamespaceID == "" {
				return fmt.Errorf("kv.account_id, kv.api_token, and kv.namespace_id are required for the cloudflare KV backend unless skip_cache_sync is set")
			}
		case "redis":
			if c.Redis.Addr == "" {
				return fmt.Errorf("redis.addr is required when kv.backend is redis")
			}
		default:
			return fmt.Errorf("kv.backend must be cloudflare or redis, got %q", c.KV.Backend)
		}
	}

	if c.Report.WebhookURL != "" && !strings.HasPrefix(c.Report.WebhookURL, "http://") && !strings.HasPrefix(c.Report.WebhookURL, "https://") {
		return fmt.Errorf("report.webhook_url must be an http(s) URL, got %q", c.Report.WebhookURL)
	}

	for _, p := range c.ExcludeURLPatterns {
		if _, err := pattern.Compile(p); err != nil {
			return fmt.Errorf("invalid exclude_url_patterns entry %q: %w", p, err)
		}
	}

	return nil
}

// CompileExcludePatterns pre-compiles ExcludeURLPatterns for repeated
// matching during discovery. Validate must have already rejected any
// uncompilable entries, so an error here would indicate a config mutated
// after loading.
func (c *Config) CompileExcludePatterns() ([]*pattern.Pattern, error) {
	compiled := make([]*pattern.Pattern, 0, len(c.ExcludeURLPatterns))
	for _, p := range c.ExcludeURLPatterns {
		cp, err := pattern.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude_url_patterns entry %q: %w", p, err)
		}
		compiled = append(compiled, cp)
	}
	return compiled, nil
}

// Load reads, strictly parses, defaults, and validates a job configuration
// file, in that order.
func Load(path string, logger *zap.Logger) (*Config, error) {
	logger.Info("loading prerender job configuration", zap.String("path", path))

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.ResolvedConcurrency = resolveConcurrency(cfg.Concurrency)

	logger.Info("prerender job configuration loaded",
		zap.Int("url_count", len(cfg.URLList)),
		zap.String("sitemap_url", cfg.SitemapURL),
		zap.Int("concurrency", cfg.ResolvedConcurrency),
		zap.Bool("skip_cache_sync", cfg.SkipCacheSync))

	return &cfg, nil
}

// resolveConcurrency turns a Concurrency config value into a concrete
// worker count, auto-sizing from available RAM when requested.
func resolveConcurrency(c types.Concurrency) int {
	if !c.Auto {
		return c.Fixed
	}
	return autoPoolSize()
}

// autoPoolSize mirrors the teacher's chrome.Config.CalculatePoolSize
// formula: reserve 2GB for the OS, budget ~500MB per headless Chrome tab,
// clamp to a sane [2, 50] range.
func autoPoolSize() int {
	var totalRAMBytes int64
	if v, err := mem.VirtualMemory(); err == nil {
		totalRAMBytes = int64(v.Total)
	} else {
		totalRAMBytes = 8 * 1024 * 1024 * 1024 // 8GB fallback
	}

	const reservedBytes = 2 * 1024 * 1024 * 1024
	const chromeInstanceBytes = 500 * 1024 * 1024

	poolSize := int((totalRAMBytes - reservedBytes) / chromeInstanceBytes)
	if poolSize < 2 {
		poolSize = 2
	}
	if poolSize > 50 {
		poolSize = 50
	}
	return poolSize
}
