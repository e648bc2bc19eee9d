// Command prerender drives one batch prerendering job: discover URLs
// (explicit list and/or sitemap), dedup them, render each through a shared
// headless Chrome instance, extract SEO signals, and sync the result to
// blob storage and a KV index (distilled spec §1 overview, §4.5 Pipeline
// Orchestrator). Wiring follows the teacher's cmd/cache-daemon/main.go
// shape: flag-parsed config path, startup logger, reconfigured logger once
// the job config is known, then construct and run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lovablehtml/prerender/internal/common/logger"
	commonmetrics "github.com/lovablehtml/prerender/internal/common/metrics"
	"github.com/lovablehtml/prerender/internal/common/metricsserver"
	"github.com/lovablehtml/prerender/internal/common/requestid"
	"github.com/lovablehtml/prerender/internal/config"
	"github.com/lovablehtml/prerender/internal/core/cachesync"
	"github.com/lovablehtml/prerender/internal/core/pipeline"
	"github.com/lovablehtml/prerender/internal/core/readiness"
	"github.com/lovablehtml/prerender/internal/core/render"
	"github.com/lovablehtml/prerender/internal/discovery/dedup"
	"github.com/lovablehtml/prerender/internal/discovery/sitemap"
	"github.com/lovablehtml/prerender/internal/providers/blob"
	"github.com/lovablehtml/prerender/internal/providers/kv"
	"github.com/lovablehtml/prerender/internal/report"
	"github.com/lovablehtml/prerender/pkg/pattern"
)

func main() {
	configPath := flag.String("c", "configs/example/prerender.yaml", "path to prerender job configuration file")
	jobName := flag.String("job-name", "", "optional human-readable job label, folded into the generated job ID")
	flag.Parse()

	initialLogger, err := logger.NewDefaultLogger()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	initialLogger.Info("starting prerender job", zap.String("config_path", *configPath))

	cfg, err := config.Load(*configPath, initialLogger.Logger)
	if err != nil {
		initialLogger.Fatal("failed to load job config", zap.Error(err))
	}

	dynamicLogger, err := logger.NewLoggerWithStartupOverride(cfg.Logging)
	if err != nil {
		initialLogger.Fatal("failed to create configured logger", zap.Error(err))
	}
	defer dynamicLogger.Sync()
	jobID := requestid.GenerateRequestID(*jobName)
	zapLogger := dynamicLogger.Logger.With(zap.String("job_id", jobID))

	ctx := context.Background()

	urls, err := discoverURLs(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to discover URLs", zap.Error(err))
	}
	if len(urls) == 0 {
		zapLogger.Warn("no URLs discovered, nothing to render")
		os.Exit(0)
	}

	var collector *commonmetrics.Collector
	if cfg.Metrics.Enabled {
		collector = commonmetrics.New(cfg.Metrics.Namespace, zapLogger)
		if _, err := metricsserver.StartMetricsServer(true, cfg.Metrics.Listen, cfg.Metrics.Path, collector, zapLogger); err != nil {
			zapLogger.Fatal("failed to start metrics server", zap.Error(err))
		}
	}

	browser, err := render.NewBrowser(ctx, render.Options{}, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to launch shared browser", zap.Error(err))
	}
	defer browser.Close()

	driver := render.NewDriver(browser, zapLogger, readiness.NewDefaultIgnoredHostSet())

	var synchronizer pipeline.Syncer
	if !cfg.SkipCacheSync {
		synchronizer, err = buildSynchronizer(ctx, cfg, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed to build cache synchronizer", zap.Error(err))
		}
	}

	orchestrator := pipeline.New(driver, synchronizer, zapLogger)
	if collector != nil {
		orchestrator.WithMetrics(collector)
	}

	result := orchestrator.Run(ctx, urls, pipeline.Options{
		Concurrency:   cfg.ResolvedConcurrency,
		UserAgent:     cfg.UserAgent,
		SkipCacheSync: cfg.SkipCacheSync,
		Accept:        cfg.Accept,
	})

	notifier := report.NewNotifier(cfg.Report.WebhookURL, time.Duration(cfg.Report.Timeout), zapLogger)
	if err := notifier.Send(ctx, result, time.Now()); err != nil {
		zapLogger.Warn("report webhook delivery failed", zap.Error(err))
	}

	output, err := json.Marshal(result)
	if err != nil {
		zapLogger.Fatal("failed to marshal batch result", zap.Error(err))
	}
	fmt.Println(string(output))

	zapLogger.Info("prerender job complete",
		zap.Int("rendered", result.CountRendered),
		zap.Int("failed_to_render", len(result.FailedToRender)),
		zap.Int("failed_to_sync", len(result.FailedToSync)))

	if len(result.FailedToRender) == len(urls) && len(urls) > 0 {
		os.Exit(1)
	}
}

// discoverURLs merges the explicit url_list with sitemap discovery (when
// configured) and deduplicates the combined set (distilled spec §6).
func discoverURLs(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]string, error) {
	all := append([]string(nil), cfg.URLList...)

	if cfg.SitemapURL != "" && !cfg.SkipSitemapParsing {
		fetcher := sitemap.NewFetcher(logger)
		discovered, err := fetcher.Discover(ctx, cfg.SitemapURL, cfg.SitemapUpdatedWithin)
		if err != nil {
			return nil, fmt.Errorf("sitemap discovery failed: %w", err)
		}
		logger.Info("sitemap discovery complete", zap.Int("count", len(discovered)))
		all = append(all, discovered...)
	}

	excludePatterns, err := cfg.CompileExcludePatterns()
	if err != nil {
		return nil, fmt.Errorf("failed to compile exclude patterns: %w", err)
	}
	if len(excludePatterns) > 0 {
		all = filterExcluded(all, excludePatterns)
	}

	deduper := dedup.New(dedup.NewMemSeen())
	result, err := deduper.Filter(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("dedup failed: %w", err)
	}
	if len(result.Dropped) > 0 {
		logger.Warn("dropped unparsable URLs during discovery", zap.Int("count", len(result.Dropped)))
	}

	return result.URLs, nil
}

// filterExcluded drops any URL matching at least one compiled exclude
// pattern (distilled spec supplement: "exclude_url_patterns").
func filterExcluded(urls []string, excludes []*pattern.Pattern) []string {
	kept := make([]string, 0, len(urls))
	for _, u := range urls {
		excluded := false
		for _, p := range excludes {
			if p.Match(u) {
				excluded = true
				break
			}
		}
		if !excluded {
			kept = append(kept, u)
		}
	}
	return kept
}

// buildSynchronizer constructs the blob/KV providers and wraps them in a
// Synchronizer, choosing the KV backend per cfg.KV.Backend.
func buildSynchronizer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*cachesync.Synchronizer, error) {
	blobStore, err := blob.NewS3Store(ctx, blob.S3Config{
		AccountID:       cfg.Blob.AccountID,
		AccessKeyID:     cfg.Blob.AccessKeyID,
		SecretAccessKey: cfg.Blob.SecretAccessKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build blob store: %w", err)
	}

	var kvStore kv.Store
	switch cfg.KV.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		kvStore = kv.NewRedisStore(rdb, logger)
	default:
		kvStore = kv.NewCloudflareStore(kv.CloudflareConfig{
			AccountID:   cfg.KV.AccountID,
			APIToken:    cfg.KV.APIToken,
			NamespaceID: cfg.KV.NamespaceID,
		}, logger)
	}

	return cachesync.New(blobStore, kvStore, cfg.Blob.Bucket, int(time.Duration(cfg.CacheTTL).Seconds()), logger), nil
}
