// Package pipeline implements the Pipeline Orchestrator (C5): fixed-size
// concurrent batching over a URL set, one shared browser, per-URL
// Render → Analyze → Sync sequencing, and result aggregation (distilled
// spec §4.5).
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lovablehtml/prerender/internal/seo"
	"github.com/lovablehtml/prerender/pkg/types"
)

// Options configures one orchestrator run (distilled spec §4.5 "Inputs").
type Options struct {
	Concurrency   int
	UserAgent     string
	SkipCacheSync bool
	Accept        string
}

// Renderer is the capability the orchestrator needs from C3; satisfied by
// *render.Driver in production and by a fake in tests.
type Renderer interface {
	Render(ctx context.Context, target types.RenderTarget, userAgent string) types.RenderOutcome
}

// Syncer is the capability the orchestrator needs from C4; satisfied by
// *cachesync.Synchronizer in production and by a fake in tests.
type Syncer interface {
	Sync(ctx context.Context, finalURL, html string, seo types.SEOAnalysis, userAgent, accept string) types.SyncResult
}

// MetricsRecorder is the capability the orchestrator needs from the
// metrics Collector; satisfied by *metrics.Collector in production, left
// nil (and skipped) when metrics are disabled.
type MetricsRecorder interface {
	RecordRender(reason string, durationSeconds float64)
	RecordSync(target string, ok bool)
	SetInFlight(n int)
	RecordBatch(size int)
}

// Orchestrator partitions a URL set into batches of Concurrency, runs each
// batch concurrently with a hard barrier before the next, and aggregates
// per-URL outcomes into a BatchResult.
type Orchestrator struct {
	driver       Renderer
	synchronizer Syncer
	logger       *zap.Logger
	metrics      MetricsRecorder
}

// New constructs an Orchestrator bound to one render driver and one cache
// synchronizer.
func New(driver Renderer, synchronizer Syncer, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{driver: driver, synchronizer: synchronizer, logger: logger}
}

// WithMetrics attaches a metrics recorder, returning the orchestrator for
// chaining. Metrics collection stays entirely optional: an Orchestrator with
// a nil recorder behaves exactly as before.
func (o *Orchestrator) WithMetrics(m MetricsRecorder) *Orchestrator {
	o.metrics = m
	return o
}

// Run drives every URL in urls through Render → Analyze → Sync, batching
// by opts.Concurrency with a strict barrier between batches (distilled
// spec §4.5, §5 "Scheduling model").
func (o *Orchestrator) Run(ctx context.Context, urls []string, opts Options) types.BatchResult {
	n := opts.Concurrency
	if n < 1 {
		n = 1
	}

	result := types.BatchResult{
		FailedToRender: []string{},
		FailedToSync:   []string{},
		Results:        make([]types.PipelineResult, 0, len(urls)),
	}

	for start := 0; start < len(urls); start += n {
		end := start + n
		if end > len(urls) {
			end = len(urls)
		}
		batch := urls[start:end]

		if o.metrics != nil {
			o.metrics.SetInFlight(len(batch))
		}

		batchResults := make([]types.PipelineResult, len(batch))
		var wg sync.WaitGroup
		for i, u := range batch {
			wg.Add(1)
			go func(idx int, target string) {
				defer wg.Done()
				batchResults[idx] = o.runOne(ctx, target, opts)
			}(i, u)
		}
		wg.Wait()

		if o.metrics != nil {
			o.metrics.SetInFlight(0)
			o.metrics.RecordBatch(len(batch))
		}

		for _, r := range batchResults {
			o.fold(&result, r, opts.SkipCacheSync)
		}
	}

	return result
}

// runOne drives a single URL through Render → Analyze → Sync. A failure at
// any stage short-circuits the remaining stages (distilled spec §4.5).
func (o *Orchestrator) runOne(ctx context.Context, targetURL string, opts Options) types.PipelineResult {
	requestID := uuid.New().String()
	logger := o.logger.With(zap.String("request_id", requestID), zap.String("url", targetURL))

	pr := types.PipelineResult{URL: targetURL}

	start := time.Now()
	outcome := o.driver.Render(ctx, types.RenderTarget{URL: targetURL}, opts.UserAgent)
	renderSeconds := time.Since(start).Seconds()

	if outcome.Failed {
		logger.Error("pipeline: render failed", zap.String("reason", outcome.FailureReason))
		pr.FailureReason = outcome.FailureReason
		if o.metrics != nil {
			o.metrics.RecordRender("failed", renderSeconds)
		}
		return pr
	}
	pr.IsRendered = true
	logger.Debug("pipeline: render succeeded", zap.String("readiness_reason", string(outcome.ReadinessReason)), zap.Float64("duration_seconds", renderSeconds))
	if o.metrics != nil {
		o.metrics.RecordRender(string(outcome.ReadinessReason), renderSeconds)
	}

	analysis := seo.Analyze(outcome.HTML)
	pr.IsAnalyzed = true

	if opts.SkipCacheSync {
		return pr
	}

	syncResult := o.synchronizer.Sync(ctx, outcome.FinalURL, outcome.HTML, analysis, opts.UserAgent, opts.Accept)
	pr.IsCachedToR2 = syncResult.R2Synced
	pr.IsCachedToKV = syncResult.KVSynced
	if o.metrics != nil {
		o.metrics.RecordSync("blob", syncResult.R2Synced)
		o.metrics.RecordSync("kv", syncResult.KVSynced)
	}

	return pr
}

func (o *Orchestrator) fold(agg *types.BatchResult, pr types.PipelineResult, skipCacheSync bool) {
	agg.Results = append(agg.Results, pr)

	if pr.IsRendered {
		agg.CountRendered++
	} else {
		agg.FailedToRender = append(agg.FailedToRender, pr.URL)
	}

	if pr.IsAnalyzed {
		agg.CountAnalyzed++
	}

	if pr.IsCachedToR2 {
		agg.CountR2Synced++
	}
	if pr.IsCachedToKV {
		agg.CountKvSynced++
	}

	if pr.IsRendered && !skipCacheSync && (!pr.IsCachedToR2 || !pr.IsCachedToKV) {
		agg.FailedToSync = append(agg.FailedToSync, pr.URL)
	}
}
