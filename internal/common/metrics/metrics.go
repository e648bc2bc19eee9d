// Package metrics exposes the prerender job's Prometheus collectors:
// renders by readiness reason, cache sync outcomes, render duration, and
// in-flight concurrency (SPEC_FULL.md §A "Metrics"). Grounded on the
// teacher's internal/render/metrics PrometheusMetrics/MetricsCollector
// split, adapted from fasthttp's RS/queue vocabulary to the pipeline's
// render/analyze/sync vocabulary.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Collector centralizes metrics recording for one prerender job run.
type Collector struct {
	rendersTotal      *prometheus.CounterVec
	renderDuration    prometheus.Histogram
	syncTotal         *prometheus.CounterVec
	inFlight          prometheus.Gauge
	batchesTotal      prometheus.Counter
	urlsPerBatchTotal prometheus.Counter

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// New creates a Collector registered against the default Prometheus
// registerer, namespaced per config.
func New(namespace string, logger *zap.Logger) *Collector {
	return NewWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewWithRegistry creates a Collector against a caller-supplied registerer,
// so tests can avoid colliding with the global default registry.
func NewWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	c := &Collector{logger: logger}

	c.rendersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "renders_total",
		Help:      "Total render attempts by readiness reason (or failure).",
	}, []string{"reason"})

	c.renderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "render_duration_seconds",
		Help:      "Time spent rendering a single URL, navigate to final HTML.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s to 32s
	})

	c.syncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "sync_total",
		Help:      "Total cache sync outcomes by target and result.",
	}, []string{"target", "result"}) // target: blob, kv; result: ok, failed

	c.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "renders_in_flight",
		Help:      "Number of renders currently executing within the active batch.",
	})

	c.batchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "batches_total",
		Help:      "Total number of concurrency batches processed.",
	})

	c.urlsPerBatchTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "urls_processed_total",
		Help:      "Total number of URLs processed across all batches.",
	})

	registerer.MustRegister(
		c.rendersTotal,
		c.renderDuration,
		c.syncTotal,
		c.inFlight,
		c.batchesTotal,
		c.urlsPerBatchTotal,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	c.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Info("prerender metrics initialized", zap.String("namespace", namespace))
	return c
}

// RecordRender records one render attempt. reason is either a
// types.ReadinessReason string on success or "failed" on failure.
func (c *Collector) RecordRender(reason string, durationSeconds float64) {
	c.rendersTotal.WithLabelValues(reason).Inc()
	c.renderDuration.Observe(durationSeconds)
}

// RecordSync records one cache sync outcome for a single provider target.
func (c *Collector) RecordSync(target string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.syncTotal.WithLabelValues(target, result).Inc()
}

// SetInFlight updates the current in-batch concurrency gauge.
func (c *Collector) SetInFlight(n int) {
	c.inFlight.Set(float64(n))
}

// RecordBatch records that one concurrency batch of size n completed.
func (c *Collector) RecordBatch(size int) {
	c.batchesTotal.Inc()
	c.urlsPerBatchTotal.Add(float64(size))
}

// ServeHTTP serves the Prometheus exposition format via fasthttp.
func (c *Collector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	c.httpHandler(ctx)
}
