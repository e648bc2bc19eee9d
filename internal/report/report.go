// Package report sends a fire-and-forget webhook notification summarizing
// one completed prerender run (distilled spec §7: "reported, not
// retried" — a webhook failure is logged and swallowed, never escalated
// to the job's own exit code). The pooled HTTP client follows the
// teacher's internal/edge/rsclient.RSClient idiom.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lovablehtml/prerender/internal/common/urlutil"
	"github.com/lovablehtml/prerender/pkg/types"
)

// Notifier posts a BatchResult summary to a configured webhook endpoint.
type Notifier struct {
	httpClient *http.Client
	webhookURL string
	logger     *zap.Logger
}

// NewNotifier builds a Notifier bound to one webhook URL. An empty
// webhookURL makes Send a no-op, so callers can construct a Notifier
// unconditionally and let configuration decide whether it does anything.
func NewNotifier(webhookURL string, timeout time.Duration, logger *zap.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := urlutil.NewGuardedTransport()
	transport.MaxIdleConns = 10
	transport.MaxIdleConnsPerHost = 5
	transport.IdleConnTimeout = 30 * time.Second

	return &Notifier{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		webhookURL: webhookURL,
		logger:     logger,
	}
}

// summary is the webhook payload: the BatchResult aggregate counts plus a
// timestamp, omitting the full per-URL Results slice to keep the payload
// small for chat-style webhook consumers.
type summary struct {
	CompletedAt    time.Time `json:"completedAt"`
	URLCount       int       `json:"urlCount"`
	CountRendered  int       `json:"countRendered"`
	CountAnalyzed  int       `json:"countAnalyzed"`
	CountKvSynced  int       `json:"countKvSynced"`
	CountR2Synced  int       `json:"countR2Synced"`
	FailedToRender []string  `json:"failedToRender"`
	FailedToSync   []string  `json:"failedToSync"`
}

// Send posts a summary of result to the configured webhook. Failures are
// logged and returned but are never fatal to the caller's run; callers
// that want strict fire-and-forget semantics can ignore the error.
func (n *Notifier) Send(ctx context.Context, result types.BatchResult, completedAt time.Time) error {
	if n.webhookURL == "" {
		return nil
	}

	payload := summary{
		CompletedAt:    completedAt,
		URLCount:       len(result.Results),
		CountRendered:  result.CountRendered,
		CountAnalyzed:  result.CountAnalyzed,
		CountKvSynced:  result.CountKvSynced,
		CountR2Synced:  result.CountR2Synced,
		FailedToRender: result.FailedToRender,
		FailedToSync:   result.FailedToSync,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("report: failed to marshal webhook payload", zap.Error(err))
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("report: failed to build webhook request", zap.Error(err))
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("report: webhook delivery failed", zap.Error(err))
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("report: webhook returned non-2xx status", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	n.logger.Info("report: webhook delivered", zap.Int("url_count", payload.URLCount))
	return nil
}
