// Package render implements the Render Driver (C3): opens a browser tab,
// installs pre-navigation instrumentation, navigates, invokes the
// Readiness Controller, and captures HTML, status code, final URL, and
// X-Robots-Tag.
package render

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/lovablehtml/prerender/internal/core/readiness"
	"github.com/lovablehtml/prerender/pkg/types"
)

// NavigationTimeoutMultiplier is distilled spec §9's resolution of the
// navigation-timeout ambiguity: navigation gets 2 × HARD_TIMEOUT_MS, the
// 15s budget from distilled §4.2 belongs to the readiness loop alone.
const NavigationTimeoutMultiplier = 2

const internalMarkerHeader = "X-Lovablehtml-Render"

// Driver drives one render through a tab opened from the shared browser.
type Driver struct {
	browser    *Browser
	logger     *zap.Logger
	controller *readiness.Controller
	ignored    *readiness.IgnoredHostSet
}

// NewDriver constructs a Driver bound to the shared browser handle.
func NewDriver(browser *Browser, logger *zap.Logger, ignored *readiness.IgnoredHostSet) *Driver {
	if ignored == nil {
		ignored = readiness.NewDefaultIgnoredHostSet()
	}
	return &Driver{
		browser:    browser,
		logger:     logger,
		controller: readiness.NewController(),
		ignored:    ignored,
	}
}

type captured struct {
	mu         sync.Mutex
	statusCode int
	xRobotsTag string
}

func (c *captured) setFromResponse(status int, headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusCode == 0 {
		c.statusCode = status
		for k, v := range headers {
			if strings.EqualFold(k, "x-robots-tag") {
				c.xRobotsTag = v
			}
		}
	}
}

func (c *captured) snapshot() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCode, c.xRobotsTag
}

// Render performs one render: open tab, instrument, navigate, wait for
// readiness, capture, close. Every exit path closes the tab (distilled
// spec §4.3: "Close the tab on every exit path including failures").
func (d *Driver) Render(ctx context.Context, target types.RenderTarget, userAgent string) types.RenderOutcome {
	targetURL, err := url.Parse(target.URL)
	if err != nil {
		return types.RenderOutcome{Failed: true, FailureReason: fmt.Sprintf("invalid URL: %v", err)}
	}

	tabCtx, tabCancel := d.browser.NewTab()
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	cp := newCDPPage(tabCtx)
	cap := &captured{}

	chromedp.ListenTarget(tabCtx, func(event interface{}) {
		ev, ok := event.(*network.EventResponseReceived)
		if !ok || ev.Type != network.ResourceTypeDocument {
			return
		}
		headers := make(map[string]string)
		for k, v := range ev.Response.Headers {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
		cap.setFromResponse(int(ev.Response.Status), headers)
	})

	navCtx, navCancel := context.WithTimeout(tabCtx, NavigationTimeoutMultiplier*readiness.HardTimeoutMS*time.Millisecond)
	defer navCancel()

	err = chromedp.Run(navCtx,
		network.Enable(),
		page.Enable(),
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(readiness.InstrumentationScript()).Do(ctx)
			return err
		}),
		emulation.SetUserAgentOverride(userAgent),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language":    "en-US,en;q=0.9",
			internalMarkerHeader: "true",
		}),
		chromedp.Navigate(target.URL),
		waitForLoad(),
	)
	if err != nil {
		return types.RenderOutcome{Failed: true, FailureReason: fmt.Sprintf("Failed to navigate to %s", target.URL)}
	}

	reason, err := d.controller.Run(tabCtx, cp, strings.ToLower(targetURL.Host), d.ignored)
	if err != nil {
		return types.RenderOutcome{Failed: true, FailureReason: err.Error()}
	}

	var html string
	if err := chromedp.Run(tabCtx, extractHTML(&html)); err != nil {
		return types.RenderOutcome{Failed: true, FailureReason: err.Error()}
	}

	var finalURL string
	if err := chromedp.Run(tabCtx, chromedp.Location(&finalURL)); err != nil {
		finalURL = target.URL
	}

	statusCode, xRobotsTag := cap.snapshot()

	chromedp.Run(tabCtx, page.Close())

	return types.RenderOutcome{
		HTML:            html,
		StatusCode:      statusCode,
		FinalURL:        finalURL,
		XRobotsTag:      xRobotsTag,
		ReadinessReason: reason,
	}
}

// waitForLoad blocks until the "load" lifecycle event fires, bounded by
// the surrounding context's navigation timeout. The readiness controller
// is only invoked after this completed initial navigation (distilled spec
// §4.2 "Inputs").
func waitForLoad() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		ch := make(chan struct{})
		listenerCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		chromedp.ListenTarget(listenerCtx, func(ev interface{}) {
			if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "load" {
				select {
				case <-ch:
				default:
					close(ch)
				}
			}
		})

		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// extractHTML reads the live DOM-serialized HTML with a short retry, grounded
// on the teacher's dom.GetDocument/GetOuterHTML retry idiom.
func extractHTML(output *string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		var lastErr error
		for attempt := 0; attempt < 3; attempt++ {
			rootNode, err := dom.GetDocument().Do(ctx)
			if err != nil {
				lastErr = err
				time.Sleep(300 * time.Millisecond)
				continue
			}
			html, err := dom.GetOuterHTML().WithNodeID(rootNode.NodeID).Do(ctx)
			if err != nil {
				lastErr = err
				time.Sleep(300 * time.Millisecond)
				continue
			}
			*output = html
			return nil
		}
		return fmt.Errorf("failed to extract HTML after 3 attempts: %w", lastErr)
	}
}
