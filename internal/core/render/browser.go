package render

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Browser is the one shared browser handle the orchestrator owns for the
// lifetime of a batch job (distilled spec §4.5, §5: "one shared browser").
// Each render opens its own tab context from it via NewTab; tabs are
// independent, per the browser contract, and require no locking to create
// (grounded on the teacher's ChromeInstance.GetContext, which spawns a
// fresh chromedp.NewContext scoped to one shared allocator/browser
// context rather than launching a new Chrome process per render).
type Browser struct {
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
}

// Options configures the Chrome process the shared browser launches.
type Options struct {
	ExtraFlags map[string]interface{}
}

// defaultFlags matches the teacher's hardcoded headless-batch flag set
// (internal/render/chrome/instance.go createBrowser).
func defaultFlags() []chromedp.ExecAllocatorOption {
	return []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
	}
}

// NewBrowser launches one Chrome process and returns the shared handle.
func NewBrowser(ctx context.Context, opts Options, logger *zap.Logger) (*Browser, error) {
	flags := defaultFlags()
	for name, value := range opts.ExtraFlags {
		flags = append(flags, chromedp.Flag(name, value))
	}

	allocatorOpts := append(chromedp.DefaultExecAllocatorOptions[:], flags...)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, allocatorOpts...)

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		return nil, fmt.Errorf("failed to start shared browser: %w", err)
	}

	logger.Info("shared browser started")

	return &Browser{
		allocatorCtx:    allocatorCtx,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
	}, nil
}

// NewTab opens a fresh tab context scoped to the shared browser context.
func (b *Browser) NewTab() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(b.browserCtx)
}

// Close shuts down the shared browser and its Chrome process.
func (b *Browser) Close() {
	b.browserCancel()
	b.allocatorCancel()
}
