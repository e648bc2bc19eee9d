package render

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/lovablehtml/prerender/internal/core/readiness"
)

// resourceTypeMap translates CDP resource-type strings to the readiness
// package's resource-type vocabulary (distilled spec §4.2).
var resourceTypeMap = map[network.ResourceType]readiness.ResourceType{
	network.ResourceTypeDocument:   readiness.ResourceDocument,
	network.ResourceTypeScript:     readiness.ResourceScript,
	network.ResourceTypeXHR:        readiness.ResourceXHR,
	network.ResourceTypeFetch:      readiness.ResourceFetch,
	network.ResourceTypeStylesheet: readiness.ResourceStylesheet,
	network.ResourceTypeImage:      readiness.ResourceImage,
	network.ResourceTypeFont:       readiness.ResourceFont,
}

// cdpPage adapts a chromedp tab context to the readiness.Page interface.
// It tracks in-flight requests by CDP request ID so that the "finished" and
// "failed" events (which carry no URL) can still be matched back to the
// resource type and host recorded at "will be sent" time.
type cdpPage struct {
	tabCtx context.Context

	mu       sync.Mutex
	inFlight map[network.RequestID]pendingRequest

	onStarted  func(string, readiness.ResourceType)
	onFinished func(string, readiness.ResourceType)
	onFailed   func(string, readiness.ResourceType)
}

type pendingRequest struct {
	url          string
	resourceType readiness.ResourceType
}

func newCDPPage(tabCtx context.Context) *cdpPage {
	p := &cdpPage{
		tabCtx:   tabCtx,
		inFlight: make(map[network.RequestID]pendingRequest),
	}

	chromedp.ListenTarget(tabCtx, func(event interface{}) {
		switch ev := event.(type) {
		case *network.EventRequestWillBeSent:
			rt, ok := resourceTypeMap[ev.Type]
			if !ok {
				return
			}
			p.mu.Lock()
			p.inFlight[ev.RequestID] = pendingRequest{url: ev.Request.URL, resourceType: rt}
			started := p.onStarted
			p.mu.Unlock()
			if started != nil {
				started(ev.Request.URL, rt)
			}
		case *network.EventLoadingFinished:
			p.complete(ev.RequestID, func() func(string, readiness.ResourceType) {
				p.mu.Lock()
				defer p.mu.Unlock()
				return p.onFinished
			})
		case *network.EventLoadingFailed:
			p.complete(ev.RequestID, func() func(string, readiness.ResourceType) {
				p.mu.Lock()
				defer p.mu.Unlock()
				return p.onFailed
			})
		}
	})

	return p
}

// complete removes id from inFlight and, if it was present, invokes
// handler() to fetch the current callback under lock before calling it —
// OnRequestStarted/Finished/Failed can race with in-flight CDP events from
// the moment the tab starts navigating, since the readiness controller
// only registers its handlers after navigation completes.
func (p *cdpPage) complete(id network.RequestID, handler func() func(string, readiness.ResourceType)) {
	p.mu.Lock()
	req, ok := p.inFlight[id]
	if ok {
		delete(p.inFlight, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	if h := handler(); h != nil {
		h(req.url, req.resourceType)
	}
}

func (p *cdpPage) OnRequestStarted(h func(string, readiness.ResourceType)) {
	p.mu.Lock()
	p.onStarted = h
	p.mu.Unlock()
}

func (p *cdpPage) OnRequestFinished(h func(string, readiness.ResourceType)) {
	p.mu.Lock()
	p.onFinished = h
	p.mu.Unlock()
}

func (p *cdpPage) OnRequestFailed(h func(string, readiness.ResourceType)) {
	p.mu.Lock()
	p.onFailed = h
	p.mu.Unlock()
}

func (p *cdpPage) EvaluateAppSignal(ctx context.Context) (bool, error) {
	var signaled bool
	err := chromedp.Evaluate(
		`(window.prerenderReady === true || window.htmlSnapshot === true)`,
		&signaled,
	).Do(ctx)
	return signaled, err
}

func (p *cdpPage) EvaluateLastDomChange(ctx context.Context) (time.Time, error) {
	var lastChangeMs int64
	err := chromedp.Evaluate(`(window.__lastDomChange || Date.now())`, &lastChangeMs).Do(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(lastChangeMs), nil
}
