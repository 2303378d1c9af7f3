// internal/observer/observer.go

// Package observer watches a page's network traffic for the media
// identifier and decides which requests are aborted.
package observer

import (
	"context"
	"sync"
	"time"

	"github.com/valpere/AdScrapexter/internal/browser"
	"github.com/valpere/AdScrapexter/internal/patterns"
)

// DefaultAbortTypes are the resource classes aborted when none are configured
var DefaultAbortTypes = []browser.ResourceType{browser.ResourceImage, browser.ResourceFont}

// neverAbort lists classes that may carry the identifier
var neverAbort = map[browser.ResourceType]bool{
	browser.ResourceMedia:    true,
	browser.ResourceXHR:      true,
	browser.ResourceFetch:    true,
	browser.ResourceDocument: true,
	browser.ResourceOther:    true,
}

// Observer retains the first identifier seen in traffic
type Observer struct {
	abort map[browser.ResourceType]bool

	mu       sync.Mutex
	id       string
	found    bool
	events   int
	done     chan struct{}
	doneOnce sync.Once
}

// New creates an observer aborting abortTypes, or DefaultAbortTypes when empty
func New(abortTypes ...browser.ResourceType) *Observer {
	if len(abortTypes) == 0 {
		abortTypes = DefaultAbortTypes
	}
	abort := make(map[browser.ResourceType]bool, len(abortTypes))
	for _, rt := range abortTypes {
		if !neverAbort[rt] {
			abort[rt] = true
		}
	}
	return &Observer{abort: abort, done: make(chan struct{})}
}

// Observe classifies one event URL. Only the first match is retained.
func (o *Observer) Observe(eventURL string) (string, bool) {
	o.mu.Lock()
	o.events++
	o.mu.Unlock()

	id, ok := patterns.ObserveURL(eventURL)
	if !ok {
		return "", false
	}

	o.mu.Lock()
	if !o.found {
		o.id, o.found = id, true
	}
	o.mu.Unlock()
	o.doneOnce.Do(func() { close(o.done) })
	return id, true
}

// Identifier returns the retained identifier
func (o *Observer) Identifier() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.id, o.found
}

// Events returns how many events were observed
func (o *Observer) Events() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events
}

// Wait polls every interval until an identifier is found, window elapses
// or ctx ends
func (o *Observer) Wait(ctx context.Context, window, interval time.Duration) (string, bool) {
	if id, ok := o.Identifier(); ok {
		return id, true
	}
	if interval <= 0 {
		interval = window
	}

	deadline := time.NewTimer(window)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-o.done:
			return o.Identifier()
		case <-tick.C:
			if id, ok := o.Identifier(); ok {
				return id, true
			}
		case <-deadline.C:
			return o.Identifier()
		case <-ctx.Done():
			return o.Identifier()
		}
	}
}

// ShouldAbort reports whether a request of class rt is aborted
func (o *Observer) ShouldAbort(rt browser.ResourceType) bool {
	return o.abort[rt]
}

// Attach registers the observer with page. Call before navigating.
func (o *Observer) Attach(ctx context.Context, page browser.Page) error {
	return page.Intercept(ctx,
		func(req browser.Request) bool {
			if o.ShouldAbort(req.ResourceType) {
				return true
			}
			o.Observe(req.URL)
			return false
		},
		func(url string) {
			o.Observe(url)
		},
	)
}
