// internal/browser/browsertest/fake.go

// Package browsertest provides scriptable in-memory browser pages for tests
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/valpere/AdScrapexter/internal/browser"
)

// Frame is a fake frame whose scripts are answered by Eval
type Frame struct {
	FrameID  string
	Parent   string
	FrameURL string
	Origin   browser.Point

	// Eval returns a JSON-serializable value for js
	Eval func(js string) (any, error)

	mu      sync.Mutex
	scripts []string
}

func (f *Frame) ID() string       { return f.FrameID }
func (f *Frame) ParentID() string { return f.Parent }
func (f *Frame) URL() string      { return f.FrameURL }

func (f *Frame) Evaluate(ctx context.Context, js string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.scripts = append(f.scripts, js)
	f.mu.Unlock()

	if f.Eval == nil {
		return nil
	}
	v, err := f.Eval(js)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *Frame) Offset(ctx context.Context) (browser.Point, error) {
	return f.Origin, nil
}

// Scripts returns every script evaluated in the frame
func (f *Frame) Scripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scripts...)
}

// Page is a fake page. Exported fields configure behavior and must be set
// before the page is used.
type Page struct {
	FrameList []*Frame
	Status    int
	HTML      string

	NavigateErr error
	// NavigateDelay blocks Navigate until it elapses or ctx ends
	NavigateDelay time.Duration
	// Traffic is replayed through the interceptor during Navigate
	Traffic []browser.Request
	// OnPress runs after each mouse press and may call Emit
	OnPress func(p *Page, at browser.Point)

	mu         sync.Mutex
	handler    browser.RequestHandler
	listener   browser.EventListener
	userAgent  string
	acceptLang string
	viewport   [2]int
	headers    map[string]string
	initJS     []string
	navigated  []string
	aborted    []string
	moves      []browser.Point
	presses    []browser.Point
	releases   []browser.Point
	closed     int
}

// Emit delivers url to the registered event listener
func (p *Page) Emit(url string) {
	p.mu.Lock()
	l := p.listener
	p.mu.Unlock()
	if l != nil {
		l(url)
	}
}

func (p *Page) SetUserAgent(ctx context.Context, ua, acceptLanguage string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userAgent, p.acceptLang = ua, acceptLanguage
	return nil
}

func (p *Page) SetViewport(ctx context.Context, width, height int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewport = [2]int{width, height}
	return nil
}

func (p *Page) SetExtraHeaders(ctx context.Context, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.headers = headers
	return nil
}

func (p *Page) AddScriptOnNewDocument(ctx context.Context, js string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initJS = append(p.initJS, js)
	return nil
}

func (p *Page) Intercept(ctx context.Context, handler browser.RequestHandler, listener browser.EventListener) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler, p.listener = handler, listener
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) (*browser.Response, error) {
	p.mu.Lock()
	p.navigated = append(p.navigated, url)
	p.mu.Unlock()

	if p.NavigateDelay > 0 {
		t := time.NewTimer(p.NavigateDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if p.NavigateErr != nil {
		return nil, p.NavigateErr
	}

	for _, req := range p.Traffic {
		p.mu.Lock()
		h := p.handler
		p.mu.Unlock()
		if h != nil && h(req) {
			p.mu.Lock()
			p.aborted = append(p.aborted, req.URL)
			p.mu.Unlock()
			continue
		}
		p.Emit(req.URL)
	}

	status := p.Status
	if status == 0 {
		status = 200
	}
	return &browser.Response{URL: url, Status: status}, nil
}

func (p *Page) Frames(ctx context.Context) ([]browser.Frame, error) {
	out := make([]browser.Frame, len(p.FrameList))
	for i, f := range p.FrameList {
		out[i] = f
	}
	return out, nil
}

func (p *Page) MainFrame() browser.Frame {
	if len(p.FrameList) == 0 {
		p.FrameList = []*Frame{{FrameID: "main"}}
	}
	return p.FrameList[0]
}

func (p *Page) Content(ctx context.Context) (string, error) {
	return p.HTML, nil
}

func (p *Page) Pointer() browser.Pointer {
	return pointer{p}
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

// UserAgent returns the applied user agent and accept-language
func (p *Page) UserAgent() (string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userAgent, p.acceptLang
}

// Viewport returns the applied viewport
func (p *Page) Viewport() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport[0], p.viewport[1]
}

// Headers returns the applied extra headers
func (p *Page) Headers() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.headers
}

// InitScripts returns scripts registered to run on new documents
func (p *Page) InitScripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.initJS...)
}

// Navigated returns every URL passed to Navigate
func (p *Page) Navigated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigated...)
}

// Aborted returns the traffic URLs the interceptor aborted
func (p *Page) Aborted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.aborted...)
}

// Moves returns every pointer move
func (p *Page) Moves() []browser.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Point(nil), p.moves...)
}

// Presses returns every pointer press
func (p *Page) Presses() []browser.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Point(nil), p.presses...)
}

// Releases returns every pointer release
func (p *Page) Releases() []browser.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Point(nil), p.releases...)
}

// Closed reports how many times Close was called
func (p *Page) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type pointer struct {
	p *Page
}

func (pt pointer) MoveTo(ctx context.Context, at browser.Point) error {
	pt.p.mu.Lock()
	defer pt.p.mu.Unlock()
	pt.p.moves = append(pt.p.moves, at)
	return ctx.Err()
}

func (pt pointer) Press(ctx context.Context, at browser.Point) error {
	pt.p.mu.Lock()
	pt.p.presses = append(pt.p.presses, at)
	on := pt.p.OnPress
	pt.p.mu.Unlock()
	if on != nil {
		on(pt.p, at)
	}
	return ctx.Err()
}

func (pt pointer) Release(ctx context.Context, at browser.Point) error {
	pt.p.mu.Lock()
	defer pt.p.mu.Unlock()
	pt.p.releases = append(pt.p.releases, at)
	return ctx.Err()
}

// ErrNoPages is returned once an Engine's page factory is exhausted
var ErrNoPages = errors.New("browsertest: no more pages")

// Engine hands out pages built by NewPageFunc
type Engine struct {
	NewPageFunc func(n int) (*Page, error)

	mu     sync.Mutex
	pages  []*Page
	closed bool
}

func (e *Engine) NewPage(ctx context.Context) (browser.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.NewPageFunc == nil {
		return nil, ErrNoPages
	}
	p, err := e.NewPageFunc(len(e.pages))
	if err != nil {
		return nil, err
	}
	e.pages = append(e.pages, p)
	return p, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Pages returns every page handed out
func (e *Engine) Pages() []*Page {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Page(nil), e.pages...)
}
