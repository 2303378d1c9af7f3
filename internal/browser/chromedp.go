// internal/browser/chromedp.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/valpere/AdScrapexter/internal/config"
	apperrors "github.com/valpere/AdScrapexter/internal/errors"
	"github.com/valpere/AdScrapexter/internal/utils"
)

// worldName labels the isolated worlds extraction scripts run in
const worldName = "adscrapexter"

// ChromeEngine implements Engine using chromedp
type ChromeEngine struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        utils.Logger
}

// NewChromeEngine launches Chrome, or attaches to RemoteURL when set
func NewChromeEngine(ctx context.Context, cfg config.BrowserConfig, logger utils.Logger) (*ChromeEngine, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)

	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		opts = append(opts, chromedp.Flag("headless", cfg.Headless))
		for name, value := range LaunchFlags(cfg.NoSandbox) {
			opts = append(opts, chromedp.Flag(name, value))
		}
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		if cfg.UserDataDir != "" {
			opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Infof("chromedp browser started (headless=%t, remote=%t)", cfg.Headless, cfg.RemoteURL != "")

	return &ChromeEngine{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
	}, nil
}

// NewPage opens a tab in a new browser context
func (e *ChromeEngine) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(e.browserCtx, chromedp.WithNewBrowserContext())

	p := &chromePage{
		ctx:    tabCtx,
		cancel: cancel,
		logger: e.logger,
		idle:   make(chan struct{}),
	}
	chromedp.ListenTarget(tabCtx, p.onEvent)

	var tree *page.FrameTree
	err := p.run(ctx,
		network.Enable(),
		page.Enable(),
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			tree, err = page.GetFrameTree().Do(ctx)
			return err
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	p.mu.Lock()
	p.mainID = tree.Frame.ID
	p.mu.Unlock()

	return p, nil
}

// Close shuts the browser down
func (e *ChromeEngine) Close() error {
	e.browserCancel()
	e.allocCancel()
	return nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger utils.Logger

	mu        sync.Mutex
	mainID    cdp.FrameID
	handler   RequestHandler
	listener  EventListener
	idle      chan struct{}
	idleArmed bool
	idleDone  bool

	closeOnce sync.Once
}

// run executes actions on the tab while honoring the caller's ctx
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(rctx, actions...)
}

func (p *chromePage) onEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *fetch.EventRequestPaused:
		// Commands may not be issued from the listener goroutine
		go p.resolvePaused(ev)
	case *network.EventRequestWillBeSent:
		p.notify(ev.Request.URL)
	case *network.EventResponseReceived:
		p.notify(ev.Response.URL)
	case *page.EventLifecycleEvent:
		p.onLifecycle(ev.FrameID, ev.Name)
	}
}

func (p *chromePage) notify(url string) {
	p.mu.Lock()
	l := p.listener
	p.mu.Unlock()
	if l != nil {
		l(url)
	}
}

func (p *chromePage) onLifecycle(frameID cdp.FrameID, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if frameID != p.mainID {
		return
	}
	switch name {
	case "init":
		p.idleArmed = true
	case "networkAlmostIdle":
		if p.idleArmed && !p.idleDone {
			p.idleDone = true
			close(p.idle)
		}
	}
}

func (p *chromePage) resolvePaused(ev *fetch.EventRequestPaused) {
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return
	}
	ctx := cdp.WithExecutor(p.ctx, c.Target)

	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()

	var err error
	if h != nil && h(Request{URL: ev.Request.URL, ResourceType: ResourceType(ev.ResourceType)}) {
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
	} else {
		err = fetch.ContinueRequest(ev.RequestID).Do(ctx)
	}
	if err != nil && p.ctx.Err() == nil {
		p.logger.Debugf("failed to resolve paused request: %v", err)
	}
}

func (p *chromePage) SetUserAgent(ctx context.Context, ua, acceptLanguage string) error {
	return p.run(ctx, emulation.SetUserAgentOverride(ua).WithAcceptLanguage(acceptLanguage))
}

func (p *chromePage) SetViewport(ctx context.Context, width, height int) error {
	return p.run(ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

func (p *chromePage) SetExtraHeaders(ctx context.Context, headers map[string]string) error {
	h := make(network.Headers, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	return p.run(ctx, network.SetExtraHTTPHeaders(h))
}

func (p *chromePage) AddScriptOnNewDocument(ctx context.Context, js string) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(js).Do(ctx)
		return err
	}))
}

func (p *chromePage) Intercept(ctx context.Context, handler RequestHandler, listener EventListener) error {
	p.mu.Lock()
	p.handler = handler
	p.listener = listener
	p.mu.Unlock()

	if handler == nil {
		return nil
	}
	// No patterns pauses every request
	return p.run(ctx, fetch.Enable())
}

func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	p.mu.Lock()
	p.idle = make(chan struct{})
	p.idleArmed = false
	p.idleDone = false
	idle := p.idle
	p.mu.Unlock()

	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rctx, rcancel := context.WithCancel(p.ctx)
	defer rcancel()
	stop := context.AfterFunc(navCtx, rcancel)
	defer stop()

	resp, err := chromedp.RunResponse(rctx, chromedp.Navigate(url))
	if err != nil {
		if navCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrNavigationTimeout, url)
		}
		return nil, apperrors.Wrap(apperrors.KindTransient, err, "navigation failed")
	}

	select {
	case <-idle:
	case <-navCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNavigationTimeout, url)
	}

	out := &Response{URL: url}
	if resp != nil {
		out.URL = resp.URL
		out.Status = int(resp.Status)
	}
	return out, nil
}

func (p *chromePage) Frames(ctx context.Context) ([]Frame, error) {
	var tree *page.FrameTree
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, err, "failed to read frame tree")
	}

	var frames []Frame
	stack := []*page.FrameTree{tree}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		frames = append(frames, &chromeFrame{page: p, frame: n.Frame})
		for i := len(n.ChildFrames) - 1; i >= 0; i-- {
			stack = append(stack, n.ChildFrames[i])
		}
	}
	return frames, nil
}

func (p *chromePage) MainFrame() Frame {
	p.mu.Lock()
	id := p.mainID
	p.mu.Unlock()
	return &chromeFrame{page: p, frame: &cdp.Frame{ID: id}}
}

func (p *chromePage) Content(ctx context.Context) (string, error) {
	var html string
	err := p.MainFrame().Evaluate(ctx, "document.documentElement ? document.documentElement.outerHTML : ''", &html)
	return html, err
}

func (p *chromePage) Pointer() Pointer {
	return chromePointer{page: p}
}

func (p *chromePage) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = chromedp.Cancel(p.ctx)
		p.cancel()
	})
	return err
}

type chromeFrame struct {
	page  *chromePage
	frame *cdp.Frame
}

func (f *chromeFrame) ID() string       { return string(f.frame.ID) }
func (f *chromeFrame) ParentID() string { return string(f.frame.ParentID) }
func (f *chromeFrame) URL() string      { return f.frame.URL }

func (f *chromeFrame) Evaluate(ctx context.Context, js string, out any) error {
	err := f.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		execID, err := page.CreateIsolatedWorld(f.frame.ID).WithWorldName(worldName).Do(ctx)
		if err != nil {
			return err
		}
		res, exc, err := runtime.Evaluate(js).
			WithContextID(execID).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("script exception: %s", exc.Text)
		}
		if out == nil || res == nil || len(res.Value) == 0 {
			return nil
		}
		return json.Unmarshal(res.Value, out)
	}))
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, err, "evaluate in frame "+f.ID())
	}
	return nil
}

func (f *chromeFrame) Offset(ctx context.Context) (Point, error) {
	if f.frame.ParentID == "" {
		return Point{}, nil
	}
	var pt Point
	err := f.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		backendID, _, err := dom.GetFrameOwner(f.frame.ID).Do(ctx)
		if err != nil {
			return err
		}
		model, err := dom.GetBoxModel().WithBackendNodeID(backendID).Do(ctx)
		if err != nil {
			return err
		}
		if len(model.Content) >= 2 {
			pt = Point{X: model.Content[0], Y: model.Content[1]}
		}
		return nil
	}))
	if err != nil {
		return Point{}, apperrors.Wrap(apperrors.KindTransient, err, "frame offset")
	}
	return pt, nil
}

type chromePointer struct {
	page *chromePage
}

func (c chromePointer) MoveTo(ctx context.Context, pt Point) error {
	return c.page.run(ctx, input.DispatchMouseEvent(input.MouseMoved, pt.X, pt.Y))
}

func (c chromePointer) Press(ctx context.Context, pt Point) error {
	return c.page.run(ctx, input.DispatchMouseEvent(input.MousePressed, pt.X, pt.Y).
		WithButton(input.Left).
		WithClickCount(1))
}

func (c chromePointer) Release(ctx context.Context, pt Point) error {
	return c.page.run(ctx, input.DispatchMouseEvent(input.MouseReleased, pt.X, pt.Y).
		WithButton(input.Left).
		WithClickCount(1))
}
