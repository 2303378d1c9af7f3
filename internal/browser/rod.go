// internal/browser/rod.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/valpere/AdScrapexter/internal/config"
	apperrors "github.com/valpere/AdScrapexter/internal/errors"
	"github.com/valpere/AdScrapexter/internal/utils"
)

// RodEngine implements Engine using go-rod
type RodEngine struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	logger   utils.Logger
}

// NewRodEngine launches Chrome through the rod launcher, or connects to RemoteURL
func NewRodEngine(ctx context.Context, cfg config.BrowserConfig, logger utils.Logger) (*RodEngine, error) {
	controlURL := cfg.RemoteURL
	var l *launcher.Launcher

	if controlURL == "" {
		l = launcher.New().Context(ctx).Headless(cfg.Headless)
		if cfg.ExecPath != "" {
			l = l.Bin(cfg.ExecPath)
		}
		if cfg.UserDataDir != "" {
			l = l.UserDataDir(cfg.UserDataDir)
		}
		for name, value := range LaunchFlags(cfg.NoSandbox) {
			if s, ok := value.(string); ok {
				l = l.Set(flags.Flag(name), s)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	logger.Infof("rod browser connected (headless=%t, remote=%t)", cfg.Headless, cfg.RemoteURL != "")

	return &RodEngine{browser: b, launcher: l, logger: logger}, nil
}

// NewPage opens a tab in a new incognito context
func (e *RodEngine) NewPage(ctx context.Context) (Page, error) {
	incog, err := e.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	pg, err := incog.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = incog.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	if err := (proto.NetworkEnable{}).Call(pg.Context(ctx)); err != nil {
		_ = pg.Close()
		_ = incog.Close()
		return nil, fmt.Errorf("failed to enable network events: %w", err)
	}

	evCtx, stop := context.WithCancel(context.Background())
	p := &rodPage{page: pg, incog: incog, logger: e.logger, stopEvents: stop}

	wait := pg.Context(evCtx).EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) {
			p.notify(ev.Request.URL)
		},
		func(ev *proto.NetworkResponseReceived) {
			p.notify(ev.Response.URL)
			if ev.Type == proto.NetworkResourceTypeDocument && ev.FrameID == pg.FrameID {
				p.mu.Lock()
				p.docURL = ev.Response.URL
				p.docStatus = ev.Response.Status
				p.mu.Unlock()
			}
		},
	)
	go wait()

	return p, nil
}

// Close disconnects and, when it launched Chrome, kills the process
func (e *RodEngine) Close() error {
	err := e.browser.Close()
	if e.launcher != nil {
		e.launcher.Kill()
	}
	return err
}

type rodPage struct {
	page   *rod.Page
	incog  *rod.Browser
	logger utils.Logger

	mu        sync.Mutex
	listener  EventListener
	router    *rod.HijackRouter
	docURL    string
	docStatus int

	stopEvents context.CancelFunc
	closeOnce  sync.Once
}

func (p *rodPage) notify(url string) {
	p.mu.Lock()
	l := p.listener
	p.mu.Unlock()
	if l != nil {
		l(url)
	}
}

func (p *rodPage) SetUserAgent(ctx context.Context, ua, acceptLanguage string) error {
	return p.page.Context(ctx).SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      ua,
		AcceptLanguage: acceptLanguage,
	})
}

func (p *rodPage) SetViewport(ctx context.Context, width, height int) error {
	return p.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
}

func (p *rodPage) SetExtraHeaders(ctx context.Context, headers map[string]string) error {
	pairs := make([]string, 0, len(headers)*2)
	for k, v := range headers {
		pairs = append(pairs, k, v)
	}
	_, err := p.page.Context(ctx).SetExtraHeaders(pairs)
	return err
}

func (p *rodPage) AddScriptOnNewDocument(ctx context.Context, js string) error {
	_, err := p.page.Context(ctx).EvalOnNewDocument(js)
	return err
}

func (p *rodPage) Intercept(ctx context.Context, handler RequestHandler, listener EventListener) error {
	p.mu.Lock()
	p.listener = listener
	p.mu.Unlock()

	if handler == nil {
		return nil
	}

	router := p.page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		req := Request{URL: h.Request.URL().String(), ResourceType: ResourceType(h.Request.Type())}
		if handler(req) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return fmt.Errorf("failed to register request hijack: %w", err)
	}
	go router.Run()

	p.mu.Lock()
	p.router = router
	p.mu.Unlock()
	return nil
}

func (p *rodPage) Navigate(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	p.mu.Lock()
	p.docURL, p.docStatus = "", 0
	p.mu.Unlock()

	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	pg := p.page.Context(navCtx)

	waitIdle := pg.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	if err := pg.Navigate(url); err != nil {
		if navCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrNavigationTimeout, url)
		}
		return nil, apperrors.Wrap(apperrors.KindTransient, err, "navigation failed")
	}
	waitIdle()

	if navCtx.Err() != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNavigationTimeout, url)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := &Response{URL: url, Status: p.docStatus}
	if p.docURL != "" {
		out.URL = p.docURL
	}
	return out, nil
}

func (p *rodPage) Frames(ctx context.Context) ([]Frame, error) {
	res, err := proto.PageGetFrameTree{}.Call(p.page.Context(ctx))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, err, "failed to read frame tree")
	}

	var frames []Frame
	stack := []*proto.PageFrameTree{res.FrameTree}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		frames = append(frames, &rodFrame{page: p, id: n.Frame.ID, parentID: n.Frame.ParentID, url: n.Frame.URL})
		for i := len(n.ChildFrames) - 1; i >= 0; i-- {
			stack = append(stack, n.ChildFrames[i])
		}
	}
	return frames, nil
}

func (p *rodPage) MainFrame() Frame {
	return &rodFrame{page: p, id: p.page.FrameID}
}

func (p *rodPage) Content(ctx context.Context) (string, error) {
	var html string
	err := p.MainFrame().Evaluate(ctx, "document.documentElement ? document.documentElement.outerHTML : ''", &html)
	return html, err
}

func (p *rodPage) Pointer() Pointer {
	return rodPointer{page: p}
}

func (p *rodPage) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		router := p.router
		p.mu.Unlock()
		if router != nil {
			_ = router.Stop()
		}
		p.stopEvents()
		err = p.page.Close()
		if cerr := p.incog.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

type rodFrame struct {
	page     *rodPage
	id       proto.PageFrameID
	parentID proto.PageFrameID
	url      string
}

func (f *rodFrame) ID() string       { return string(f.id) }
func (f *rodFrame) ParentID() string { return string(f.parentID) }
func (f *rodFrame) URL() string      { return f.url }

func (f *rodFrame) Evaluate(ctx context.Context, js string, out any) error {
	pg := f.page.page.Context(ctx)

	world, err := proto.PageCreateIsolatedWorld{FrameID: f.id, WorldName: worldName}.Call(pg)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, err, "evaluate in frame "+f.ID())
	}
	res, err := proto.RuntimeEvaluate{
		Expression:    js,
		ContextID:     world.ExecutionContextID,
		ReturnByValue: true,
		AwaitPromise:  true,
	}.Call(pg)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, err, "evaluate in frame "+f.ID())
	}
	if res.ExceptionDetails != nil {
		return apperrors.Newf(apperrors.KindTransient, "evaluate in frame %s: script exception: %s", f.ID(), res.ExceptionDetails.Text)
	}
	if out == nil || res.Result == nil {
		return nil
	}
	raw, err := res.Result.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode script result: %w", err)
	}
	return json.Unmarshal(raw, out)
}

func (f *rodFrame) Offset(ctx context.Context) (Point, error) {
	if f.parentID == "" {
		return Point{}, nil
	}
	pg := f.page.page.Context(ctx)

	owner, err := proto.DOMGetFrameOwner{FrameID: f.id}.Call(pg)
	if err != nil {
		return Point{}, apperrors.Wrap(apperrors.KindTransient, err, "frame offset")
	}
	box, err := proto.DOMGetBoxModel{BackendNodeID: owner.BackendNodeID}.Call(pg)
	if err != nil {
		return Point{}, apperrors.Wrap(apperrors.KindTransient, err, "frame offset")
	}
	if len(box.Model.Content) < 2 {
		return Point{}, nil
	}
	return Point{X: box.Model.Content[0], Y: box.Model.Content[1]}, nil
}

type rodPointer struct {
	page *rodPage
}

func (r rodPointer) dispatch(ctx context.Context, typ proto.InputDispatchMouseEventType, pt Point) error {
	ev := proto.InputDispatchMouseEvent{Type: typ, X: pt.X, Y: pt.Y}
	if typ != proto.InputDispatchMouseEventTypeMouseMoved {
		ev.Button = proto.InputMouseButtonLeft
		ev.ClickCount = 1
	}
	return ev.Call(r.page.page.Context(ctx))
}

func (r rodPointer) MoveTo(ctx context.Context, pt Point) error {
	return r.dispatch(ctx, proto.InputDispatchMouseEventTypeMouseMoved, pt)
}

func (r rodPointer) Press(ctx context.Context, pt Point) error {
	return r.dispatch(ctx, proto.InputDispatchMouseEventTypeMousePressed, pt)
}

func (r rodPointer) Release(ctx context.Context, pt Point) error {
	return r.dispatch(ctx, proto.InputDispatchMouseEventTypeMouseReleased, pt)
}
