// internal/scraper/engine.go

// Package scraper drives one work item through a browser page and
// retries it until its requested fields resolve.
package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/valpere/AdScrapexter/internal/antidetect"
	"github.com/valpere/AdScrapexter/internal/browser"
	"github.com/valpere/AdScrapexter/internal/config"
	apperrors "github.com/valpere/AdScrapexter/internal/errors"
	"github.com/valpere/AdScrapexter/internal/extractor"
	"github.com/valpere/AdScrapexter/internal/interact"
	"github.com/valpere/AdScrapexter/internal/observer"
	"github.com/valpere/AdScrapexter/internal/patterns"
	"github.com/valpere/AdScrapexter/internal/utils"
	"github.com/valpere/AdScrapexter/pkg/types"
)

// Page pacing
const (
	preNavigateMin = 1 * time.Second
	preNavigateMax = 2 * time.Second
	settleMin      = 2 * time.Second
	settleMax      = 4 * time.Second
	scrollPauseMin = 300 * time.Millisecond
	scrollPauseMax = 700 * time.Millisecond
	scrollMin      = 600.0
	scrollMax      = 1000.0
)

// PageSource opens isolated pages
type PageSource interface {
	NewPage(ctx context.Context) (browser.Page, error)
}

// Options wires an Engine's collaborators
type Options struct {
	// Mode unified also fetches the video for an item whose link was just found
	Mode           types.Mode
	Extraction     config.ExtractionConfig
	AcceptLanguage string
	Random         *antidetect.Random
	Sleeper        antidetect.Sleeper
	// Limiter is shared by every engine of a process; nil disables limiting
	Limiter *NavigationLimiter
	Logger  utils.Logger
}

// Engine runs a single extraction attempt for one work item
type Engine struct {
	pages         PageSource
	opportunistic bool
	cfg           config.ExtractionConfig
	lang          string
	rng           *antidetect.Random
	sleeper       antidetect.Sleeper
	limiter       *NavigationLimiter
	fingerprinter *antidetect.Fingerprinter
	detector      *antidetect.CaptchaDetector
	extractor     *extractor.Extractor
	locator       *interact.Locator
	simulator     *interact.Simulator
	logger        utils.Logger
}

// NewEngine creates an engine opening pages from pages
func NewEngine(pages PageSource, opts Options) *Engine {
	if opts.Random == nil {
		opts.Random = antidetect.NewRandom(time.Now().UnixNano())
	}
	if opts.Sleeper == nil {
		opts.Sleeper = antidetect.ClockSleeper{}
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}
	if opts.Limiter == nil {
		opts.Limiter = NewNavigationLimiter(0, false)
	}

	return &Engine{
		pages:         pages,
		opportunistic: opts.Mode == "" || opts.Mode == types.ModeUnified,
		cfg:           opts.Extraction,
		lang:          opts.AcceptLanguage,
		rng:           opts.Random,
		sleeper:       opts.Sleeper,
		limiter:       opts.Limiter,
		fingerprinter: antidetect.NewFingerprinter(opts.Random, nil, nil),
		detector:      antidetect.NewCaptchaDetector(),
		extractor:     extractor.New(opts.Extraction.MinFrameSize, opts.Extraction.MaxScopeDepth, opts.Logger),
		locator:       interact.NewLocator(opts.Extraction.MaxScopeDepth, opts.Logger),
		simulator:     interact.NewSimulator(opts.Random, opts.Sleeper),
		logger:        opts.Logger,
	}
}

// Run performs one attempt. Page-level failures become the ERROR record;
// a block signal becomes the BLOCKED record. The page is always closed.
func (e *Engine) Run(ctx context.Context, item types.WorkItem) types.ExtractionRecord {
	log := e.logger.WithField("url", item.SourceURL)

	page, err := e.pages.NewPage(ctx)
	if err != nil {
		log.Errorf("failed to open page: %v", err)
		return types.ErrorRecord(item.Required)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Debugf("page close: %v", err)
		}
	}()

	rec, err := e.visit(ctx, page, item, log)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrBlocked) {
			log.Warnf("blocked: %v", err)
			return types.BlockedRecord()
		}
		log.Warnf("attempt failed: %v", err)
		return types.ErrorRecord(item.Required)
	}
	log.Debugf("attempt finished: %s", rec)
	return rec
}

func (e *Engine) visit(ctx context.Context, page browser.Page, item types.WorkItem, log utils.Logger) (types.ExtractionRecord, error) {
	obs, viewport, err := e.prepare(ctx, page)
	if err != nil {
		return types.ExtractionRecord{}, err
	}

	if err := e.sleeper.Sleep(ctx, e.rng.Between(preNavigateMin, preNavigateMax)); err != nil {
		return types.ExtractionRecord{}, err
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return types.ExtractionRecord{}, err
	}

	resp, err := page.Navigate(ctx, item.SourceURL, e.cfg.NavigationTimeout)
	if err != nil {
		e.limiter.ReportError()
		return types.ExtractionRecord{}, err
	}

	html, err := page.Content(ctx)
	if err != nil {
		return types.ExtractionRecord{}, apperrors.Wrap(apperrors.KindTransient, err, "failed to read page content")
	}
	if reason := e.detector.Detect(resp.Status, html); reason != antidetect.ReasonNone {
		e.limiter.ReportError()
		return types.ExtractionRecord{}, fmt.Errorf("%w: %s", apperrors.ErrBlocked, reason)
	}
	e.limiter.ReportSuccess()

	if err := e.sleeper.Sleep(ctx, e.rng.Between(settleMin, settleMax)); err != nil {
		return types.ExtractionRecord{}, err
	}
	if err := e.scroll(ctx, page); err != nil {
		return types.ExtractionRecord{}, err
	}

	rec := types.NewRecord(item.Required)
	foundLink := false

	if item.Required.NeedsMetadata() {
		frames, err := page.Frames(ctx)
		if err != nil {
			return types.ExtractionRecord{}, apperrors.Wrap(apperrors.KindTransient, err, "failed to list frames")
		}
		blacklist := extractor.BlacklistFromHTML(html)
		p := e.extractor.ExtractAll(ctx, frames, blacklist)
		if p.Link == "" {
			// wrapped click URLs serialized outside any anchor
			if link, ok := patterns.LinkFromMarkup(html); ok {
				p.Link = link
			}
		}
		if p.Link != "" {
			foundLink = rec.Fill(types.FieldLink, patterns.NormalizeLink(p.Link))
		}
		rec.Fill(types.FieldName, p.Name)
		log.Debugf("metadata: name=%q link=%q blacklist=%q", p.Name, p.Link, blacklist)
	}

	// an opportunistic pass never replaces a stored identifier
	if item.Required.NeedsVideo() || (foundLink && e.opportunistic && item.ExistingValue(types.FieldVideoID) == "") {
		e.video(ctx, page, obs, viewport, &rec, e.gateLink(rec, item), log)
	}
	return rec, nil
}

// prepare applies the identity, masking script and observer. It returns
// the viewport it set.
func (e *Engine) prepare(ctx context.Context, page browser.Page) (*observer.Observer, antidetect.Viewport, error) {
	profile := e.fingerprinter.Next()

	if err := page.SetUserAgent(ctx, profile.UserAgent, e.lang); err != nil {
		return nil, antidetect.Viewport{}, apperrors.Wrap(apperrors.KindTransient, err, "failed to set user agent")
	}
	if err := page.SetViewport(ctx, profile.Viewport.Width, profile.Viewport.Height); err != nil {
		return nil, antidetect.Viewport{}, apperrors.Wrap(apperrors.KindTransient, err, "failed to set viewport")
	}
	if e.lang != "" {
		if err := page.SetExtraHeaders(ctx, map[string]string{"Accept-Language": e.lang}); err != nil {
			return nil, antidetect.Viewport{}, apperrors.Wrap(apperrors.KindTransient, err, "failed to set headers")
		}
	}
	if err := page.AddScriptOnNewDocument(ctx, antidetect.MaskScript(e.lang)); err != nil {
		return nil, antidetect.Viewport{}, apperrors.Wrap(apperrors.KindTransient, err, "failed to inject mask script")
	}

	obs := observer.New()
	if err := obs.Attach(ctx, page); err != nil {
		return nil, antidetect.Viewport{}, apperrors.Wrap(apperrors.KindTransient, err, "failed to attach observer")
	}
	return obs, profile.Viewport, nil
}

// scroll moves down a random distance, pauses, then back up half of it
func (e *Engine) scroll(ctx context.Context, page browser.Page) error {
	dist := e.rng.Range(scrollMin, scrollMax)
	main := page.MainFrame()

	if err := main.Evaluate(ctx, fmt.Sprintf("window.scrollBy(0, %.0f)", dist), nil); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, err, "scroll failed")
	}
	if err := e.sleeper.Sleep(ctx, e.rng.Between(scrollPauseMin, scrollPauseMax)); err != nil {
		return err
	}
	if err := main.Evaluate(ctx, fmt.Sprintf("window.scrollBy(0, %.0f)", -dist/2), nil); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, err, "scroll failed")
	}
	return nil
}

// gateLink is the link deciding whether a video may be written: the one
// just resolved, or the stored one when link was not requested
func (e *Engine) gateLink(rec types.ExtractionRecord, item types.WorkItem) string {
	if link := rec.Get(types.FieldLink); link != types.Skip {
		return link
	}
	return item.ExistingValue(types.FieldLink)
}

// video clicks the trigger and waits for the identifier. Items without a
// valid store link never receive one.
func (e *Engine) video(ctx context.Context, page browser.Page, obs *observer.Observer, viewport antidetect.Viewport, rec *types.ExtractionRecord, link string, log utils.Logger) {
	if !patterns.HasValidStoreHost(link) {
		rec.Set(types.FieldVideoID, types.Skip)
		return
	}

	rec.Set(types.FieldVideoID, types.NotFound)

	if id, ok := obs.Identifier(); ok {
		rec.Set(types.FieldVideoID, id)
		return
	}

	target, err := e.locator.Locate(ctx, page, viewport)
	if err != nil {
		log.Debugf("no click target: %v", err)
		return
	}
	if err := e.simulator.Click(ctx, page.Pointer(), target.Point); err != nil {
		log.Debugf("click via %s failed: %v", target.Strategy, err)
		return
	}

	if id, ok := obs.Wait(ctx, e.cfg.ClickWait, e.cfg.PollInterval); ok {
		log.Debugf("identifier %s after %s click", id, target.Strategy)
		rec.Set(types.FieldVideoID, id)
		return
	}
	log.Debugf("no identifier among %d requests after %s click", obs.Events(), target.Strategy)
}
