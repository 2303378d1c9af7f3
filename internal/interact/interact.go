// internal/interact/interact.go

// Package interact finds the video trigger on a page and clicks it the
// way a person would.
package interact

import (
	"context"
	_ "embed"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/valpere/AdScrapexter/internal/antidetect"
	"github.com/valpere/AdScrapexter/internal/browser"
	apperrors "github.com/valpere/AdScrapexter/internal/errors"
	"github.com/valpere/AdScrapexter/internal/utils"
)

//go:embed locate.js
var locateJS string

// Strategy names the ladder step that produced a click target
type Strategy string

const (
	StrategyPlayButton     Strategy = "play_button"
	StrategyPlayAttribute  Strategy = "play_attribute"
	StrategyVideoElement   Strategy = "video_element"
	StrategyViewportCenter Strategy = "viewport_center"
)

// FramePrefix marks strategies matched inside a child frame
const FramePrefix = "frame_"

// ErrNoTarget is returned when no ladder step produced a point
var ErrNoTarget = apperrors.New(apperrors.KindNotFound, "no click target")

// Click pacing
const (
	stepPauseMin  = 50 * time.Millisecond
	stepPauseMax  = 150 * time.Millisecond
	preClickMin   = 100 * time.Millisecond
	preClickMax   = 300 * time.Millisecond
	holdMin       = 50 * time.Millisecond
	holdMax       = 150 * time.Millisecond
	clickJitter   = 5.0
	pathWobble    = 5.0
	approachMin   = 100.0
	approachMax   = 300.0
	minMediaSize  = 100
	minPathPoints = 3
	maxPathPoints = 5
)

type selectorGroup struct {
	Strategy  Strategy `json:"strategy"`
	Selectors []string `json:"selectors"`
}

var buttonGroups = []selectorGroup{
	{Strategy: StrategyPlayButton, Selectors: []string{".play-button"}},
	{Strategy: StrategyPlayAttribute, Selectors: []string{`[class*="play" i]`, `[aria-label*="play" i]`}},
}

const mediaSelector = `video, iframe, [id*="video" i]`

type locateOptions struct {
	Mode     string          `json:"mode"`
	Groups   []selectorGroup `json:"groups,omitempty"`
	Media    string          `json:"media,omitempty"`
	MinMedia int             `json:"minMedia"`
	MaxDepth int             `json:"maxDepth"`
}

type locateResult struct {
	Found    bool     `json:"found"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Strategy Strategy `json:"strategy"`
}

// Target is a located click point in page coordinates
type Target struct {
	Point    browser.Point
	Strategy Strategy
	FrameID  string
}

// Scope is one frame on the descent stack
type Scope struct {
	Frame browser.Frame
	Depth int
}

// Locator runs the trigger ladder
type Locator struct {
	maxDepth int
	buttons  string
	media    string
	viewport string
	logger   utils.Logger
}

// NewLocator creates a locator descending at most maxDepth frames and shadow roots
func NewLocator(maxDepth int, logger utils.Logger) *Locator {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	return &Locator{
		maxDepth: maxDepth,
		buttons:  script(locateOptions{Mode: "buttons", Groups: buttonGroups, MaxDepth: maxDepth}),
		media:    script(locateOptions{Mode: "media", Media: mediaSelector, MinMedia: minMediaSize, MaxDepth: maxDepth}),
		viewport: script(locateOptions{Mode: "viewport", MaxDepth: maxDepth}),
		logger:   logger,
	}
}

func script(opts locateOptions) string {
	raw, _ := json.Marshal(opts)
	return "(" + strings.TrimSpace(locateJS) + ")(" + string(raw) + ")"
}

// Locate returns the first target the ladder produces: play button, play
// attribute, the same two inside child frames, a large media element,
// then the viewport center. When the main frame cannot run the script,
// the center of the viewport applied to the page is used.
func (l *Locator) Locate(ctx context.Context, page browser.Page, viewport antidetect.Viewport) (Target, error) {
	main := page.MainFrame()

	if t, ok := l.try(ctx, main, l.buttons); ok {
		return t, nil
	}

	frames, err := page.Frames(ctx)
	if err != nil {
		l.logger.Debugf("frame tree unavailable, skipping frame descent: %v", err)
	} else if t, ok := l.descend(ctx, main.ID(), frames); ok {
		return t, nil
	}

	if t, ok := l.try(ctx, main, l.media); ok {
		return t, nil
	}
	t, ok, evalErr := l.evaluate(ctx, main, l.viewport)
	if ok {
		return t, nil
	}
	if err := ctx.Err(); err != nil {
		return Target{}, err
	}
	if evalErr != nil && viewport.Width > 0 && viewport.Height > 0 {
		return Target{
			Point:    browser.Point{X: float64(viewport.Width) / 2, Y: float64(viewport.Height) / 2},
			Strategy: StrategyViewportCenter,
			FrameID:  main.ID(),
		}, nil
	}
	return Target{}, ErrNoTarget
}

// descend walks child frames depth-first in document order with an
// explicit stack, translating hits into page coordinates
func (l *Locator) descend(ctx context.Context, mainID string, frames []browser.Frame) (Target, bool) {
	children := make(map[string][]browser.Frame)
	for _, f := range frames {
		if f.ID() != mainID {
			children[f.ParentID()] = append(children[f.ParentID()], f)
		}
	}

	var stack []Scope
	push := func(parent string, depth int) {
		kids := children[parent]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, Scope{Frame: kids[i], Depth: depth})
		}
	}
	push(mainID, 1)

	for len(stack) > 0 {
		if ctx.Err() != nil {
			return Target{}, false
		}
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if t, ok := l.try(ctx, s.Frame, l.buttons); ok {
			off, err := s.Frame.Offset(ctx)
			if err != nil {
				l.logger.Debugf("frame %s offset unavailable: %v", s.Frame.ID(), err)
				continue
			}
			t.Point = browser.Point{X: t.Point.X + off.X, Y: t.Point.Y + off.Y}
			t.Strategy = FramePrefix + t.Strategy
			return t, true
		}
		if s.Depth < l.maxDepth {
			push(s.Frame.ID(), s.Depth+1)
		}
	}
	return Target{}, false
}

func (l *Locator) try(ctx context.Context, frame browser.Frame, js string) (Target, bool) {
	t, ok, _ := l.evaluate(ctx, frame, js)
	return t, ok
}

// evaluate runs one locate script; the error is the script failure, if any
func (l *Locator) evaluate(ctx context.Context, frame browser.Frame, js string) (Target, bool, error) {
	var res locateResult
	if err := frame.Evaluate(ctx, js, &res); err != nil {
		l.logger.Debugf("locate in frame %s failed: %v", frame.ID(), err)
		return Target{}, false, err
	}
	if !res.Found {
		return Target{}, false, nil
	}
	return Target{
		Point:    browser.Point{X: res.X, Y: res.Y},
		Strategy: res.Strategy,
		FrameID:  frame.ID(),
	}, true, nil
}

// Path returns the intermediate points of a pointer movement from from to
// to, ending exactly at to. Each point is offset perpendicular to the line
// by an amount that shrinks toward the target.
func Path(rng *antidetect.Random, from, to browser.Point) []browser.Point {
	n := minPathPoints + rng.Intn(maxPathPoints-minPathPoints+1)

	dx, dy := to.X-from.X, to.Y-from.Y
	length := math.Hypot(dx, dy)
	var px, py float64
	if length > 0 {
		px, py = -dy/length, dx/length
	}

	points := make([]browser.Point, 0, n+1)
	for i := 1; i <= n; i++ {
		progress := float64(i) / float64(n+1)
		wobble := rng.Range(-pathWobble, pathWobble) * (1 - progress)
		points = append(points, browser.Point{
			X: from.X + dx*progress + px*wobble,
			Y: from.Y + dy*progress + py*wobble,
		})
	}
	return append(points, to)
}

// Simulator moves and clicks a pointer with randomized pacing
type Simulator struct {
	rng     *antidetect.Random
	sleeper antidetect.Sleeper
}

// NewSimulator creates a simulator drawing from rng and pausing through sleeper
func NewSimulator(rng *antidetect.Random, sleeper antidetect.Sleeper) *Simulator {
	return &Simulator{rng: rng, sleeper: sleeper}
}

// Click approaches target from a random nearby point, pauses, then presses
// and releases with independent jitter
func (s *Simulator) Click(ctx context.Context, ptr browser.Pointer, target browser.Point) error {
	angle := s.rng.Range(0, 2*math.Pi)
	dist := s.rng.Range(approachMin, approachMax)
	from := browser.Point{
		X: math.Max(0, target.X+math.Cos(angle)*dist),
		Y: math.Max(0, target.Y+math.Sin(angle)*dist),
	}

	for _, p := range Path(s.rng, from, target) {
		if err := ptr.MoveTo(ctx, p); err != nil {
			return err
		}
		if err := s.sleeper.Sleep(ctx, s.rng.Between(stepPauseMin, stepPauseMax)); err != nil {
			return err
		}
	}

	if err := s.sleeper.Sleep(ctx, s.rng.Between(preClickMin, preClickMax)); err != nil {
		return err
	}
	if err := ptr.Press(ctx, s.jitter(target)); err != nil {
		return err
	}
	if err := s.sleeper.Sleep(ctx, s.rng.Between(holdMin, holdMax)); err != nil {
		return err
	}
	return ptr.Release(ctx, s.jitter(target))
}

func (s *Simulator) jitter(p browser.Point) browser.Point {
	return browser.Point{
		X: p.X + s.rng.Range(-clickJitter, clickJitter),
		Y: p.Y + s.rng.Range(-clickJitter, clickJitter),
	}
}
