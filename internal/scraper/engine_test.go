// internal/scraper/engine_test.go
package scraper

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/AdScrapexter/internal/antidetect"
	"github.com/valpere/AdScrapexter/internal/browser"
	"github.com/valpere/AdScrapexter/internal/browser/browsertest"
	"github.com/valpere/AdScrapexter/internal/config"
	"github.com/valpere/AdScrapexter/internal/extractor"
	"github.com/valpere/AdScrapexter/internal/utils"
	"github.com/valpere/AdScrapexter/pkg/types"
)

const (
	sourceURL = "https://adstransparency.google.com/advertiser/AR1/creative/CR1"
	playLink  = "https://play.google.com/store/apps/details?id=com.acme"
	mediaURL  = "https://rr3---sn-abc.googlevideo.com/videoplayback?expire=1&id=0123456789abcdef&itag=18"
	videoID   = "0123456789abcdef"
)

type recordingSleeper struct {
	slept []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return ctx.Err()
}

// adFrame answers the extractor with c and the locator with a play button
// when button is set
func adFrame(id string, c extractor.Candidates, button bool) *browsertest.Frame {
	return &browsertest.Frame{FrameID: id, Eval: func(js string) (any, error) {
		switch {
		case strings.Contains(js, "ochAppName"):
			return c, nil
		case strings.Contains(js, `"mode":"buttons"`) && button:
			return map[string]any{"found": true, "x": 200, "y": 150, "strategy": "play_button"}, nil
		case strings.Contains(js, `"mode":`):
			return map[string]any{"found": false}, nil
		}
		return nil, nil
	}}
}

func acmeCandidates() extractor.Candidates {
	return extractor.Candidates{Marker: []extractor.Candidate{{Text: "Acme", Href: playLink}}}
}

func emitMedia(p *browsertest.Page, _ browser.Point) {
	p.Emit(mediaURL)
}

func testExtraction() config.ExtractionConfig {
	cfg := config.DefaultConfig().Extraction
	cfg.ClickWait = 20 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	return cfg
}

func newTestEngine(page *browsertest.Page, mode types.Mode) (*Engine, *browsertest.Engine, *recordingSleeper) {
	eng := &browsertest.Engine{NewPageFunc: func(int) (*browsertest.Page, error) { return page, nil }}
	sleeper := &recordingSleeper{}
	e := NewEngine(eng, Options{
		Mode:           mode,
		Extraction:     testExtraction(),
		AcceptLanguage: "en-US,en;q=0.9",
		Random:         antidetect.NewRandom(7),
		Sleeper:        sleeper,
		Logger:         utils.NewNopLogger(),
	})
	return e, eng, sleeper
}

func metadataItem() types.WorkItem {
	return types.WorkItem{
		SourceURL: sourceURL,
		RowKey:    sourceURL,
		Required:  types.NewFieldSet(types.FieldLink, types.FieldName),
	}
}

func TestRunAcmeMetadataOnly(t *testing.T) {
	page := &browsertest.Page{
		FrameList: []*browsertest.Frame{adFrame("main", acmeCandidates(), true)},
		OnPress:   emitMedia,
	}
	e, _, _ := newTestEngine(page, types.ModeMetadata)

	rec := e.Run(context.Background(), metadataItem())

	assert.Equal(t, types.ExtractionRecord{Link: playLink, Name: "Acme", VideoID: types.Skip}, rec)
	assert.Empty(t, page.Presses(), "no video pass in metadata mode")
	assert.Equal(t, 1, page.Closed())
	assert.Equal(t, []string{sourceURL}, page.Navigated())
}

func TestRunUnifiedFetchesVideoAfterFindingLink(t *testing.T) {
	page := &browsertest.Page{
		FrameList: []*browsertest.Frame{adFrame("main", acmeCandidates(), true)},
		OnPress:   emitMedia,
	}
	e, _, _ := newTestEngine(page, types.ModeUnified)

	rec := e.Run(context.Background(), metadataItem())

	assert.Equal(t, types.ExtractionRecord{Link: playLink, Name: "Acme", VideoID: videoID}, rec)
	assert.Len(t, page.Presses(), 1)
}

func TestRunFallsBackToWrappedLinkInMarkup(t *testing.T) {
	page := &browsertest.Page{
		HTML: `<html><body><div data-click="https://www.googleadservices.com/pagead/aclk?sa=L&amp;adurl=https%3A%2F%2Fplay.google.com%2Fstore%2Fapps%2Fdetails%3Fid%3Dcom.acme"></div></body></html>`,
		FrameList: []*browsertest.Frame{adFrame("main", extractor.Candidates{}, false)},
	}
	e, _, _ := newTestEngine(page, types.ModeMetadata)

	rec := e.Run(context.Background(), metadataItem())

	assert.Equal(t, playLink, rec.Link)
	assert.Equal(t, types.Skip, rec.VideoID)
}

func TestRunAppliesIdentity(t *testing.T) {
	page := &browsertest.Page{FrameList: []*browsertest.Frame{adFrame("main", acmeCandidates(), false)}}
	e, _, sleeper := newTestEngine(page, types.ModeMetadata)

	e.Run(context.Background(), metadataItem())

	ua, lang := page.UserAgent()
	assert.Contains(t, antidetect.DefaultUserAgents, ua)
	assert.Equal(t, "en-US,en;q=0.9", lang)
	w, h := page.Viewport()
	assert.Contains(t, antidetect.DefaultViewports, antidetect.Viewport{Width: w, Height: h})
	assert.Equal(t, "en-US,en;q=0.9", page.Headers()["Accept-Language"])

	scripts := page.InitScripts()
	require.Len(t, scripts, 1)
	assert.Contains(t, scripts[0], "webdriver")

	// pre-navigation jitter, settle, scroll pause
	require.GreaterOrEqual(t, len(sleeper.slept), 3)
	assert.GreaterOrEqual(t, sleeper.slept[0], preNavigateMin)
	assert.Less(t, sleeper.slept[0], preNavigateMax)
	assert.GreaterOrEqual(t, sleeper.slept[1], settleMin)
	assert.Less(t, sleeper.slept[1], settleMax)
	assert.GreaterOrEqual(t, sleeper.slept[2], scrollPauseMin)
	assert.Less(t, sleeper.slept[2], scrollPauseMax)

	var scrolls []string
	for _, js := range page.FrameList[0].Scripts() {
		if strings.HasPrefix(js, "window.scrollBy") {
			scrolls = append(scrolls, js)
		}
	}
	assert.Len(t, scrolls, 2)
}

func TestRunAbortsHeavyResources(t *testing.T) {
	page := &browsertest.Page{
		FrameList: []*browsertest.Frame{adFrame("main", acmeCandidates(), false)},
		Traffic: []browser.Request{
			{URL: "https://example.com/banner.png", ResourceType: browser.ResourceImage},
			{URL: "https://example.com/font.woff2", ResourceType: browser.ResourceFont},
			{URL: mediaURL, ResourceType: browser.ResourceMedia},
		},
	}
	e, _, _ := newTestEngine(page, types.ModeUnified)

	// the identifier seen during navigation is used without clicking
	rec := e.Run(context.Background(), metadataItem())

	assert.ElementsMatch(t, []string{"https://example.com/banner.png", "https://example.com/font.woff2"}, page.Aborted())
	assert.Equal(t, videoID, rec.VideoID)
	assert.Empty(t, page.Presses())
}

func TestRunBlocked(t *testing.T) {
	tests := []struct {
		name   string
		status int
		html   string
	}{
		{"rate limited status", 429, "<html></html>"},
		{"unusual traffic", 200, "<p>Our systems have detected unusual traffic from your network</p>"},
		{"captcha widget", 200, `<div class="g-recaptcha"></div>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &browsertest.Page{Status: tt.status, HTML: tt.html}
			e, _, _ := newTestEngine(page, types.ModeUnified)

			rec := e.Run(context.Background(), metadataItem())
			assert.True(t, rec.IsBlocked())
			assert.Equal(t, types.BlockedRecord(), rec)
			assert.Equal(t, 1, page.Closed())
		})
	}
}

func TestRunNavigationErrorBecomesErrorRecord(t *testing.T) {
	page := &browsertest.Page{NavigateErr: errors.New("net::ERR_CONNECTION_RESET")}
	e, _, _ := newTestEngine(page, types.ModeUnified)

	rec := e.Run(context.Background(), metadataItem())

	assert.Equal(t, types.ExtractionRecord{Link: types.Error, Name: types.Error, VideoID: types.Skip}, rec)
	assert.Equal(t, 1, page.Closed())
}

func TestRunPageOpenFailure(t *testing.T) {
	eng := &browsertest.Engine{}
	e := NewEngine(eng, Options{Extraction: testExtraction(), Sleeper: &recordingSleeper{}})

	rec := e.Run(context.Background(), metadataItem())
	assert.Equal(t, types.Error, rec.Link)
	assert.Equal(t, types.Error, rec.Name)
}

func TestRunVideoOnly(t *testing.T) {
	videoItem := func(existingLink string) types.WorkItem {
		return types.WorkItem{
			SourceURL: sourceURL,
			RowKey:    sourceURL,
			Required:  types.NewFieldSet(types.FieldVideoID),
			Existing:  map[types.Field]string{types.FieldLink: existingLink},
		}
	}

	t.Run("clicks and captures", func(t *testing.T) {
		page := &browsertest.Page{
			FrameList: []*browsertest.Frame{adFrame("main", extractor.Candidates{}, true)},
			OnPress:   emitMedia,
		}
		e, _, _ := newTestEngine(page, types.ModeVideo)

		rec := e.Run(context.Background(), videoItem(playLink))
		assert.Equal(t, types.ExtractionRecord{Link: types.Skip, Name: types.Skip, VideoID: videoID}, rec)

		// metadata was not requested so the extractor never ran
		for _, js := range page.FrameList[0].Scripts() {
			assert.NotContains(t, js, "ochAppName")
		}
	})

	t.Run("no target degrades to not found", func(t *testing.T) {
		page := &browsertest.Page{FrameList: []*browsertest.Frame{adFrame("main", extractor.Candidates{}, false)}}
		e, _, _ := newTestEngine(page, types.ModeVideo)

		rec := e.Run(context.Background(), videoItem(playLink))
		assert.Equal(t, types.NotFound, rec.VideoID)
		assert.Empty(t, page.Presses())
	})

	t.Run("clicks applied viewport center when page script fails", func(t *testing.T) {
		frame := adFrame("main", extractor.Candidates{}, false)
		answer := frame.Eval
		frame.Eval = func(js string) (any, error) {
			if strings.Contains(js, `"mode":"viewport"`) {
				return nil, errors.New("execution context destroyed")
			}
			return answer(js)
		}
		page := &browsertest.Page{FrameList: []*browsertest.Frame{frame}}
		e, _, _ := newTestEngine(page, types.ModeVideo)

		rec := e.Run(context.Background(), videoItem(playLink))
		assert.Equal(t, types.NotFound, rec.VideoID)
		require.Len(t, page.Presses(), 1)
		w, h := page.Viewport()
		require.Positive(t, w)
		press := page.Presses()[0]
		assert.InDelta(t, float64(w)/2, press.X, 5.0)
		assert.InDelta(t, float64(h)/2, press.Y, 5.0)
	})

	t.Run("click without identifier degrades to not found", func(t *testing.T) {
		page := &browsertest.Page{FrameList: []*browsertest.Frame{adFrame("main", extractor.Candidates{}, true)}}
		e, _, _ := newTestEngine(page, types.ModeVideo)

		rec := e.Run(context.Background(), videoItem(playLink))
		assert.Equal(t, types.NotFound, rec.VideoID)
		assert.Len(t, page.Presses(), 1)
	})

	t.Run("invalid stored link stays skipped", func(t *testing.T) {
		page := &browsertest.Page{
			FrameList: []*browsertest.Frame{adFrame("main", extractor.Candidates{}, true)},
			OnPress:   emitMedia,
		}
		e, _, _ := newTestEngine(page, types.ModeVideo)

		rec := e.Run(context.Background(), videoItem("https://example.com/landing"))
		assert.Equal(t, types.Skip, rec.VideoID)
		assert.Empty(t, page.Presses())
	})
}

func TestRunUnifiedWithoutLinkSkipsVideo(t *testing.T) {
	page := &browsertest.Page{
		FrameList: []*browsertest.Frame{adFrame("main", extractor.Candidates{
			Marker: []extractor.Candidate{{Text: "Acme", Href: "https://example.com/landing"}},
		}, true)},
		OnPress: emitMedia,
	}
	e, _, _ := newTestEngine(page, types.ModeUnified)

	rec := e.Run(context.Background(), metadataItem())

	assert.Equal(t, types.ExtractionRecord{Link: types.NotFound, Name: "Acme", VideoID: types.Skip}, rec)
	assert.Empty(t, page.Presses())
}

func TestRunCancelledContext(t *testing.T) {
	page := &browsertest.Page{FrameList: []*browsertest.Frame{adFrame("main", acmeCandidates(), false)}}
	e, _, _ := newTestEngine(page, types.ModeMetadata)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := e.Run(ctx, metadataItem())
	assert.Equal(t, types.Error, rec.Link)
	assert.Empty(t, page.Navigated())
	assert.Equal(t, 1, page.Closed())
}
