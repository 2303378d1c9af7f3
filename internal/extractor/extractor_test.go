// internal/extractor/extractor_test.go
package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/valpere/AdScrapexter/internal/browser"
	"github.com/valpere/AdScrapexter/internal/browser/browsertest"
	"github.com/valpere/AdScrapexter/internal/utils"
)

const (
	playLink    = "https://play.google.com/store/apps/details?id=com.acme.game"
	appleLink   = "https://apps.apple.com/us/app/acme/id123456"
	wrappedLink = "https://www.googleadservices.com/pagead/aclk?sa=L&adurl=https%3A%2F%2Fplay.google.com%2Fstore%2Fapps%2Fdetails%3Fid%3Dcom.acme.game"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		name      string
		in        Candidates
		blacklist string
		want      Partial
	}{
		{
			name: "hidden frame",
			in:   Candidates{Hidden: true, Marker: []Candidate{{Text: "Acme", Href: playLink}}},
			want: Partial{Hidden: true},
		},
		{
			name: "marker with direct link",
			in:   Candidates{Marker: []Candidate{{Text: "Acme Game", Href: playLink}}},
			want: Partial{Name: "Acme Game", Link: playLink},
		},
		{
			name: "structural path wins over markers",
			in: Candidates{
				Structural: []Candidate{{Text: "Structural", Href: appleLink}},
				Marker:     []Candidate{{Text: "Marker", Href: playLink}},
			},
			want: Partial{Name: "Structural", Link: appleLink},
		},
		{
			name: "wrapped link is unwrapped",
			in:   Candidates{Marker: []Candidate{{Text: "Acme Game", Href: wrappedLink}}},
			want: Partial{Name: "Acme Game", Link: playLink},
		},
		{
			name:      "advertiser name is rejected",
			in:        Candidates{Marker: []Candidate{{Text: "ACME Inc", Href: playLink}, {Text: "Acme Puzzle", Href: appleLink}}},
			blacklist: "acme inc",
			want:      Partial{Name: "Acme Puzzle", Link: appleLink},
		},
		{
			name: "name without link keeps first name",
			in:   Candidates{Marker: []Candidate{{Text: "First", Href: "#"}, {Text: "Second", Href: "javascript:void(0)"}}},
			want: Partial{Name: "First"},
		},
		{
			name: "shadow candidate completes later",
			in: Candidates{
				Marker: []Candidate{{Text: "Partial", Href: ""}},
				Shadow: []Candidate{{Text: "Shadow App", Href: playLink}},
			},
			want: Partial{Name: "Shadow App", Link: playLink},
		},
		{
			name: "install button supplies the link",
			in: Candidates{
				Marker:  []Candidate{{Text: "Acme Game", Href: ""}},
				Install: []string{"https://example.com/landing", wrappedLink},
			},
			want: Partial{Name: "Acme Game", Link: playLink},
		},
		{
			name: "install ignored without a name",
			in:   Candidates{Install: []string{playLink}},
			want: Partial{},
		},
		{
			name: "unusable names are skipped",
			in:   Candidates{Marker: []Candidate{{Text: "  12 | ", Href: playLink}, {Text: ".btn-primary color: red;", Href: playLink}}},
			want: Partial{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Select(tt.in, tt.blacklist))
		})
	}
}

func frameReturning(id string, c Candidates) *browsertest.Frame {
	return &browsertest.Frame{FrameID: id, Eval: func(string) (any, error) { return c, nil }}
}

func TestExtractAllStopsAtCompleteFrame(t *testing.T) {
	e := New(50, 8, utils.NewNopLogger())
	third := frameReturning("3", Candidates{Marker: []Candidate{{Text: "Never", Href: appleLink}}})

	frames := []browser.Frame{
		frameReturning("1", Candidates{Marker: []Candidate{{Text: "Name Only"}}}),
		frameReturning("2", Candidates{Marker: []Candidate{{Text: "Acme Game", Href: playLink}}}),
		third,
	}

	got := e.ExtractAll(context.Background(), frames, "")
	assert.Equal(t, Partial{Name: "Acme Game", Link: playLink}, got)
	assert.Empty(t, third.Scripts())
}

func TestExtractAllMergesPartials(t *testing.T) {
	e := New(50, 8, utils.NewNopLogger())
	failing := &browsertest.Frame{FrameID: "x", Eval: func(string) (any, error) {
		return nil, errors.New("cross-origin frame")
	}}

	frames := []browser.Frame{
		frameReturning("main", Candidates{Hidden: true}),
		failing,
		frameReturning("1", Candidates{Marker: []Candidate{{Text: "First Name"}}}),
		frameReturning("2", Candidates{Marker: []Candidate{{Text: "Second Name"}}}),
	}

	got := e.ExtractAll(context.Background(), frames, "")
	assert.Equal(t, Partial{Name: "First Name"}, got)
}

func TestScriptCarriesOptions(t *testing.T) {
	e := New(75, 4, utils.NewNopLogger())
	js := e.Script()

	assert.True(t, strings.HasPrefix(js, "((function (opts)"))
	assert.Contains(t, js, `"minSize":75`)
	assert.Contains(t, js, `"maxDepth":4`)
	assert.Contains(t, js, `ochAppName`)
	assert.Contains(t, js, `portrait-landscape-phone`)
}

func TestBlacklistFromHTML(t *testing.T) {
	html := `<html><body><div class="advertiser-name">  Acme
		Inc </div><h1>Later</h1></body></html>`
	assert.Equal(t, "Acme Inc", BlacklistFromHTML(html))

	assert.Equal(t, "", BlacklistFromHTML("<p>nothing</p>"))
}
