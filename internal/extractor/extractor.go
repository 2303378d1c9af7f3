// internal/extractor/extractor.go

// Package extractor pulls the application name and store link out of the
// frames of an ad preview page.
package extractor

import (
	"context"
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/AdScrapexter/internal/browser"
	"github.com/valpere/AdScrapexter/internal/cleaner"
	"github.com/valpere/AdScrapexter/internal/patterns"
	"github.com/valpere/AdScrapexter/internal/utils"
)

//go:embed extract.js
var extractJS string

// Selector lists, in priority order
var (
	StructuralPath = `//*[@id="portrait-landscape-phone"]/div[1]/div[5]/a[2]`

	MarkerSelectors = []string{
		`a[data-asoch-targets*="ochAppName"]`,
		`a[data-asoch-targets*="appname" i]`,
		`a[class*="short-app-name"]`,
		`.short-app-name a`,
	}

	InstallSelectors = []string{
		`a[data-asoch-targets*="ochButton"]`,
		`a[data-asoch-targets*="Install" i]`,
		`a[aria-label*="Install" i]`,
	}
)

// BlacklistSelector locates the page-level advertiser heading
const BlacklistSelector = "h1, .advertiser-name"

// candidateLimit caps candidates per strategy returned by one frame
const candidateLimit = 50

// Candidate is one element the script matched
type Candidate struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Candidates are the raw matches of one frame, grouped by strategy
type Candidates struct {
	Hidden     bool        `json:"hidden"`
	Structural []Candidate `json:"structural"`
	Marker     []Candidate `json:"marker"`
	Shadow     []Candidate `json:"shadow"`
	Install    []string    `json:"install"`
}

// Partial is what one frame, or several frames merged, contributed
type Partial struct {
	Name   string
	Link   string
	Hidden bool
}

// Complete reports whether both fields were found
func (p Partial) Complete() bool {
	return p.Name != "" && p.Link != ""
}

// Extractor runs the candidate script in frames
type Extractor struct {
	script string
	logger utils.Logger
}

type scriptOptions struct {
	MinSize  float64  `json:"minSize"`
	MaxDepth int      `json:"maxDepth"`
	Limit    int      `json:"limit"`
	XPath    string   `json:"xpath"`
	Markers  []string `json:"markers"`
	Install  []string `json:"install"`
}

// New creates an extractor. Frames smaller than minFrameSize in either
// dimension are hidden; shadow roots are descended maxDepth levels.
func New(minFrameSize float64, maxDepth int, logger utils.Logger) *Extractor {
	opts, _ := json.Marshal(scriptOptions{
		MinSize:  minFrameSize,
		MaxDepth: maxDepth,
		Limit:    candidateLimit,
		XPath:    StructuralPath,
		Markers:  MarkerSelectors,
		Install:  InstallSelectors,
	})
	return &Extractor{
		script: "(" + strings.TrimSpace(extractJS) + ")(" + string(opts) + ")",
		logger: logger,
	}
}

// Script returns the expression evaluated in each frame
func (e *Extractor) Script() string {
	return e.script
}

// Extract evaluates the candidate script in frame and selects the result
func (e *Extractor) Extract(ctx context.Context, frame browser.Frame, blacklist string) (Partial, error) {
	var c Candidates
	if err := frame.Evaluate(ctx, e.script, &c); err != nil {
		return Partial{}, err
	}
	return Select(c, blacklist), nil
}

// ExtractAll walks frames in order. It stops at the first frame yielding
// both fields; otherwise earlier partial values win. Frames that fail
// contribute nothing.
func (e *Extractor) ExtractAll(ctx context.Context, frames []browser.Frame, blacklist string) Partial {
	var best Partial
	for _, f := range frames {
		if ctx.Err() != nil {
			break
		}
		p, err := e.Extract(ctx, f, blacklist)
		if err != nil {
			e.logger.Debugf("frame %s contributed nothing: %v", f.ID(), err)
			continue
		}
		if p.Hidden {
			continue
		}
		if p.Complete() && best.Link == "" {
			return p
		}
		if best.Name == "" {
			best.Name = p.Name
		}
		if best.Link == "" {
			best.Link = p.Link
		}
	}
	return best
}

// Select applies cleaning, the blacklist and link validation to raw
// candidates. The first candidate with both fields wins outright.
func Select(c Candidates, blacklist string) Partial {
	if c.Hidden {
		return Partial{Hidden: true}
	}

	var out Partial
	for _, group := range [][]Candidate{c.Structural, c.Marker, c.Shadow} {
		for _, cand := range group {
			name, ok := cleaner.CleanName(cand.Text)
			if !ok || (blacklist != "" && cleaner.SameName(name, blacklist)) {
				continue
			}
			if link, ok := patterns.ExtractStoreLink(cand.Href); ok {
				return Partial{Name: name, Link: link}
			}
			if out.Name == "" {
				out.Name = name
			}
		}
	}

	if out.Name != "" && out.Link == "" {
		for _, href := range c.Install {
			if link, ok := patterns.ExtractStoreLink(href); ok {
				out.Link = link
				break
			}
		}
	}
	return out
}

// BlacklistFromHTML returns the text of the first advertiser heading in html
func BlacklistFromHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find(BlacklistSelector).First().Text()), " ")
}
