// internal/antidetect/captcha.go
package antidetect

import (
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BlockReason names what triggered a block classification
type BlockReason string

const (
	ReasonNone          BlockReason = ""
	ReasonStatus429     BlockReason = "http_429"
	ReasonUnusual       BlockReason = "unusual_traffic"
	ReasonTooMany       BlockReason = "too_many_requests"
	ReasonCaptchaMarkup BlockReason = "captcha_markup"
	ReasonCaptchaText   BlockReason = "captcha_text"
)

// rate-limit phrases served by the target instead of content
var blockPhrases = []struct {
	phrase string
	reason BlockReason
}{
	{"Our systems have detected unusual traffic", ReasonUnusual},
	{"Too Many Requests", ReasonTooMany},
}

// challenge widgets recognized structurally
var captchaSelectors = []string{
	"form#captcha-form",
	"#recaptcha",
	".g-recaptcha",
	".h-captcha",
	`iframe[src*="recaptcha"]`,
	`iframe[src*="hcaptcha"]`,
	`script[src*="recaptcha/api"]`,
}

// CaptchaDetector classifies a navigation response as blocked
type CaptchaDetector struct {
	// TextMatch also blocks on any case-insensitive "captcha" substring
	TextMatch bool
}

// NewCaptchaDetector creates a detector with substring matching enabled
func NewCaptchaDetector() *CaptchaDetector {
	return &CaptchaDetector{TextMatch: true}
}

// Detect returns the block reason for a response, or ReasonNone
func (d *CaptchaDetector) Detect(status int, html string) BlockReason {
	if status == http.StatusTooManyRequests {
		return ReasonStatus429
	}
	for _, bp := range blockPhrases {
		if strings.Contains(html, bp.phrase) {
			return bp.reason
		}
	}
	if hasCaptchaMarkup(html) {
		return ReasonCaptchaMarkup
	}
	if d.TextMatch && strings.Contains(strings.ToLower(html), "captcha") {
		return ReasonCaptchaText
	}
	return ReasonNone
}

func hasCaptchaMarkup(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	for _, sel := range captchaSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
