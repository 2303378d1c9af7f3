// internal/patterns/patterns.go
package patterns

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/valpere/AdScrapexter/pkg/types"
)

// media-serving host and path carrying the identifier
const (
	mediaHost = "googlevideo.com"
	mediaPath = "/videoplayback"
)

var (
	identifierRe = regexp.MustCompile(`^[a-f0-9]{16}$`)

	// redirect target parameters, tried in order
	redirectParams = []*regexp.Regexp{
		regexp.MustCompile(`(?i)[?&]adurl=([^&\s]+)`),
		regexp.MustCompile(`(?i)[?&]dest=([^&\s]+)`),
		regexp.MustCompile(`(?i)[?&]url=([^&\s]+)`),
	}

	// aclkRe finds a wrapped click URL inside serialized page markup
	aclkRe = regexp.MustCompile(`https://www\.googleadservices\.com/pagead/aclk[^"'\x{2019}\s]*`)

	// embedded store URLs, the last resort of ExtractStoreLink
	embeddedPlayRe  = regexp.MustCompile(`https?://play\.google\.com/store/apps/details\?id=[a-zA-Z0-9._]+`)
	embeddedAppleRe = regexp.MustCompile(`https?://(?:apps|itunes)\.apple\.com/[^\s&"']+/app/[^\s&"']+`)
)

// IsIdentifier reports whether s has the 16 lowercase hex shape
func IsIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}

// ObserveURL classifies one network request URL. It returns the
// identifier when the URL targets the media-serving host and path and
// carries a well-formed id parameter.
func ObserveURL(eventURL string) (string, bool) {
	u, err := url.Parse(eventURL)
	if err != nil || !isMediaHost(u.Hostname()) || !strings.HasPrefix(u.Path, mediaPath) {
		return "", false
	}
	// ParseQuery keeps the pairs it could decode even on error
	q, _ := url.ParseQuery(u.RawQuery)
	id := q.Get("id")
	if !IsIdentifier(id) {
		return "", false
	}
	return id, true
}

func isMediaHost(host string) bool {
	host = strings.ToLower(host)
	return host == mediaHost || strings.HasSuffix(host, "."+mediaHost)
}

// IsValidStoreLink reports whether s is a direct Play Store or App Store link
func IsValidStoreLink(s string) bool {
	if s == "" {
		return false
	}
	isPlay := strings.Contains(s, "play.google.com/store/apps") && strings.Contains(s, "id=")
	isApple := (strings.Contains(s, "apps.apple.com") || strings.Contains(s, "itunes.apple.com")) &&
		strings.Contains(s, "/app/")
	return isPlay || isApple
}

// IsRedirectWrapper reports whether s is an ad click redirect
func IsRedirectWrapper(s string) bool {
	return strings.Contains(s, "googleadservices.com") || strings.Contains(s, "/pagead/aclk")
}

// UnwrapRedirect returns the store link hidden in a redirect wrapper.
// A wrapper is never accepted as it is, only its decoded target. Direct
// store links are returned unchanged, so unwrapping is idempotent.
func UnwrapRedirect(s string) (string, bool) {
	if !IsRedirectWrapper(s) {
		if IsValidStoreLink(s) {
			return s, true
		}
		return "", false
	}
	for _, re := range redirectParams {
		m := re.FindStringSubmatch(s)
		if len(m) < 2 {
			continue
		}
		decoded, err := url.PathUnescape(m[1])
		if err != nil {
			continue
		}
		if IsValidStoreLink(decoded) && !IsRedirectWrapper(decoded) {
			return decoded, true
		}
	}
	return "", false
}

// ExtractStoreLink validates one candidate href: a direct link, then an
// unwrapped redirect, then a store URL embedded anywhere in the text.
// Script pseudo-links and bare fragments are never links.
func ExtractStoreLink(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" || strings.Contains(href, "javascript:") {
		return "", false
	}
	if link, ok := UnwrapRedirect(href); ok {
		return link, true
	}
	if m := embeddedPlayRe.FindString(href); m != "" {
		return m, true
	}
	if m := embeddedAppleRe.FindString(href); m != "" {
		return m, true
	}
	return "", false
}

// FindWrappedLinks scans serialized markup for redirect wrappers
func FindWrappedLinks(markup string) []string {
	return aclkRe.FindAllString(markup, -1)
}

// LinkFromMarkup returns the first store link reachable through a
// redirect wrapper serialized in markup
func LinkFromMarkup(markup string) (string, bool) {
	for _, w := range FindWrappedLinks(markup) {
		if link, ok := ExtractStoreLink(html.UnescapeString(w)); ok {
			return link, true
		}
	}
	return "", false
}

// NormalizeLink replaces a link still carrying an adurl parameter with
// the decoded target, but only when that target is itself a store link.
func NormalizeLink(link string) string {
	if types.IsSentinel(link) || !strings.Contains(link, "adurl=") {
		return link
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if target := u.Query().Get("adurl"); IsValidStoreLink(target) {
		return target
	}
	return link
}

// HasValidStoreHost is the looser gate deciding whether a video pass is
// worth running for an item.
func HasValidStoreHost(link string) bool {
	if link == "" || types.IsSentinel(link) {
		return false
	}
	return strings.Contains(link, "play.google.com") || strings.Contains(link, "apps.apple.com")
}
