// internal/cleaner/cleaner.go
package cleaner

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NameDelimiter separates concatenated labels in ad markup
const NameDelimiter = "!@~!@~"

// maxPasses bounds the fixed-point loop in CleanName; text still
// changing after that many passes is rejected
const maxPasses = 64

var (
	invisibleRe  = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{2066}-\x{2069}]`)
	classTokenRe = regexp.MustCompile(`\.[a-zA-Z][\w-]*`)
	styleDeclRe  = regexp.MustCompile(`[a-zA-Z-]+\s*:\s*[^;]+;`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// CleanName normalizes raw element text into an application name.
// It returns false when nothing usable remains. CleanName is idempotent.
func CleanName(text string) (string, bool) {
	clean := text
	for i := 0; i < maxPasses; i++ {
		next := cleanPass(clean)
		if next == clean {
			if !acceptable(clean) {
				return "", false
			}
			return clean, true
		}
		clean = next
	}
	return "", false
}

// cleanPass is one normalization round. Removing invisible runes can
// leave a string that is no longer NFC, so every round renormalizes.
func cleanPass(s string) string {
	s = norm.NFC.String(s)
	s = invisibleRe.ReplaceAllString(s, "")
	s = classTokenRe.ReplaceAllString(s, " ")
	s = styleDeclRe.ReplaceAllString(s, " ")
	if i := strings.Index(s, NameDelimiter); i >= 0 {
		s = s[:i]
	}
	if strings.Contains(s, "|") {
		for _, part := range strings.Split(s, "|") {
			part = strings.TrimSpace(part)
			if len([]rune(part)) > 2 {
				s = part
				break
			}
		}
	}
	return strings.TrimSpace(norm.NFC.String(spaceRe.ReplaceAllString(s, " ")))
}

// acceptable rejects short strings and strings without a single letter
func acceptable(s string) bool {
	if len([]rune(s)) < 2 {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// Fold returns the caseless form used for name comparison.
// A Caser is stateful, so each call gets its own.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// SameName compares two names ignoring case
func SameName(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return Fold(a) == Fold(b)
}
