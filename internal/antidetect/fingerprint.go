// internal/antidetect/fingerprint.go
package antidetect

import (
	"encoding/json"
	"strings"

	"github.com/go-rod/stealth"
)

// overridesTemplate hides the properties automation frameworks expose.
// __LANGS__ is replaced with a JSON array of languages.
const overridesTemplate = `(() => {
  const define = (obj, prop, value) => {
    try { Object.defineProperty(obj, prop, { get: () => value, configurable: true }); } catch (e) {}
  };
  define(navigator, 'webdriver', undefined);
  define(navigator, 'languages', __LANGS__);
  if (!navigator.plugins || navigator.plugins.length === 0) {
    define(navigator, 'plugins', [1, 2, 3, 4, 5]);
  }
  if (!window.chrome) { window.chrome = { runtime: {} }; }
})();`

// MaskScript returns the script evaluated before any page script runs.
// It combines the stealth evasions with explicit property overrides.
func MaskScript(acceptLanguage string) string {
	langs, _ := json.Marshal(Languages(acceptLanguage))
	return stealth.JS + "\n" + strings.Replace(overridesTemplate, "__LANGS__", string(langs), 1)
}

// Languages turns an Accept-Language header into the navigator.languages list
func Languages(acceptLanguage string) []string {
	var out []string
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag, _, _ := strings.Cut(part, ";")
		tag = strings.TrimSpace(tag)
		if tag != "" {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		return []string{"en-US", "en"}
	}
	return out
}
