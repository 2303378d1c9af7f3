// internal/browser/types.go
package browser

import (
	"context"
	"time"
)

// ResourceType is the browser's classification of a network request
type ResourceType string

const (
	ResourceDocument ResourceType = "Document"
	ResourceImage    ResourceType = "Image"
	ResourceFont     ResourceType = "Font"
	ResourceMedia    ResourceType = "Media"
	ResourceXHR      ResourceType = "XHR"
	ResourceFetch    ResourceType = "Fetch"
	ResourceScript   ResourceType = "Script"
	ResourceOther    ResourceType = "Other"
)

// Request is an intercepted request before it leaves the browser
type Request struct {
	URL          string
	ResourceType ResourceType
}

// RequestHandler decides whether an intercepted request is aborted
type RequestHandler func(req Request) (abort bool)

// EventListener receives the URL of every request sent and response received
type EventListener func(url string)

// Response describes the main document response of a navigation
type Response struct {
	URL    string
	Status int
}

// Point is a position in page CSS pixels
type Point struct {
	X float64
	Y float64
}

// Engine owns one browser process and hands out isolated pages
type Engine interface {
	// NewPage opens a page in a fresh browser context
	NewPage(ctx context.Context) (Page, error)

	// Close shuts the browser down
	Close() error
}

// Page is a single tab in its own browser context
type Page interface {
	SetUserAgent(ctx context.Context, ua, acceptLanguage string) error
	SetViewport(ctx context.Context, width, height int) error
	SetExtraHeaders(ctx context.Context, headers map[string]string) error

	// AddScriptOnNewDocument registers js to run before any page script
	AddScriptOnNewDocument(ctx context.Context, js string) error

	// Intercept routes every request through handler and reports request
	// and response URLs to listener. Either may be nil.
	Intercept(ctx context.Context, handler RequestHandler, listener EventListener) error

	// Navigate loads url and waits for the network to go almost idle,
	// failing with a transient error once timeout elapses
	Navigate(ctx context.Context, url string, timeout time.Duration) (*Response, error)

	// Frames returns every frame of the page, main frame first
	Frames(ctx context.Context) ([]Frame, error)
	MainFrame() Frame

	// Content returns the serialized main document
	Content(ctx context.Context) (string, error)

	Pointer() Pointer
	Close() error
}

// Frame is one document inside a page
type Frame interface {
	ID() string
	ParentID() string
	URL() string

	// Evaluate runs js as an expression in an isolated world of the frame
	// and decodes its JSON-serializable result into out
	Evaluate(ctx context.Context, js string, out any) error

	// Offset returns the frame's top-left corner in page coordinates.
	// The main frame is at the origin.
	Offset(ctx context.Context) (Point, error)
}

// Pointer dispatches mouse input in page coordinates
type Pointer interface {
	MoveTo(ctx context.Context, p Point) error
	Press(ctx context.Context, p Point) error
	Release(ctx context.Context, p Point) error
}

// LaunchFlags are the command-line switches every engine starts Chrome with.
// Site isolation is disabled so same-origin frames share a process.
func LaunchFlags(noSandbox bool) map[string]any {
	flags := map[string]any{
		"autoplay-policy":               "no-user-gesture-required",
		"disable-blink-features":        "AutomationControlled",
		"disable-dev-shm-usage":         true,
		"disable-site-isolation-trials": true,
		"disable-features":              "IsolateOrigins,site-per-process",
		"no-first-run":                  true,
		"no-default-browser-check":      true,
	}
	if noSandbox {
		flags["no-sandbox"] = true
		flags["disable-setuid-sandbox"] = true
	}
	return flags
}
