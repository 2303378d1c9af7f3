// internal/observer/observer_test.go
package observer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/AdScrapexter/internal/browser"
	"github.com/valpere/AdScrapexter/internal/browser/browsertest"
)

const (
	mediaURL  = "https://rr3---sn-abc.googlevideo.com/videoplayback?expire=1&id=0123456789abcdef&itag=18"
	mediaURL2 = "https://rr4---sn-abc.googlevideo.com/videoplayback?id=fedcba9876543210"
)

func TestObserveRetainsFirstMatch(t *testing.T) {
	o := New()

	_, ok := o.Observe("https://example.com/app.js")
	assert.False(t, ok)

	id, ok := o.Observe(mediaURL)
	require.True(t, ok)
	assert.Equal(t, "0123456789abcdef", id)

	// a later match is reported but never replaces the first
	id, ok = o.Observe(mediaURL2)
	assert.True(t, ok)
	assert.Equal(t, "fedcba9876543210", id)

	got, ok := o.Identifier()
	assert.True(t, ok)
	assert.Equal(t, "0123456789abcdef", got)
	assert.Equal(t, 3, o.Events())

	// once found, waiting returns at once
	got, ok = o.Wait(context.Background(), time.Hour, time.Hour)
	assert.True(t, ok)
	assert.Equal(t, "0123456789abcdef", got)
}

func TestObserveRejectsMalformedIdentifiers(t *testing.T) {
	o := New()
	for _, u := range []string{
		"https://x.googlevideo.com/videoplayback?id=0123456789ABCDEF",
		"https://x.googlevideo.com/videoplayback?id=0123",
		"https://x.googlevideo.com/videoplayback",
		"https://example.com/videoplayback?id=0123456789abcdef",
	} {
		_, ok := o.Observe(u)
		assert.False(t, ok, u)
	}
	_, ok := o.Identifier()
	assert.False(t, ok)
}

func TestObserveConcurrent(t *testing.T) {
	o := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				o.Observe(mediaURL)
			} else {
				o.Observe("https://example.com/")
			}
		}(i)
	}
	wg.Wait()

	id, ok := o.Identifier()
	assert.True(t, ok)
	assert.Equal(t, "0123456789abcdef", id)
	assert.Equal(t, 20, o.Events())
}

func TestWaitExitsEarlyOnMatch(t *testing.T) {
	o := New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		o.Observe(mediaURL)
	}()

	start := time.Now()
	id, ok := o.Wait(context.Background(), 5*time.Second, time.Second)
	assert.True(t, ok)
	assert.Equal(t, "0123456789abcdef", id)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitWindowElapses(t *testing.T) {
	o := New()
	_, ok := o.Wait(context.Background(), 30*time.Millisecond, 10*time.Millisecond)
	assert.False(t, ok)
}

func TestWaitHonorsContext(t *testing.T) {
	o := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, ok := o.Wait(ctx, time.Minute, time.Second)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAbortPolicy(t *testing.T) {
	o := New()
	assert.True(t, o.ShouldAbort(browser.ResourceImage))
	assert.True(t, o.ShouldAbort(browser.ResourceFont))
	assert.False(t, o.ShouldAbort(browser.ResourceMedia))
	assert.False(t, o.ShouldAbort(browser.ResourceXHR))
	assert.False(t, o.ShouldAbort(browser.ResourceFetch))
	assert.False(t, o.ShouldAbort(browser.ResourceScript))

	// classes that may carry the identifier are never aborted
	custom := New(browser.ResourceMedia, browser.ResourceScript)
	assert.False(t, custom.ShouldAbort(browser.ResourceMedia))
	assert.True(t, custom.ShouldAbort(browser.ResourceScript))
}

func TestAttachObservesTraffic(t *testing.T) {
	page := &browsertest.Page{
		Traffic: []browser.Request{
			{URL: "https://example.com/logo.png", ResourceType: browser.ResourceImage},
			{URL: mediaURL, ResourceType: browser.ResourceMedia},
		},
	}
	o := New()
	ctx := context.Background()
	require.NoError(t, o.Attach(ctx, page))

	_, err := page.Navigate(ctx, "https://adstransparency.google.com/x", time.Second)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/logo.png"}, page.Aborted())
	id, ok := o.Identifier()
	assert.True(t, ok)
	assert.Equal(t, "0123456789abcdef", id)
}
