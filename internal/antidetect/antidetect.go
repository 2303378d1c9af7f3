// internal/antidetect/antidetect.go
package antidetect

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Viewport is a window size in CSS pixels
type Viewport struct {
	Width  int
	Height int
}

// Profile is the browser identity applied to one page
type Profile struct {
	UserAgent string
	Viewport  Viewport
}

// DefaultUserAgents is the fixed user-agent pool
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// DefaultViewports is the fixed viewport pool
var DefaultViewports = []Viewport{
	{Width: 1920, Height: 1080},
	{Width: 1366, Height: 768},
	{Width: 1536, Height: 864},
	{Width: 1440, Height: 900},
	{Width: 1280, Height: 720},
}

// Random is a goroutine-safe wrapper over math/rand. Every randomized
// decision in the pipeline draws from one injected Random so runs can
// be replayed from a seed.
type Random struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandom creates a Random seeded with seed
func NewRandom(seed int64) *Random {
	return &Random{r: rand.New(rand.NewSource(seed))}
}

// Intn returns a value in [0, n). n must be positive.
func (r *Random) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Intn(n)
}

// Float64 returns a value in [0, 1)
func (r *Random) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Float64()
}

// Range returns a value in [min, max)
func (r *Random) Range(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + r.Float64()*(max-min)
}

// Between returns a duration in [min, max)
func (r *Random) Between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return min + time.Duration(r.r.Int63n(int64(max-min)))
}

// Fingerprinter draws page identities from fixed pools
type Fingerprinter struct {
	userAgents []string
	viewports  []Viewport
	rng        *Random
}

// NewFingerprinter creates a fingerprinter. Empty pools use the defaults.
func NewFingerprinter(rng *Random, userAgents []string, viewports []Viewport) *Fingerprinter {
	if len(userAgents) == 0 {
		userAgents = DefaultUserAgents
	}
	if len(viewports) == 0 {
		viewports = DefaultViewports
	}
	return &Fingerprinter{userAgents: userAgents, viewports: viewports, rng: rng}
}

// Next returns a random profile
func (f *Fingerprinter) Next() Profile {
	return Profile{
		UserAgent: f.userAgents[f.rng.Intn(len(f.userAgents))],
		Viewport:  f.viewports[f.rng.Intn(len(f.viewports))],
	}
}

// Sleeper pauses for a duration unless ctx ends first
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// ClockSleeper sleeps on the wall clock
type ClockSleeper struct{}

// Sleep waits for d or ctx cancellation
func (ClockSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DelayRandomizer provides random delays
type DelayRandomizer struct {
	min     time.Duration
	max     time.Duration
	rng     *Random
	sleeper Sleeper
}

// NewDelayRandomizer creates a new delay randomizer
func NewDelayRandomizer(rng *Random, sleeper Sleeper, min, max time.Duration) *DelayRandomizer {
	return &DelayRandomizer{min: min, max: max, rng: rng, sleeper: sleeper}
}

// GetDelay returns a random delay within the configured range
func (dr *DelayRandomizer) GetDelay() time.Duration {
	return dr.rng.Between(dr.min, dr.max)
}

// Wait sleeps for a random delay and returns it
func (dr *DelayRandomizer) Wait(ctx context.Context) (time.Duration, error) {
	d := dr.GetDelay()
	return d, dr.sleeper.Sleep(ctx, d)
}
