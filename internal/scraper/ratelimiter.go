// internal/scraper/ratelimiter.go
package scraper

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Adaptation behavior constants
const (
	// each consecutive failure slows navigation by this fraction of the base interval
	SlowdownPerError = 0.5
	// caps the slowdown caused by consecutive failures
	MaxSlowdown = 4.0
)

// NavigationLimiter caps how fast navigations start across every parallel
// page. Failed navigations stretch the interval; a success restores it.
type NavigationLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex

	baseInterval    time.Duration
	currentInterval time.Duration
	adaptive        bool

	successCount    int
	errorCount      int
	consecutiveErrs int
	waited          time.Duration
}

// LimiterStats is a snapshot of limiter state
type LimiterStats struct {
	CurrentInterval time.Duration `json:"current_interval"`
	BaseInterval    time.Duration `json:"base_interval"`
	SuccessCount    int           `json:"success_count"`
	ErrorCount      int           `json:"error_count"`
	ConsecutiveErrs int           `json:"consecutive_errors"`
	TotalWait       time.Duration `json:"total_wait"`
}

// NewNavigationLimiter allows perSecond navigations per second with a
// burst of one. A non-positive rate disables limiting.
func NewNavigationLimiter(perSecond float64, adaptive bool) *NavigationLimiter {
	if perSecond <= 0 {
		return &NavigationLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	base := time.Duration(float64(time.Second) / perSecond)
	return &NavigationLimiter{
		limiter:         rate.NewLimiter(rate.Every(base), 1),
		baseInterval:    base,
		currentInterval: base,
		adaptive:        adaptive,
	}
}

// Wait blocks until a navigation may start or ctx ends
func (nl *NavigationLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	err := nl.limiter.Wait(ctx)

	nl.mu.Lock()
	nl.waited += time.Since(start)
	nl.mu.Unlock()
	return err
}

// ReportSuccess resets the failure streak and restores the base rate
func (nl *NavigationLimiter) ReportSuccess() {
	nl.mu.Lock()
	defer nl.mu.Unlock()

	nl.successCount++
	nl.consecutiveErrs = 0
	nl.adapt()
}

// ReportError records a failed or blocked navigation
func (nl *NavigationLimiter) ReportError() {
	nl.mu.Lock()
	defer nl.mu.Unlock()

	nl.errorCount++
	nl.consecutiveErrs++
	nl.adapt()
}

// adapt recomputes the interval; callers hold mu
func (nl *NavigationLimiter) adapt() {
	if !nl.adaptive || nl.baseInterval == 0 {
		return
	}
	factor := math.Min(1+float64(nl.consecutiveErrs)*SlowdownPerError, MaxSlowdown)
	next := time.Duration(float64(nl.baseInterval) * factor)
	if next == nl.currentInterval {
		return
	}
	nl.currentInterval = next
	nl.limiter.SetLimit(rate.Every(next))
}

// Stats returns the current limiter state
func (nl *NavigationLimiter) Stats() LimiterStats {
	nl.mu.RLock()
	defer nl.mu.RUnlock()

	return LimiterStats{
		CurrentInterval: nl.currentInterval,
		BaseInterval:    nl.baseInterval,
		SuccessCount:    nl.successCount,
		ErrorCount:      nl.errorCount,
		ConsecutiveErrs: nl.consecutiveErrs,
		TotalWait:       nl.waited,
	}
}

// Reset clears counters and restores the base rate
func (nl *NavigationLimiter) Reset() {
	nl.mu.Lock()
	defer nl.mu.Unlock()

	nl.successCount = 0
	nl.errorCount = 0
	nl.consecutiveErrs = 0
	nl.waited = 0
	if nl.baseInterval > 0 {
		nl.currentInterval = nl.baseInterval
		nl.limiter.SetLimit(rate.Every(nl.baseInterval))
	}
}
