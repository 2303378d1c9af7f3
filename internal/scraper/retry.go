// internal/scraper/retry.go
package scraper

import (
	"context"
	"math"
	"time"

	"github.com/valpere/AdScrapexter/internal/antidetect"
	"github.com/valpere/AdScrapexter/internal/config"
	"github.com/valpere/AdScrapexter/internal/utils"
	"github.com/valpere/AdScrapexter/pkg/types"
)

// Runner performs one attempt for an item
type Runner interface {
	Run(ctx context.Context, item types.WorkItem) types.ExtractionRecord
}

// Retrier repeats attempts with exponential backoff until the requested
// fields resolve, the target blocks, or attempts run out
type Retrier struct {
	runner      Runner
	maxAttempts int
	base        time.Duration
	multiplier  float64
	jitter      time.Duration
	rng         *antidetect.Random
	sleeper     antidetect.Sleeper
	logger      utils.Logger
}

// NewRetrier creates a retrier around runner
func NewRetrier(runner Runner, cfg config.ExtractionConfig, rng *antidetect.Random, sleeper antidetect.Sleeper, logger utils.Logger) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	return &Retrier{
		runner:      runner,
		maxAttempts: cfg.MaxAttempts,
		base:        cfg.BackoffBase,
		multiplier:  cfg.BackoffMultiplier,
		jitter:      cfg.RetryJitter,
		rng:         rng,
		sleeper:     sleeper,
		logger:      logger,
	}
}

// Run returns the accepted record and the number of attempts used.
// Values resolved by an earlier attempt survive later ones.
func (r *Retrier) Run(ctx context.Context, item types.WorkItem) (types.ExtractionRecord, int) {
	best := types.NewRecord(item.Required)

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		log := r.logger.WithFields(map[string]interface{}{"url": item.SourceURL, "attempt": attempt})

		rec := r.runner.Run(ctx, item)
		if rec.IsBlocked() {
			return rec, attempt
		}
		merge(&best, rec)
		if best.Complete(item.Required) {
			return best, attempt
		}
		if attempt == r.maxAttempts {
			break
		}

		delay := r.Backoff(attempt)
		log.Infof("incomplete (%s), retrying in %s", rec, delay)
		if err := r.sleeper.Sleep(ctx, delay); err != nil {
			log.Warnf("retry abandoned: %v", err)
			return best.Exhausted(item.Required), attempt
		}
	}
	return best.Exhausted(item.Required), r.maxAttempts
}

// Backoff returns the pause after the given failed attempt
func (r *Retrier) Backoff(attempt int) time.Duration {
	d := time.Duration(float64(r.base) * math.Pow(r.multiplier, float64(attempt-1)))
	if r.jitter > 0 {
		d += r.rng.Between(0, r.jitter)
	}
	return d
}

// merge copies into dst what src resolved for fields dst has not.
// Opportunistic fields dst holds as SKIP take src's outcome as is.
func merge(dst *types.ExtractionRecord, src types.ExtractionRecord) {
	for _, f := range types.AllFields() {
		v := src.Get(f)
		switch dst.Get(f) {
		case types.NotFound:
			if src.Resolved(f) {
				dst.Fill(f, v)
			}
		case types.Skip:
			if src.Resolved(f) || v == types.NotFound {
				dst.Set(f, v)
			}
		}
	}
}
