// internal/pipeline/governor.go

// Package pipeline drives a session: it batches pending work items through
// the retrier, writes each batch back and hands off to a successor
// session when time runs out, the target blocks, or work remains.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/valpere/AdScrapexter/internal/continuation"
	"github.com/valpere/AdScrapexter/internal/utils"
)

// Governor enforces the session's wall-clock budget and owns the
// one-shot continuation signal
type Governor struct {
	sessionID string
	started   time.Time
	budget    time.Duration
	blocked   atomic.Bool
	emitter   *continuation.OneShot
	now       func() time.Time
	logger    utils.Logger
}

// NewGovernor starts the session clock now
func NewGovernor(sessionID string, budget time.Duration, emitter *continuation.OneShot, logger utils.Logger) *Governor {
	return &Governor{
		sessionID: sessionID,
		started:   time.Now(),
		budget:    budget,
		emitter:   emitter,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the clock and restarts the session on it
func (g *Governor) WithClock(now func() time.Time) *Governor {
	g.now = now
	g.started = now()
	return g
}

// SessionID identifies the session in continuation signals
func (g *Governor) SessionID() string { return g.sessionID }

// Elapsed is the session age at now
func (g *Governor) Elapsed(now time.Time) time.Duration {
	return now.Sub(g.started)
}

// Check reports whether another batch may start at now. A block signal
// wins over the time budget.
func (g *Governor) Check(now time.Time) (bool, continuation.Reason) {
	if g.blocked.Load() {
		return false, continuation.ReasonBlocked
	}
	if g.budget > 0 && g.Elapsed(now) >= g.budget {
		return false, continuation.ReasonTimeLimit
	}
	return true, ""
}

// Block records a block signal; no further batch will start
func (g *Governor) Block() {
	if !g.blocked.Swap(true) {
		g.logger.Warn("block signal received; stopping after the current batch")
	}
}

// Blocked reports whether Block was called
func (g *Governor) Blocked() bool {
	return g.blocked.Load()
}

// HandOff emits the continuation signal. Only the first call has any
// effect and delivery failures never surface.
func (g *Governor) HandOff(ctx context.Context, reason continuation.Reason) {
	if g.emitter == nil {
		return
	}
	_ = g.emitter.Emit(ctx, continuation.Signal{
		SessionID: g.sessionID,
		Reason:    reason,
		EmittedAt: g.now().UTC(),
	})
}
