// internal/pipeline/runner.go
package pipeline

import (
	"context"

	"github.com/valpere/AdScrapexter/internal/continuation"
	apperrors "github.com/valpere/AdScrapexter/internal/errors"
	"github.com/valpere/AdScrapexter/internal/utils"
	"github.com/valpere/AdScrapexter/internal/worklist"
	"github.com/valpere/AdScrapexter/pkg/types"
)

// PendingSource supplies a fresh pending worklist
type PendingSource interface {
	Pending(ctx context.Context) ([]types.WorkItem, error)
}

// WriteBackTo adapts a reconciler into a batch write-back
func WriteBackTo(rec *worklist.Reconciler) WriteBack {
	return func(ctx context.Context, results []types.Result) error {
		_, err := rec.ReconcileWrite(ctx, results)
		return err
	}
}

// PassReport describes one full pass over the worklist
type PassReport struct {
	Pending   int
	Remaining int
	Summary   RunSummary
	// HandOff is the continuation reason emitted, if any
	HandOff continuation.Reason
}

// Runner performs one pass: read pending, run batches, hand off
type Runner struct {
	source   PendingSource
	batcher  *Batcher
	governor *Governor
	logger   utils.Logger
}

// NewRunner wires a pass
func NewRunner(source PendingSource, batcher *Batcher, governor *Governor, logger utils.Logger) *Runner {
	return &Runner{source: source, batcher: batcher, governor: governor, logger: logger}
}

// Run executes one pass. A block or exhausted budget emits the matching
// continuation and returns ErrBlocked or ErrSessionBudget. Rows still
// pending after a full pass emit more_work and return nil.
func (r *Runner) Run(ctx context.Context) (PassReport, error) {
	var report PassReport

	items, err := r.source.Pending(ctx)
	if err != nil {
		return report, err
	}
	report.Pending = len(items)
	if len(items) == 0 {
		r.logger.Info("nothing pending; worklist complete")
		return report, nil
	}
	r.logger.Infof("%d items pending", len(items))

	summary, err := r.batcher.RunAll(ctx, items)
	report.Summary = summary
	if err != nil {
		return report, err
	}
	r.logger.Infof("pass done: batches=%d items=%d complete=%d partial=%d not_found=%d blocked=%d",
		summary.Batches, summary.Items, summary.Complete, summary.Partial, summary.NotFound, summary.Blocked)

	switch summary.Stopped {
	case continuation.ReasonBlocked:
		report.HandOff = continuation.ReasonBlocked
		r.governor.HandOff(ctx, report.HandOff)
		return report, apperrors.ErrBlocked
	case continuation.ReasonTimeLimit:
		report.HandOff = continuation.ReasonTimeLimit
		r.governor.HandOff(ctx, report.HandOff)
		return report, apperrors.ErrSessionBudget
	}

	remaining, err := r.source.Pending(ctx)
	if err != nil {
		r.logger.Warnf("could not re-check pending rows: %v", err)
		return report, nil
	}
	report.Remaining = len(remaining)
	if len(remaining) > 0 {
		r.logger.Infof("%d rows still pending; requesting another session", len(remaining))
		report.HandOff = continuation.ReasonMoreWork
		r.governor.HandOff(ctx, report.HandOff)
	}
	return report, nil
}
