// internal/pipeline/batcher.go
package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/valpere/AdScrapexter/internal/antidetect"
	"github.com/valpere/AdScrapexter/internal/config"
	"github.com/valpere/AdScrapexter/internal/continuation"
	"github.com/valpere/AdScrapexter/internal/monitoring"
	"github.com/valpere/AdScrapexter/internal/utils"
	"github.com/valpere/AdScrapexter/pkg/types"
)

// ItemRunner resolves one item, retries included, and reports the attempts used
type ItemRunner interface {
	Run(ctx context.Context, item types.WorkItem) (types.ExtractionRecord, int)
}

// WriteBack persists one settled batch. An error is logged; the run continues.
type WriteBack func(ctx context.Context, results []types.Result) error

// ResultRecorder observes per-item and per-batch progress
type ResultRecorder interface {
	RecordResult(res types.Result)
	RecordBatch()
}

// RunSummary describes one RunAll call
type RunSummary struct {
	Batches  int
	Items    int
	Complete int
	Partial  int
	NotFound int
	Blocked  int
	// Stopped is empty when every batch ran
	Stopped continuation.Reason
}

func (s *RunSummary) add(res types.Result) {
	s.Items++
	switch monitoring.Outcome(res.Record, res.Item.Required) {
	case monitoring.OutcomeComplete:
		s.Complete++
	case monitoring.OutcomePartial:
		s.Partial++
	case monitoring.OutcomeBlocked:
		s.Blocked++
	default:
		s.NotFound++
	}
}

// Batcher runs fixed-width batches of items in parallel with staggered
// starts and randomized pauses between batches
type Batcher struct {
	runner    ItemRunner
	governor  *Governor
	writeBack WriteBack
	recorder  ResultRecorder

	width int
	// stagger offsets each item's start; pacing separates batches
	stagger *antidetect.DelayRandomizer
	pacing  *antidetect.DelayRandomizer
	logger  utils.Logger
}

// NewBatcher creates a batcher. writeBack may be nil.
func NewBatcher(runner ItemRunner, governor *Governor, writeBack WriteBack, cfg config.ExtractionConfig, rng *antidetect.Random, sleeper antidetect.Sleeper, logger utils.Logger) *Batcher {
	if cfg.BatchWidth < 1 {
		cfg.BatchWidth = 1
	}
	return &Batcher{
		runner:    runner,
		governor:  governor,
		writeBack: writeBack,
		width:     cfg.BatchWidth,
		stagger:   antidetect.NewDelayRandomizer(rng, sleeper, 0, cfg.StaggerMax),
		pacing:    antidetect.NewDelayRandomizer(rng, sleeper, cfg.BatchDelayMin, cfg.BatchDelayMax),
		logger:    logger,
	}
}

// WithRecorder reports results and batches to r
func (b *Batcher) WithRecorder(r ResultRecorder) *Batcher {
	b.recorder = r
	return b
}

// Partition splits items into consecutive batches of at most width
func Partition(items []types.WorkItem, width int) [][]types.WorkItem {
	if width < 1 {
		width = 1
	}
	var batches [][]types.WorkItem
	for i := 0; i < len(items); i += width {
		end := i + width
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end])
	}
	return batches
}

// RunAll processes items batch by batch. The governor is consulted before
// each batch. A BLOCKED result stops the run once its batch is written
// back. If ctx ends, the interrupted batch is not written and ctx's error
// is returned.
func (b *Batcher) RunAll(ctx context.Context, items []types.WorkItem) (RunSummary, error) {
	var summary RunSummary
	batches := Partition(items, b.width)

	for i, batch := range batches {
		if ok, reason := b.governor.Check(b.governor.now()); !ok {
			b.logger.Infof("stopping before batch %d/%d: %s", i+1, len(batches), reason)
			summary.Stopped = reason
			return summary, nil
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		log := b.logger.WithFields(map[string]interface{}{"batch": i + 1, "batches": len(batches)})
		log.Infof("starting batch of %d", len(batch))

		results := b.runBatch(ctx, batch)
		if err := ctx.Err(); err != nil {
			log.Warn("batch interrupted; results discarded")
			return summary, err
		}

		summary.Batches++
		blocked := false
		for _, res := range results {
			summary.add(res)
			if b.recorder != nil {
				b.recorder.RecordResult(res)
			}
			if res.Record.IsBlocked() {
				blocked = true
			}
			log.WithField("url", res.Item.SourceURL).Infof("%s after %d attempts", res.Record, res.Attempts)
		}
		if b.recorder != nil {
			b.recorder.RecordBatch()
		}

		if b.writeBack != nil {
			if err := b.writeBack(ctx, results); err != nil {
				log.Warnf("write-back failed: %v", err)
			}
		}

		if blocked {
			b.governor.Block()
			summary.Stopped = continuation.ReasonBlocked
			return summary, nil
		}

		if i < len(batches)-1 {
			delay, err := b.pacing.Wait(ctx)
			if err != nil {
				return summary, err
			}
			log.Infof("paused %s before next batch", delay.Round(time.Second))
		}
	}
	return summary, nil
}

// runBatch runs every item on its own goroutine after an independent
// stagger and waits for all of them to settle
func (b *Batcher) runBatch(ctx context.Context, batch []types.WorkItem) []types.Result {
	results := make([]types.Result, len(batch))
	g, gctx := errgroup.WithContext(ctx)

	for i, item := range batch {
		i, item := i, item
		g.Go(func() error {
			start := time.Now()
			if _, err := b.stagger.Wait(gctx); err != nil && gctx.Err() != nil {
				results[i] = types.Result{Item: item, Record: types.NewRecord(item.Required), Duration: time.Since(start)}
				return nil
			}
			rec, attempts := b.runner.Run(gctx, item)
			results[i] = types.Result{Item: item, Record: rec, Attempts: attempts, Duration: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
