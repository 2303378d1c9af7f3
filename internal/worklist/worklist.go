// internal/worklist/worklist.go

// Package worklist decides which store rows still need extraction and
// writes results back to the rows they came from. Rows are located by
// URL at write time because operators may sort or edit the store while
// a session runs.
package worklist

import (
	"context"

	"github.com/valpere/AdScrapexter/internal/config"
	apperrors "github.com/valpere/AdScrapexter/internal/errors"
	"github.com/valpere/AdScrapexter/internal/patterns"
	"github.com/valpere/AdScrapexter/internal/store"
	"github.com/valpere/AdScrapexter/internal/utils"
	"github.com/valpere/AdScrapexter/pkg/types"
)

// Layout holds 0-based column positions. Advertiser is -1 when absent.
type Layout struct {
	Advertiser int
	URL        int
	Link       int
	Name       int
	Video      int
}

// LayoutFrom resolves the configured column letters
func LayoutFrom(cfg config.LayoutConfig) Layout {
	adv, url, link, name, video := cfg.Columns()
	return Layout{Advertiser: adv, URL: url, Link: link, Name: name, Video: video}
}

// Column returns the position holding f
func (l Layout) Column(f types.Field) int {
	switch f {
	case types.FieldLink:
		return l.Link
	case types.FieldName:
		return l.Name
	case types.FieldVideoID:
		return l.Video
	}
	return -1
}

// Pending builds a fresh work item for every row that still needs a field
// under mode. Rows without a URL are ignored. When a URL repeats, only its
// first row counts.
func Pending(snap *store.Snapshot, layout Layout, mode types.Mode) []types.WorkItem {
	if snap == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(snap.Rows))
	var items []types.WorkItem
	for _, row := range snap.Rows {
		url, _ := row.Cell(layout.URL)
		if url == "" {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}

		link, _ := row.Cell(layout.Link)
		name, _ := row.Cell(layout.Name)
		video, _ := row.Cell(layout.Video)
		advertiser, _ := row.Cell(layout.Advertiser)

		required := Required(mode, link, name, video)
		if required.Empty() {
			continue
		}
		items = append(items, types.WorkItem{
			SourceURL:  url,
			RowKey:     url,
			Advertiser: advertiser,
			Required:   required,
			Existing: map[types.Field]string{
				types.FieldLink:    link,
				types.FieldName:    name,
				types.FieldVideoID: video,
			},
		})
	}
	return items
}

// Required returns the fields a row still needs. Metadata is requested as
// a pair whenever either half is empty. A video identifier is requested
// only when the stored link points at a store host, so a NOT_FOUND link
// (a text ad) never asks for one.
func Required(mode types.Mode, link, name, video string) types.FieldSet {
	fs := types.NewFieldSet()
	if mode != types.ModeVideo && (link == "" || name == "") {
		fs.Add(types.FieldLink)
		fs.Add(types.FieldName)
	}
	if mode != types.ModeMetadata && video == "" && patterns.HasValidStoreHost(link) {
		fs.Add(types.FieldVideoID)
	}
	return fs
}

// Plan turns results into cell writes against a fresh read of the URL
// column. Results whose URL is gone are returned in dropped and produce
// no writes. SKIP fields are never written; BLOCKED records are held back
// so the row stays pending for the next session. A cell that held a value
// before the pass is never overwritten with a sentinel.
func Plan(urls []store.Cell, results []types.Result, layout Layout) (writes []store.CellWrite, dropped []types.Result) {
	rowOf := make(map[string]int, len(urls))
	for _, c := range urls {
		if !c.Present || c.Value == "" {
			continue
		}
		if _, ok := rowOf[c.Value]; !ok {
			rowOf[c.Value] = c.Row
		}
	}

	for _, res := range results {
		if res.Record.IsBlocked() {
			continue
		}
		row, ok := rowOf[res.Item.RowKey]
		if !ok {
			dropped = append(dropped, res)
			continue
		}
		for _, f := range types.AllFields() {
			v := res.Record.Get(f)
			if v == "" || v == types.Skip {
				continue
			}
			if types.IsSentinel(v) && res.Item.ExistingValue(f) != "" {
				continue
			}
			writes = append(writes, store.CellWrite{Row: row, Column: layout.Column(f), Value: v})
		}
	}
	return writes, dropped
}

// WriteReport summarizes one write-back
type WriteReport struct {
	Results int
	Cells   int
	Dropped []string
	Err     error
}

// Recorder receives write-back outcomes
type Recorder interface {
	RecordStoreWrite(err error)
}

// Reconciler reads pending work from a store and writes results back
type Reconciler struct {
	store    store.Store
	layout   Layout
	mode     types.Mode
	retry    *apperrors.Service
	recorder Recorder
	logger   utils.Logger
}

// NewReconciler creates a reconciler over st
func NewReconciler(st store.Store, layout Layout, mode types.Mode, logger utils.Logger) *Reconciler {
	return &Reconciler{
		store:  st,
		layout: layout,
		mode:   mode,
		retry:  apperrors.NewService(),
		logger: logger,
	}
}

// WithRetry sets the retry policy for store calls
func (r *Reconciler) WithRetry(cfg apperrors.RetryConfig) *Reconciler {
	r.retry = r.retry.WithRetryConfig(cfg)
	return r
}

// WithRecorder attaches a write-back recorder
func (r *Reconciler) WithRecorder(rec Recorder) *Reconciler {
	r.recorder = rec
	return r
}

// Snapshot reads the whole store
func (r *Reconciler) Snapshot(ctx context.Context) (*store.Snapshot, error) {
	var snap *store.Snapshot
	err := r.retry.ExecuteWithRetry(ctx, func() error {
		var err error
		snap, err = r.store.Read(ctx)
		return err
	}, "read worklist")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "read worklist")
	}
	return snap, nil
}

// Pending reads the store and returns the rows still needing work
func (r *Reconciler) Pending(ctx context.Context) ([]types.WorkItem, error) {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Pending(snap, r.layout, r.mode), nil
}

// ReconcileWrite re-reads the URL column, resolves each result's current
// row and sends one batched write. Store failures are logged and
// reported; the session carries on.
func (r *Reconciler) ReconcileWrite(ctx context.Context, results []types.Result) (WriteReport, error) {
	report := WriteReport{Results: len(results)}
	if len(results) == 0 {
		return report, nil
	}

	var urls []store.Cell
	err := r.retry.ExecuteWithRetry(ctx, func() error {
		var err error
		urls, err = r.store.ReadColumn(ctx, r.layout.URL)
		return err
	}, "re-read url column")
	if err != nil {
		report.Err = apperrors.Wrap(apperrors.KindStore, err, "re-read url column")
		r.logger.Errorf("write-back skipped: %v", report.Err)
		r.record(report.Err)
		return report, report.Err
	}

	writes, dropped := Plan(urls, results, r.layout)
	for _, res := range dropped {
		report.Dropped = append(report.Dropped, res.Item.RowKey)
		r.logger.WithField("url", res.Item.RowKey).Warnf("%v", apperrors.New(apperrors.KindRowResolution, "url no longer in store; result dropped"))
	}
	report.Cells = len(writes)
	if len(writes) == 0 {
		return report, nil
	}

	err = r.retry.ExecuteWithRetry(ctx, func() error {
		return r.store.BatchWrite(ctx, writes)
	}, "batch write")
	r.record(err)
	if err != nil {
		report.Err = apperrors.Wrap(apperrors.KindStore, err, "batch write")
		r.logger.Errorf("write-back failed for %d cells: %v", len(writes), report.Err)
		return report, report.Err
	}
	r.logger.Infof("wrote %d cells for %d results", len(writes), len(results)-len(dropped))
	return report, nil
}

func (r *Reconciler) record(err error) {
	if r.recorder != nil {
		r.recorder.RecordStoreWrite(err)
	}
}
