// internal/worklist/worklist_test.go
package worklist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/AdScrapexter/internal/config"
	apperrors "github.com/valpere/AdScrapexter/internal/errors"
	"github.com/valpere/AdScrapexter/internal/store"
	"github.com/valpere/AdScrapexter/internal/utils"
	"github.com/valpere/AdScrapexter/pkg/types"
)

const (
	acmeURL  = "https://adstransparency.google.com/advertiser/AR1/creative/CR1"
	betaURL  = "https://adstransparency.google.com/advertiser/AR2/creative/CR2"
	gammaURL = "https://adstransparency.google.com/advertiser/AR3/creative/CR3"
	acmeLink = "https://play.google.com/store/apps/details?id=com.acme"
)

var layout = LayoutFrom(config.DefaultConfig().Layout)

type writeRecorder struct {
	errs []error
}

func (w *writeRecorder) RecordStoreWrite(err error) { w.errs = append(w.errs, err) }

func noRetry() apperrors.RetryConfig {
	return apperrors.RetryConfig{MaxRetries: 0}
}

func snapshot(rows ...[]string) *store.Snapshot {
	snap := &store.Snapshot{}
	for i, r := range rows {
		snap.Rows = append(snap.Rows, store.Row{Index: i, Cells: r})
	}
	return snap
}

func TestLayoutFrom(t *testing.T) {
	assert.Equal(t, Layout{Advertiser: 0, URL: 1, Link: 2, Name: 3, Video: 4}, layout)
	assert.Equal(t, 2, layout.Column(types.FieldLink))
	assert.Equal(t, 4, layout.Column(types.FieldVideoID))
	assert.Equal(t, -1, layout.Column(types.Field("other")))
}

func TestRequired(t *testing.T) {
	tests := []struct {
		name             string
		mode             types.Mode
		link, title, vid string
		want             types.FieldSet
	}{
		{"empty row unified", types.ModeUnified, "", "", "", types.NewFieldSet(types.FieldLink, types.FieldName)},
		{"name missing", types.ModeMetadata, acmeLink, "", "", types.NewFieldSet(types.FieldLink, types.FieldName)},
		{"video after link", types.ModeUnified, acmeLink, "Acme", "", types.NewFieldSet(types.FieldVideoID)},
		{"video mode ignores metadata", types.ModeVideo, "", "", "", types.NewFieldSet()},
		{"text ad disables video", types.ModeVideo, types.NotFound, "Acme", "", types.NewFieldSet()},
		{"non store link", types.ModeUnified, "https://acme.example/app", "Acme", "", types.NewFieldSet()},
		{"metadata mode skips video", types.ModeMetadata, acmeLink, "Acme", "", types.NewFieldSet()},
		{"complete", types.ModeUnified, acmeLink, "Acme", "0123456789abcdef", types.NewFieldSet()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Required(tt.mode, tt.link, tt.title, tt.vid))
		})
	}
}

func TestPendingExcludesCompleteRows(t *testing.T) {
	snap := snapshot(
		[]string{"Acme", acmeURL},
		[]string{"Beta", betaURL, acmeLink, "Beta", "0123456789abcdef"},
		[]string{"", ""},
		[]string{"Gamma", gammaURL, acmeLink, "Gamma"},
	)

	items := Pending(snap, layout, types.ModeUnified)
	require.Len(t, items, 2)

	assert.Equal(t, acmeURL, items[0].SourceURL)
	assert.Equal(t, acmeURL, items[0].RowKey)
	assert.Equal(t, "Acme", items[0].Advertiser)
	assert.True(t, items[0].Required.NeedsMetadata())
	assert.False(t, items[0].Required.NeedsVideo())

	assert.Equal(t, gammaURL, items[1].SourceURL)
	assert.Equal(t, types.NewFieldSet(types.FieldVideoID), items[1].Required)
	assert.Equal(t, acmeLink, items[1].ExistingValue(types.FieldLink))
}

func TestPendingFirstDuplicateWins(t *testing.T) {
	snap := snapshot(
		[]string{"Acme", acmeURL, acmeLink, "Acme", "0123456789abcdef"},
		[]string{"Acme again", acmeURL},
	)
	assert.Empty(t, Pending(snap, layout, types.ModeUnified))
	assert.Nil(t, Pending(nil, layout, types.ModeUnified))
}

func TestPlanDropsVanishedURL(t *testing.T) {
	urls := []store.Cell{
		{Row: 0, Value: gammaURL, Present: true},
		{Row: 1, Value: acmeURL, Present: true},
	}
	results := []types.Result{
		{
			Item:   types.WorkItem{RowKey: betaURL},
			Record: types.ExtractionRecord{Link: acmeLink, Name: "Beta", VideoID: types.Skip},
		},
		{
			Item:   types.WorkItem{RowKey: acmeURL},
			Record: types.ExtractionRecord{Link: acmeLink, Name: "Acme", VideoID: types.Skip},
		},
	}

	writes, dropped := Plan(urls, results, layout)
	require.Len(t, dropped, 1)
	assert.Equal(t, betaURL, dropped[0].Item.RowKey)
	assert.Equal(t, []store.CellWrite{
		{Row: 1, Column: 2, Value: acmeLink},
		{Row: 1, Column: 3, Value: "Acme"},
	}, writes)
}

func TestPlanHoldsBackBlocked(t *testing.T) {
	urls := []store.Cell{{Row: 0, Value: acmeURL, Present: true}}
	writes, dropped := Plan(urls, []types.Result{{Item: types.WorkItem{RowKey: acmeURL}, Record: types.BlockedRecord()}}, layout)
	assert.Empty(t, writes)
	assert.Empty(t, dropped)
}

func TestReconcileWriteAcme(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryStore([][]string{{"Acme", acmeURL, "", "", ""}})
	rec := &writeRecorder{}
	r := NewReconciler(m, layout, types.ModeMetadata, utils.NewNopLogger()).WithRetry(noRetry()).WithRecorder(rec)

	items, err := r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)

	report, err := r.ReconcileWrite(ctx, []types.Result{{
		Item:   items[0],
		Record: types.ExtractionRecord{Link: acmeLink, Name: "Acme", VideoID: types.Skip},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Cells)
	assert.Empty(t, report.Dropped)
	assert.Equal(t, []string{"Acme", acmeURL, acmeLink, "Acme", ""}, m.Rows()[0], "video column untouched")
	assert.Equal(t, []error{nil}, rec.errs)
}

func TestReconcileWriteExhausted(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryStore([][]string{{"Acme", acmeURL}})
	r := NewReconciler(m, layout, types.ModeMetadata, utils.NewNopLogger()).WithRetry(noRetry())

	required := types.NewFieldSet(types.FieldLink, types.FieldName)
	_, err := r.ReconcileWrite(ctx, []types.Result{{
		Item:   types.WorkItem{RowKey: acmeURL, Required: required},
		Record: types.NewRecord(required),
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", acmeURL, types.NotFound, types.NotFound}, m.Rows()[0])

	items, err := r.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, items, "sentinels count as filled")
}

func TestPlanKeepsStoredValueWhenPairMisses(t *testing.T) {
	row := []string{"Acme", acmeURL, acmeLink, "", "0123456789abcdef"}
	items := Pending(snapshot(row), layout, types.ModeMetadata)
	require.Len(t, items, 1)
	require.Equal(t, types.NewFieldSet(types.FieldLink, types.FieldName), items[0].Required)

	urls := []store.Cell{{Row: 0, Value: acmeURL, Present: true}}
	exhausted := types.NewRecord(items[0].Required).Exhausted(items[0].Required)
	writes, dropped := Plan(urls, []types.Result{{Item: items[0], Record: exhausted}}, layout)

	assert.Empty(t, dropped)
	assert.Equal(t, []store.CellWrite{{Row: 0, Column: 3, Value: types.NotFound}}, writes, "stored link survives")

	// a fresh real value still replaces the stored one
	found := types.ExtractionRecord{Link: "https://apps.apple.com/us/app/acme/id9", Name: "Acme", VideoID: types.Skip}
	writes, _ = Plan(urls, []types.Result{{Item: items[0], Record: found}}, layout)
	assert.Equal(t, []store.CellWrite{
		{Row: 0, Column: 2, Value: "https://apps.apple.com/us/app/acme/id9"},
		{Row: 0, Column: 3, Value: "Acme"},
	}, writes)
}

func TestReconcileWriteFollowsReorderedRows(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryStore([][]string{{"Acme", acmeURL}, {"Beta", betaURL}})
	r := NewReconciler(m, layout, types.ModeMetadata, utils.NewNopLogger()).WithRetry(noRetry())

	items, err := r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// operator sorts the sheet and deletes Acme mid-session
	m.Reorder([][]string{{"Gamma", gammaURL}, {"Beta", betaURL}})

	report, err := r.ReconcileWrite(ctx, []types.Result{
		{Item: items[0], Record: types.ExtractionRecord{Link: acmeLink, Name: "Acme", VideoID: types.Skip}},
		{Item: items[1], Record: types.ExtractionRecord{Link: types.NotFound, Name: "Beta", VideoID: types.Skip}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{acmeURL}, report.Dropped)
	assert.Equal(t, 2, report.Cells)

	rows := m.Rows()
	assert.Equal(t, []string{"Gamma", gammaURL}, rows[0])
	assert.Equal(t, []string{"Beta", betaURL, types.NotFound, "Beta"}, rows[1])
}

func TestReconcileWriteReportsStoreFailure(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryStore([][]string{{"Acme", acmeURL}})
	rec := &writeRecorder{}
	r := NewReconciler(m, layout, types.ModeMetadata, utils.NewNopLogger()).WithRetry(noRetry()).WithRecorder(rec)
	m.FailWrites(errors.New("permission denied"))

	report, err := r.ReconcileWrite(ctx, []types.Result{{
		Item:   types.WorkItem{RowKey: acmeURL},
		Record: types.ExtractionRecord{Link: acmeLink, Name: "Acme", VideoID: types.Skip},
	}})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindStore))
	assert.Equal(t, err, report.Err)
	require.Len(t, rec.errs, 1)
	assert.Error(t, rec.errs[0])
}

func TestReconcileWriteReadFailure(t *testing.T) {
	m := store.NewMemoryStore(nil)
	m.FailReads(errors.New("permission denied"))
	r := NewReconciler(m, layout, types.ModeMetadata, utils.NewNopLogger()).WithRetry(noRetry())

	_, err := r.Pending(context.Background())
	assert.True(t, apperrors.IsKind(err, apperrors.KindStore))

	report, err := r.ReconcileWrite(context.Background(), []types.Result{{Item: types.WorkItem{RowKey: acmeURL}}})
	assert.Error(t, err)
	assert.Equal(t, 0, report.Cells)
}

func TestReconcileWriteEmpty(t *testing.T) {
	r := NewReconciler(store.NewMemoryStore(nil), layout, types.ModeUnified, utils.NewNopLogger())
	report, err := r.ReconcileWrite(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, WriteReport{}, report)
}
