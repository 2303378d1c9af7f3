// internal/store/memory.go
package store

import (
	"context"
	"sync"

	"github.com/valpere/AdScrapexter/internal/utils"
)

// MemoryStore holds data rows in memory. Used by tests and as a scratch store.
type MemoryStore struct {
	mu       sync.Mutex
	rows     [][]string
	writes   [][]CellWrite
	writeErr error
	readErr  error
}

// NewMemoryStore copies rows (data only, no header)
func NewMemoryStore(rows [][]string) *MemoryStore {
	m := &MemoryStore{}
	for _, r := range rows {
		m.rows = append(m.rows, append([]string(nil), r...))
	}
	return m
}

// Read returns a trimmed copy of every row
func (m *MemoryStore) Read(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	snap := &Snapshot{Rows: make([]Row, 0, len(m.rows))}
	for i, r := range m.rows {
		snap.Rows = append(snap.Rows, Row{Index: i, Cells: trimCells(r)})
	}
	return snap, nil
}

// ReadColumn projects the current rows onto one column
func (m *MemoryStore) ReadColumn(ctx context.Context, column int) ([]Cell, error) {
	snap, err := m.Read(ctx)
	if err != nil {
		return nil, err
	}
	return columnOf(snap, column), nil
}

// BatchWrite applies writes, growing rows as needed
func (m *MemoryStore) BatchWrite(ctx context.Context, writes []CellWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	if len(writes) == 0 {
		return nil
	}
	for _, w := range writes {
		for len(m.rows) <= w.Row {
			m.rows = append(m.rows, nil)
		}
		for len(m.rows[w.Row]) <= w.Column {
			m.rows[w.Row] = append(m.rows[w.Row], "")
		}
		m.rows[w.Row][w.Column] = w.Value
	}
	m.writes = append(m.writes, append([]CellWrite(nil), writes...))
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }

// Rows returns a copy of the raw rows
func (m *MemoryStore) Rows() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.rows))
	for i, r := range m.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// Writes returns every accepted BatchWrite call in order
func (m *MemoryStore) Writes() [][]CellWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]CellWrite(nil), m.writes...)
}

// FailWrites makes later BatchWrite calls return err
func (m *MemoryStore) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// FailReads makes later Read and ReadColumn calls return err
func (m *MemoryStore) FailReads(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// Reorder replaces the rows, simulating an operator sorting the sheet mid-session
func (m *MemoryStore) Reorder(rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = nil
	for _, r := range rows {
		m.rows = append(m.rows, append([]string(nil), r...))
	}
}

// DryRun reads through to inner and logs writes instead of sending them
type DryRun struct {
	Store
	logger utils.Logger
}

// NewDryRun wraps inner
func NewDryRun(inner Store, logger utils.Logger) *DryRun {
	return &DryRun{Store: inner, logger: logger}
}

// BatchWrite logs each cell
func (d *DryRun) BatchWrite(ctx context.Context, writes []CellWrite) error {
	for _, w := range writes {
		d.logger.WithFields(map[string]interface{}{
			"row":    w.Row,
			"column": ColumnLetter(w.Column),
		}).Infof("dry-run write %q", w.Value)
	}
	return nil
}
