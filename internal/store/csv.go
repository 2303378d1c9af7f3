// internal/store/csv.go
package store

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/valpere/AdScrapexter/internal/errors"
)

// CSVStore keeps the worklist in a CSV file with a header row. Writes
// rewrite the whole file through a temp file and rename.
type CSVStore struct {
	mu    sync.Mutex
	path  string
	width int
}

// NewCSVStore creates a store on path. The file is opened on every call.
func NewCSVStore(path string, width int) *CSVStore {
	return &CSVStore{path: path, width: width}
}

func (s *CSVStore) load() ([][]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "parse csv")
	}
	return records, nil
}

// Read returns every record below the header
func (s *CSVStore) Read(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{}
	for i := headerRows; i < len(records); i++ {
		cells := records[i]
		if len(cells) > s.width {
			cells = cells[:s.width]
		}
		snap.Rows = append(snap.Rows, Row{Index: i - headerRows, Cells: trimCells(cells)})
	}
	return snap, nil
}

// ReadColumn projects a fresh read onto one column
func (s *CSVStore) ReadColumn(ctx context.Context, column int) ([]Cell, error) {
	snap, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}
	return columnOf(snap, column), nil
}

// BatchWrite applies writes to the current file contents and replaces it
func (s *CSVStore) BatchWrite(ctx context.Context, writes []CellWrite) error {
	if len(writes) == 0 {
		return nil
	}
	if err := checkWrites(writes, s.width); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	for _, w := range writes {
		r := w.Row + headerRows
		for len(records) <= r {
			records = append(records, nil)
		}
		for len(records[r]) <= w.Column {
			records[r] = append(records[r], "")
		}
		records[r][w.Column] = w.Value
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".worklist-*.csv")
	if err != nil {
		return apperrors.Wrap(apperrors.KindStore, err, "create temp csv")
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	if err := cw.WriteAll(records); err != nil {
		tmp.Close()
		return apperrors.Wrap(apperrors.KindStore, err, "write csv")
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Wrap(apperrors.KindStore, err, "close temp csv")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return apperrors.Wrap(apperrors.KindStore, err, "replace csv")
	}
	return nil
}

// Close is a no-op
func (s *CSVStore) Close() error { return nil }
