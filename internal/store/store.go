// internal/store/store.go

// Package store reads and writes the operator worklist. Every backend
// presents the same grid view: data rows (header excluded) of trimmed
// strings, addressed by a 0-based row index and column index.
package store

import (
	"context"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/valpere/AdScrapexter/internal/config"
	apperrors "github.com/valpere/AdScrapexter/internal/errors"
	"github.com/valpere/AdScrapexter/internal/utils"
)

// Row is one data row. Cells shorter than the layout mean trailing cells
// are missing, which is not the same as present and empty.
type Row struct {
	Index int
	Cells []string
}

// Cell returns the trimmed value at column i and whether it exists
func (r Row) Cell(i int) (string, bool) {
	if i < 0 || i >= len(r.Cells) {
		return "", false
	}
	return r.Cells[i], true
}

// Snapshot is a point-in-time read of the whole worklist
type Snapshot struct {
	Rows []Row
}

// Cell is a single value from a column read
type Cell struct {
	Row     int
	Value   string
	Present bool
}

// CellWrite targets one cell
type CellWrite struct {
	Row    int
	Column int
	Value  string
}

// Store is a tabular worklist backend. Implementations hold no locks
// across calls; callers re-read before writing.
type Store interface {
	Read(ctx context.Context) (*Snapshot, error)
	ReadColumn(ctx context.Context, column int) ([]Cell, error)
	BatchWrite(ctx context.Context, writes []CellWrite) error
	Close() error
}

// New opens the configured backend. width is the number of leading
// columns the layout needs.
func New(ctx context.Context, cfg config.StoreConfig, width int, logger utils.Logger) (Store, error) {
	if width <= 0 {
		return nil, apperrors.New(apperrors.KindConfig, "store width must be positive")
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	switch cfg.Backend {
	case "sheets":
		opts, err := SheetsAuth(ctx, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return NewSheetsStore(ctx, cfg.SpreadsheetID, cfg.Sheet, width, opts...)
	case "excel":
		return OpenExcelStore(cfg.Path, cfg.Sheet, width)
	case "csv":
		return NewCSVStore(cfg.Path, width), nil
	case "sqlite", "postgres", "mysql":
		dsn := cfg.DSN
		if dsn == "" && cfg.Backend == "sqlite" {
			dsn = cfg.Path
		}
		return OpenSQLStore(ctx, cfg.Backend, dsn, cfg.Table, width)
	case "mongodb":
		return OpenMongoStore(ctx, cfg.URI, cfg.Database, cfg.Collection, width)
	case "memory":
		logger.Warn("memory store selected; results are discarded on exit")
		return NewMemoryStore(nil), nil
	}
	return nil, apperrors.Newf(apperrors.KindConfig, "unknown store backend %q", cfg.Backend)
}

// ColumnLetter converts a 0-based column index to its spreadsheet letter
func ColumnLetter(idx int) string {
	name, err := excelize.ColumnNumberToName(idx + 1)
	if err != nil {
		return ""
	}
	return name
}

func trimCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

// columnOf projects a snapshot onto one column
func columnOf(snap *Snapshot, column int) []Cell {
	cells := make([]Cell, 0, len(snap.Rows))
	for _, r := range snap.Rows {
		v, ok := r.Cell(column)
		cells = append(cells, Cell{Row: r.Index, Value: v, Present: ok})
	}
	return cells
}

func checkWrites(writes []CellWrite, width int) error {
	for _, w := range writes {
		if w.Row < 0 || w.Column < 0 || w.Column >= width {
			return apperrors.Newf(apperrors.KindStore, "cell out of range: row %d column %d", w.Row, w.Column)
		}
	}
	return nil
}
