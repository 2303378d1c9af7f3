// internal/store/excel.go
package store

import (
	"context"
	"sync"

	"github.com/xuri/excelize/v2"

	apperrors "github.com/valpere/AdScrapexter/internal/errors"
)

// ExcelStore keeps the worklist in an .xlsx workbook on disk. The file is
// saved after every batch so an interrupted session loses nothing written.
type ExcelStore struct {
	mu    sync.Mutex
	file  *excelize.File
	sheet string
	width int
}

// OpenExcelStore opens an existing workbook. An empty sheet selects the first one.
func OpenExcelStore(path, sheet string, width int) (*ExcelStore, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "open workbook")
	}
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		f.Close()
		return nil, apperrors.Newf(apperrors.KindStore, "workbook has no sheet %q", sheet)
	}
	return &ExcelStore{file: f, sheet: sheet, width: width}, nil
}

// Read returns every row below the header
func (s *ExcelStore) Read(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.file.GetRows(s.sheet)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "read workbook rows")
	}
	snap := &Snapshot{}
	for i := headerRows; i < len(rows); i++ {
		cells := rows[i]
		if len(cells) > s.width {
			cells = cells[:s.width]
		}
		snap.Rows = append(snap.Rows, Row{Index: i - headerRows, Cells: trimCells(cells)})
	}
	return snap, nil
}

// ReadColumn projects a fresh read onto one column
func (s *ExcelStore) ReadColumn(ctx context.Context, column int) ([]Cell, error) {
	snap, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}
	return columnOf(snap, column), nil
}

// BatchWrite sets each cell then saves the workbook once
func (s *ExcelStore) BatchWrite(ctx context.Context, writes []CellWrite) error {
	if len(writes) == 0 {
		return nil
	}
	if err := checkWrites(writes, s.width); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range writes {
		cell, err := excelize.CoordinatesToCellName(w.Column+1, w.Row+headerRows+1)
		if err != nil {
			return apperrors.Wrap(apperrors.KindStore, err, "cell name")
		}
		if err := s.file.SetCellStr(s.sheet, cell, w.Value); err != nil {
			return apperrors.Wrap(apperrors.KindStore, err, "set cell "+cell)
		}
	}
	if err := s.file.Save(); err != nil {
		return apperrors.Wrap(apperrors.KindStore, err, "save workbook")
	}
	return nil
}

// Close releases the workbook
func (s *ExcelStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
