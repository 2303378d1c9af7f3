// internal/store/sheets.go
package store

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	apperrors "github.com/valpere/AdScrapexter/internal/errors"
)

// headerRows is the number of sheet rows above the first data row
const headerRows = 1

// SheetsStore reads and writes a Google Sheets tab through A1 ranges
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	sheet         string
	width         int
}

// SheetsAuth resolves client options from a service account file. An
// empty path falls back to application default credentials.
func SheetsAuth(ctx context.Context, credentialsFile string) ([]option.ClientOption, error) {
	var creds *google.Credentials
	var err error
	if credentialsFile == "" {
		creds, err = google.FindDefaultCredentials(ctx, sheets.SpreadsheetsScope)
	} else {
		var data []byte
		data, err = os.ReadFile(credentialsFile)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindConfig, err, "read sheets credentials")
		}
		creds, err = google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfig, err, "load sheets credentials")
	}
	return []option.ClientOption{option.WithCredentials(creds)}, nil
}

// NewSheetsStore creates a store on one tab of a spreadsheet
func NewSheetsStore(ctx context.Context, spreadsheetID, sheet string, width int, opts ...option.ClientOption) (*SheetsStore, error) {
	if spreadsheetID == "" {
		return nil, apperrors.New(apperrors.KindConfig, "spreadsheet id is required")
	}
	if sheet == "" {
		sheet = "Sheet1"
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "create sheets client")
	}
	return &SheetsStore{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet, width: width}, nil
}

func (s *SheetsStore) rangeRef(ref string) string {
	name := s.sheet
	if strings.ContainsAny(name, " '!:") {
		name = "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name + "!" + ref
}

func (s *SheetsStore) get(ctx context.Context, ref string) ([][]interface{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeRef(ref)).Context(ctx).Do()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "read sheet range "+ref)
	}
	if len(resp.Values) <= headerRows {
		return nil, nil
	}
	return resp.Values[headerRows:], nil
}

// Read fetches columns A through the layout width
func (s *SheetsStore) Read(ctx context.Context) (*Snapshot, error) {
	last := ColumnLetter(s.width - 1)
	values, err := s.get(ctx, "A:"+last)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Rows: make([]Row, 0, len(values))}
	for i, raw := range values {
		snap.Rows = append(snap.Rows, Row{Index: i, Cells: trimCells(stringify(raw))})
	}
	return snap, nil
}

// ReadColumn fetches a single column
func (s *SheetsStore) ReadColumn(ctx context.Context, column int) ([]Cell, error) {
	letter := ColumnLetter(column)
	values, err := s.get(ctx, letter+":"+letter)
	if err != nil {
		return nil, err
	}
	cells := make([]Cell, 0, len(values))
	for i, raw := range values {
		c := Cell{Row: i}
		if len(raw) > 0 {
			c.Value = strings.TrimSpace(fmt.Sprint(raw[0]))
			c.Present = true
		}
		cells = append(cells, c)
	}
	return cells, nil
}

// BatchWrite sends every cell in one RAW values.batchUpdate call
func (s *SheetsStore) BatchWrite(ctx context.Context, writes []CellWrite) error {
	if len(writes) == 0 {
		return nil
	}
	if err := checkWrites(writes, s.width); err != nil {
		return err
	}
	data := make([]*sheets.ValueRange, 0, len(writes))
	for _, w := range writes {
		data = append(data, &sheets.ValueRange{
			Range:  s.rangeRef(fmt.Sprintf("%s%d", ColumnLetter(w.Column), w.Row+headerRows+1)),
			Values: [][]interface{}{{w.Value}},
		})
	}
	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: data}
	if _, err := s.svc.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return apperrors.Wrap(apperrors.KindStore, err, "batch update sheet")
	}
	return nil
}

// Close is a no-op; the HTTP client has no session to release
func (s *SheetsStore) Close() error { return nil }

func stringify(raw []interface{}) []string {
	out := make([]string, len(raw))
	for i, v := range raw {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}
