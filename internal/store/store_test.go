// internal/store/store_test.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/valpere/AdScrapexter/internal/config"
	apperrors "github.com/valpere/AdScrapexter/internal/errors"
	"github.com/valpere/AdScrapexter/internal/utils"
)

func TestRowCell(t *testing.T) {
	r := Row{Index: 3, Cells: []string{"Acme", "https://x", ""}}

	v, ok := r.Cell(2)
	assert.True(t, ok, "present and empty")
	assert.Equal(t, "", v)

	_, ok = r.Cell(3)
	assert.False(t, ok, "missing")
	_, ok = r.Cell(-1)
	assert.False(t, ok)
}

func TestColumnLetter(t *testing.T) {
	assert.Equal(t, "A", ColumnLetter(0))
	assert.Equal(t, "E", ColumnLetter(4))
	assert.Equal(t, "AA", ColumnLetter(26))
	assert.Equal(t, "", ColumnLetter(-1))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore([][]string{
		{"Acme", " https://a ", ""},
		{"Beta", "https://b"},
	})

	snap, err := m.Read(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, []string{"Acme", "https://a", ""}, snap.Rows[0].Cells)

	require.NoError(t, m.BatchWrite(ctx, []CellWrite{{Row: 1, Column: 4, Value: "NOT_FOUND"}}))
	assert.Equal(t, []string{"Beta", "https://b", "", "", "NOT_FOUND"}, m.Rows()[1])
	assert.Len(t, m.Writes(), 1)

	cells, err := m.ReadColumn(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []Cell{{Row: 0, Value: "", Present: true}, {Row: 1, Value: "", Present: true}}, cells)

	m.FailWrites(errors.New("quota"))
	assert.Error(t, m.BatchWrite(ctx, []CellWrite{{Row: 0, Column: 2, Value: "x"}}))
}

func TestDryRunDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore([][]string{{"Acme", "https://a"}})
	d := NewDryRun(m, utils.NewNopLogger())

	require.NoError(t, d.BatchWrite(ctx, []CellWrite{{Row: 0, Column: 2, Value: "https://play.google.com/x"}}))
	assert.Empty(t, m.Writes())

	snap, err := d.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Rows, 1)
}

func TestCSVStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "worklist.csv")
	require.NoError(t, os.WriteFile(path, []byte("Advertiser,URL,Link,Name,Video\nAcme, https://a ,,,\nBeta,https://b\n"), 0o644))

	s := NewCSVStore(path, 5)
	snap, err := s.Read(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, []string{"Acme", "https://a", "", "", ""}, snap.Rows[0].Cells)
	_, ok := snap.Rows[1].Cell(2)
	assert.False(t, ok)

	require.NoError(t, s.BatchWrite(ctx, []CellWrite{
		{Row: 1, Column: 2, Value: "https://apps.apple.com/app/id1"},
		{Row: 1, Column: 3, Value: "Beta, Inc"},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `Beta,https://b,https://apps.apple.com/app/id1,"Beta, Inc"`)
	assert.True(t, strings.HasPrefix(string(data), "Advertiser,URL"))

	err = s.BatchWrite(ctx, []CellWrite{{Row: 0, Column: 5, Value: "x"}})
	assert.True(t, apperrors.IsKind(err, apperrors.KindStore))
}

func TestCSVStoreMissingFile(t *testing.T) {
	_, err := NewCSVStore(filepath.Join(t.TempDir(), "absent.csv"), 5).Read(context.Background())
	assert.True(t, apperrors.IsKind(err, apperrors.KindStore))
}

func TestExcelStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "worklist.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Advertiser", "URL", "Link", "Name", "Video"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"Acme", "https://a"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"Beta", "https://b", "NOT_FOUND"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	s, err := OpenExcelStore(path, "", 5)
	require.NoError(t, err)

	snap, err := s.Read(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, 0, snap.Rows[0].Index)
	assert.Equal(t, []string{"Beta", "https://b", "NOT_FOUND"}, snap.Rows[1].Cells)

	require.NoError(t, s.BatchWrite(ctx, []CellWrite{{Row: 0, Column: 4, Value: "0123456789abcdef"}}))
	require.NoError(t, s.Close())

	f, err = excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue("Sheet1", "E2")
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", v)
}

func TestExcelStoreUnknownSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worklist.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, err := OpenExcelStore(path, "Ads", 5)
	assert.True(t, apperrors.IsKind(err, apperrors.KindStore))
}

func TestSheetsStore(t *testing.T) {
	var gotRanges []string
	var update sheets.BatchUpdateValuesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/values:batchUpdate"):
			_ = json.NewDecoder(r.Body).Decode(&update)
			_, _ = w.Write([]byte(`{"spreadsheetId":"sid","totalUpdatedCells":2}`))
		case strings.Contains(r.URL.Path, "/v4/spreadsheets/sid/values/"):
			rng := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			gotRanges = append(gotRanges, rng)
			if strings.HasSuffix(rng, "B:B") {
				_, _ = w.Write([]byte(`{"values":[["URL"],["https://a"],[],["https://c"]]}`))
				return
			}
			_, _ = w.Write([]byte(`{"values":[["Advertiser","URL","Link","Name","Video"],["Acme"," https://a "],[],["Gamma","https://c","NOT_FOUND"]]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	s, err := NewSheetsStore(ctx, "sid", "Ad List", 5, option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)

	snap, err := s.Read(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Rows, 3)
	assert.Equal(t, []string{"Acme", "https://a"}, snap.Rows[0].Cells)
	assert.Empty(t, snap.Rows[1].Cells)
	assert.Equal(t, 2, snap.Rows[2].Index)

	cells, err := s.ReadColumn(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []Cell{
		{Row: 0, Value: "https://a", Present: true},
		{Row: 1},
		{Row: 2, Value: "https://c", Present: true},
	}, cells)
	assert.Equal(t, []string{"'Ad List'!A:E", "'Ad List'!B:B"}, gotRanges)

	require.NoError(t, s.BatchWrite(ctx, []CellWrite{
		{Row: 0, Column: 2, Value: "https://play.google.com/store/apps/details?id=com.acme"},
		{Row: 2, Column: 4, Value: "NOT_FOUND"},
	}))
	assert.Equal(t, "RAW", update.ValueInputOption)
	require.Len(t, update.Data, 2)
	assert.Equal(t, "'Ad List'!C2", update.Data[0].Range)
	assert.Equal(t, "'Ad List'!E4", update.Data[1].Range)
}

func TestSheetsStoreReadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":503,"message":"backend unavailable"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := NewSheetsStore(context.Background(), "sid", "", 5, option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	_, err = s.Read(context.Background())
	assert.True(t, apperrors.IsKind(err, apperrors.KindStore))
}

func newMockSQL(t *testing.T, width int) (*SQLStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(sqlx.NewDb(db, "postgres"), "worklist", width), mock
}

func TestSQLStoreRead(t *testing.T) {
	s, mock := newMockSQL(t, 3)
	mock.ExpectQuery("SELECT row_index, c0, c1, c2 FROM worklist ORDER BY row_index").
		WillReturnRows(sqlmock.NewRows([]string{"row_index", "c0", "c1", "c2"}).
			AddRow(int64(0), "Acme", " https://a ", nil).
			AddRow(int64(1), nil, "https://b", "NOT_FOUND"))

	snap, err := s.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, []string{"Acme", "https://a"}, snap.Rows[0].Cells)
	assert.Equal(t, []string{"", "https://b", "NOT_FOUND"}, snap.Rows[1].Cells)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreReadColumn(t *testing.T) {
	s, mock := newMockSQL(t, 3)
	mock.ExpectQuery("SELECT row_index, c1 FROM worklist ORDER BY row_index").
		WillReturnRows(sqlmock.NewRows([]string{"row_index", "c1"}).
			AddRow(int64(4), []byte("https://a")).
			AddRow(int64(7), nil))

	cells, err := s.ReadColumn(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []Cell{{Row: 4, Value: "https://a", Present: true}, {Row: 7}}, cells)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreBatchWrite(t *testing.T) {
	s, mock := newMockSQL(t, 5)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE worklist SET c2 = $1 WHERE row_index = $2").
		WithArgs("https://play.google.com/x", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE worklist SET c4 = $1 WHERE row_index = $2").
		WithArgs("NOT_FOUND", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.BatchWrite(context.Background(), []CellWrite{
		{Row: 0, Column: 2, Value: "https://play.google.com/x"},
		{Row: 3, Column: 4, Value: "NOT_FOUND"},
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreBatchWriteRollsBack(t *testing.T) {
	s, mock := newMockSQL(t, 5)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE worklist SET c2 = $1 WHERE row_index = $2").
		WithArgs("x", 0).
		WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	err := s.BatchWrite(context.Background(), []CellWrite{{Row: 0, Column: 2, Value: "x"}})
	assert.True(t, apperrors.IsKind(err, apperrors.KindStore))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("read", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "adscrapexter.worklist", mtest.FirstBatch,
			bson.D{{Key: "row_index", Value: 0}, {Key: "cells", Value: bson.A{"Acme", " https://a "}}},
			bson.D{{Key: "row_index", Value: 1}, {Key: "cells", Value: bson.A{"Beta", "https://b", "NOT_FOUND"}}},
		))
		s := NewMongoStore(mt.Coll, 5)

		snap, err := s.Read(context.Background())
		require.NoError(mt, err)
		require.Len(mt, snap.Rows, 2)
		assert.Equal(mt, []string{"Acme", "https://a"}, snap.Rows[0].Cells)
		assert.Equal(mt, 1, snap.Rows[1].Index)
	})

	mt.Run("batch write", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 2},
			bson.E{Key: "nModified", Value: 2},
		))
		s := NewMongoStore(mt.Coll, 5)

		require.NoError(mt, s.BatchWrite(context.Background(), []CellWrite{
			{Row: 0, Column: 2, Value: "https://play.google.com/x"},
			{Row: 1, Column: 4, Value: "NOT_FOUND"},
		}))
		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
		assert.NoError(mt, s.Close())
	})
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), config.StoreConfig{Backend: "parchment"}, 5, utils.NewNopLogger())
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))

	_, err = New(context.Background(), config.StoreConfig{Backend: "memory"}, 0, utils.NewNopLogger())
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))

	s, err := New(context.Background(), config.StoreConfig{Backend: "csv", Path: "w.csv"}, 5, utils.NewNopLogger())
	require.NoError(t, err)
	assert.IsType(t, &CSVStore{}, s)
}
