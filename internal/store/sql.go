// internal/store/sql.go
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	apperrors "github.com/valpere/AdScrapexter/internal/errors"
)

var sqlDrivers = map[string]string{
	"sqlite":   "sqlite3",
	"postgres": "postgres",
	"mysql":    "mysql",
}

// SQLStore keeps the worklist in a table shaped
// (row_index INTEGER PRIMARY KEY, c0 TEXT, c1 TEXT, ...).
// row_index is the data row index; the table holds no header row.
type SQLStore struct {
	db    *sqlx.DB
	table string
	width int
}

// OpenSQLStore connects with the driver behind backend and pings the database
func OpenSQLStore(ctx context.Context, backend, dsn, table string, width int) (*SQLStore, error) {
	driver, ok := sqlDrivers[backend]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindConfig, "unsupported sql backend %q", backend)
	}
	if dsn == "" {
		return nil, apperrors.Newf(apperrors.KindConfig, "%s dsn is required", backend)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "connect "+backend)
	}

	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(10 * time.Minute)
	}
	return NewSQLStore(db, table, width), nil
}

// NewSQLStore wraps an existing handle
func NewSQLStore(db *sqlx.DB, table string, width int) *SQLStore {
	if table == "" {
		table = "worklist"
	}
	return &SQLStore{db: db, table: table, width: width}
}

func (s *SQLStore) columns() string {
	cols := make([]string, s.width)
	for i := range cols {
		cols[i] = fmt.Sprintf("c%d", i)
	}
	return strings.Join(cols, ", ")
}

// Read selects every row ordered by row_index. A NULL cell counts as
// missing when nothing follows it.
func (s *SQLStore) Read(ctx context.Context) (*Snapshot, error) {
	query := fmt.Sprintf("SELECT row_index, %s FROM %s ORDER BY row_index", s.columns(), s.table)
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "select worklist")
	}
	defer rows.Close()

	snap := &Snapshot{}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindStore, err, "scan worklist row")
		}
		idx, err := toInt(vals[0])
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindStore, err, "row_index")
		}
		cells := make([]string, 0, s.width)
		last := -1
		for i, v := range vals[1:] {
			str, ok := toString(v)
			if ok {
				last = i
			}
			cells = append(cells, strings.TrimSpace(str))
		}
		snap.Rows = append(snap.Rows, Row{Index: idx, Cells: cells[:last+1]})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "iterate worklist")
	}
	return snap, nil
}

// ReadColumn selects row_index and one column
func (s *SQLStore) ReadColumn(ctx context.Context, column int) ([]Cell, error) {
	if column < 0 || column >= s.width {
		return nil, apperrors.Newf(apperrors.KindStore, "column %d out of range", column)
	}
	query := fmt.Sprintf("SELECT row_index, c%d FROM %s ORDER BY row_index", column, s.table)
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "select column")
	}
	defer rows.Close()

	var cells []Cell
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindStore, err, "scan column")
		}
		idx, err := toInt(vals[0])
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindStore, err, "row_index")
		}
		str, ok := toString(vals[1])
		cells = append(cells, Cell{Row: idx, Value: strings.TrimSpace(str), Present: ok})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "iterate column")
	}
	return cells, nil
}

// BatchWrite updates every cell inside one transaction
func (s *SQLStore) BatchWrite(ctx context.Context, writes []CellWrite) error {
	if len(writes) == 0 {
		return nil
	}
	if err := checkWrites(writes, s.width); err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStore, err, "begin write")
	}
	for _, w := range writes {
		query := s.db.Rebind(fmt.Sprintf("UPDATE %s SET c%d = ? WHERE row_index = ?", s.table, w.Column))
		if _, err := tx.ExecContext(ctx, query, w.Value, w.Row); err != nil {
			_ = tx.Rollback()
			return apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("update row %d", w.Row))
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.KindStore, err, "commit write")
	}
	return nil
}

// Close closes the pool
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func toString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case []byte:
		return string(t), true
	case string:
		return t, true
	}
	return fmt.Sprint(v), true
}

func toInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int64:
		return int(t), nil
	case int32:
		return int(t), nil
	case int:
		return t, nil
	}
	str, _ := toString(v)
	return strconv.Atoi(str)
}
