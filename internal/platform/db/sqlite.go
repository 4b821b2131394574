package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteTimeLayout is fixed width so stored timestamps compare and sort as text.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000-07:00"

type SQLite struct {
	DB *sql.DB
	sqlAdapter
}

// OpenSQLite opens a database file, or a private in-memory database for ":memory:".
// A single connection is used so writers serialize inside the process.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlite open %s: %w", path, err)
	}
	return &SQLite{DB: conn, sqlAdapter: sqlAdapter{q: conn}}, nil
}

func (s *SQLite) Dialect() Dialect { return DialectSQLite }

func (s *SQLite) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *SQLite) Close() { _ = s.DB.Close() }

func (s *SQLite) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(sqlAdapter{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlAdapter struct {
	q sqlQuerier
}

func (a sqlAdapter) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := a.q.ExecContext(ctx, rebind(query), bindArgs(args)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (a sqlAdapter) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := a.q.QueryContext(ctx, rebind(query), bindArgs(args)...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows: rows}, nil
}

func (a sqlAdapter) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqlRow{row: a.q.QueryRowContext(ctx, rebind(query), bindArgs(args)...)}
}

type sqlRow struct {
	row *sql.Row
}

func (r sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(wrapTimeDest(dest)...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	return err
}

type sqlRows struct {
	rows *sql.Rows
}

func (r sqlRows) Next() bool { return r.rows.Next() }

func (r sqlRows) Scan(dest ...any) error { return r.rows.Scan(wrapTimeDest(dest)...) }

func (r sqlRows) Err() error { return r.rows.Err() }

func (r sqlRows) Close() { _ = r.rows.Close() }

func bindArgs(args []any) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case time.Time:
			out[i] = v.UTC().Format(sqliteTimeLayout)
		case *time.Time:
			if v == nil {
				out[i] = nil
			} else {
				out[i] = v.UTC().Format(sqliteTimeLayout)
			}
		default:
			out[i] = arg
		}
	}
	return out
}

func wrapTimeDest(dest []any) []any {
	out := make([]any, len(dest))
	for i, d := range dest {
		switch v := d.(type) {
		case *time.Time:
			out[i] = &timeScanner{dst: v}
		case **time.Time:
			out[i] = &nullTimeScanner{dst: v}
		default:
			out[i] = d
		}
	}
	return out
}

type timeScanner struct {
	dst *time.Time
}

func (s *timeScanner) Scan(src any) error {
	if src == nil {
		*s.dst = time.Time{}
		return nil
	}
	t, err := parseSQLiteTime(src)
	if err != nil {
		return err
	}
	*s.dst = t
	return nil
}

type nullTimeScanner struct {
	dst **time.Time
}

func (s *nullTimeScanner) Scan(src any) error {
	if src == nil {
		*s.dst = nil
		return nil
	}
	t, err := parseSQLiteTime(src)
	if err != nil {
		return err
	}
	*s.dst = &t
	return nil
}

var sqliteTimeLayouts = []string{
	sqliteTimeLayout,
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseSQLiteTime(src any) (time.Time, error) {
	var raw string
	switch v := src.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return time.Time{}, fmt.Errorf("cannot scan %T into time", src)
	}
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
