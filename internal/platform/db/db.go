package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"montero/internal/platform/config"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ErrNoRows is returned by Row.Scan on both backends when the query matched nothing.
var ErrNoRows = errors.New("no rows in result set")

type Row interface {
	Scan(dest ...any) error
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Querier is the statement surface shared by pools and transactions. Queries use
// $N placeholders on every backend.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

type DB interface {
	Querier
	Dialect() Dialect
	InTx(ctx context.Context, fn func(q Querier) error) error
	Ping(ctx context.Context) error
	Close()
}

// Open connects to the backend selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return Connect(ctx, cfg.DatabaseURL, cfg.MaxConns)
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// ForUpdateSkipLocked returns the row-locking suffix for claim subqueries.
// SQLite serializes writers, so it needs none.
func ForUpdateSkipLocked(d Dialect) string {
	if d == DialectPostgres {
		return " FOR UPDATE SKIP LOCKED"
	}
	return ""
}

// ForUpdate returns the row-locking suffix for read-then-write transactions.
func ForUpdate(d Dialect) string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// Placeholders renders "$from, $from+1, ..." for n values.
func Placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range n {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}

var dollarParam = regexp.MustCompile(`\$(\d+)`)

// rebind turns $N placeholders into SQLite's numbered ?N form.
func rebind(query string) string {
	return dollarParam.ReplaceAllString(query, "?$1")
}
