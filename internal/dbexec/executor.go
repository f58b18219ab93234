// Package dbexec abstracts read access to the backing database. The
// engine only ever issues parameterized SELECTs, so the surface is a
// single context-aware query method that *sql.DB already satisfies
// through a thin wrapper.
package dbexec

import (
	"context"
	"database/sql"
)

// Rows is the subset of *sql.Rows the engine consumes.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor issues one read statement. Implementations must honor
// context cancellation.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// StandardExecutor adapts *sql.DB (or anything query-compatible with it)
// to QueryExecutor.
type StandardExecutor struct {
	DB interface {
		QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	}
}

func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{DB: db}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	return e.DB.QueryContext(ctx, query, args...)
}
