// Package dbx holds the minimal database/sql surface the SQL backend runs
// its statements through.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql used by the SQL backend.
// Both *sql.DB and *sql.Tx satisfy it, as does a go-sqlmock connection.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
