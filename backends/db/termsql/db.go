// Package termsql is the query layer over the terminology tables. It keeps
// the generated-queries shape (DBTX, Queries, WithTx, typed params) so the
// rest of the service talks to a narrow, mockable surface instead of raw SQL.
package termsql

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// WithTx returns Queries bound to the given transaction. All statements
// issued through the result observe the transaction's view.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}
