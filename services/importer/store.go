package importer

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/rohitjsoftype/terminology-api/backends/db"
	"github.com/rohitjsoftype/terminology-api/backends/db/termsql"
)

// Store is the slice of the query layer the import engine writes through.
// Inside an import it is always transaction-bound, so lookups observe rows
// written earlier in the same batch.
type Store interface {
	UpsertCoding(ctx context.Context, arg termsql.UpsertCodingParams) (int64, error)
	GetCodingID(ctx context.Context, arg termsql.GetCodingIDParams) (int64, error)
	GetCodeSystemProperty(ctx context.Context, arg termsql.GetCodeSystemPropertyParams) (termsql.CodeSystemProperty, error)
	InsertCodeSystemProperty(ctx context.Context, arg termsql.InsertCodeSystemPropertyParams) (int64, error)
	InsertCodingProperty(ctx context.Context, arg termsql.InsertCodingPropertyParams) error
}

// Tx is one import transaction: a Store plus its commit/rollback handle.
type Tx interface {
	Store

	Commit() error
	Rollback() error
}

// Database opens import transactions. The orchestrator holds exactly one per
// call.
type Database interface {
	Begin(ctx context.Context) (Tx, error)
}

type pgDatabase struct {
	backend *db.DB
}

// NewDatabase adapts the Postgres backend to the import engine's
// transaction seam.
func NewDatabase(backend *db.DB) Database {
	return &pgDatabase{backend: backend}
}

func (p *pgDatabase) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.backend.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}

	return &pgTx{
		Queries: p.backend.WithTx(tx),
		tx:      tx,
	}, nil
}

type pgTx struct {
	*termsql.Queries

	tx *sql.Tx
}

func (t *pgTx) Commit() error {
	return t.tx.Commit()
}

func (t *pgTx) Rollback() error {
	return t.tx.Rollback()
}
