package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"github.com/rohitjsoftype/terminology-api/backends/db/termsql"
)

type Options struct {
	User     string
	Password string
	Host     string
	Port     int
	DBName   string
	SSLMode  string
}

type DB struct {
	// Only becomes available after New() returns successfully.
	*termsql.Queries

	opts *Options
	db   *sql.DB
}

const (
	DefaultPostgreSQLPort = 5432
	DefaultSSLMode        = "disable"
)

func New(opts *Options) (*DB, error) {
	if err := validateOptions(opts); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}

	// Try to connect to db
	dsn := fmt.Sprintf("user=%s password=%s host=%s port=%d dbname=%s sslmode=%s",
		opts.User, opts.Password, opts.Host, opts.Port, opts.DBName, opts.SSLMode)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse database connection string")
	}

	db := stdlib.OpenDB(*cfg.ConnConfig)
	queries := termsql.New(db)

	return &DB{
		Queries: queries,
		opts:    opts,
		db:      db,
	}, nil
}

// BeginTx opens the single transaction an import batch runs under.
func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return d.db.BeginTx(ctx, opts)
}

// Ping backs the health checker.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.db.Close()
}

func validateOptions(opts *Options) error {
	if opts == nil {
		return errors.New("options cannot be nil")
	}

	if opts.User == "" {
		return errors.New("user cannot be empty")
	}

	if opts.Password == "" {
		return errors.New("password cannot be empty")
	}

	if opts.Host == "" {
		return errors.New("host cannot be empty")
	}

	if opts.Port <= 0 {
		opts.Port = DefaultPostgreSQLPort
	}

	if opts.SSLMode == "" {
		opts.SSLMode = DefaultSSLMode
	}

	return nil
}
