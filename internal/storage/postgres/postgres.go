// Package postgres is the PostgreSQL store backend.
//
// DDL and catalog reads go through database/sql (sqlx over the pgx stdlib
// adapter) so they share the sqlstore code paths. Batch inserts use the
// native pgx pool and COPY FROM, which is several times faster than
// multi-row INSERT for wide CSV exports.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"csvingest/internal/schema"
	"csvingest/internal/storage"
	"csvingest/internal/storage/sqlstore"
	"csvingest/internal/value"
)

func init() {
	storage.Register("postgres", Open)
}

// Dialect is the PostgreSQL dialect. Column types are the natural ones;
// TEXT can be indexed and keyed without a length.
var Dialect = sqlstore.Dialect{
	Kind:  "postgres",
	Quote: sqlstore.QuoteDouble,
	ColumnType: func(t schema.ColumnType, _ sqlstore.Role) string {
		switch t {
		case schema.Integer:
			return "BIGINT"
		case schema.Real:
			return "DOUBLE PRECISION"
		case schema.Boolean:
			return "BOOLEAN"
		case schema.Date:
			return "TIMESTAMPTZ"
		default:
			return "TEXT"
		}
	},
	SyntheticKey: func(q string) string { return q + " BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY" },
	MaxParams:    65535,
	ListTablesQuery: `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`,
	Describe: sqlstore.DescribeQuery(`SELECT c.column_name AS name,
       c.data_type AS type,
       c.is_nullable = 'YES' AS nullable,
       EXISTS (
         SELECT 1
         FROM information_schema.table_constraints tc
         JOIN information_schema.key_column_usage k
           ON k.constraint_name = tc.constraint_name
          AND k.table_schema = tc.table_schema
          AND k.table_name = tc.table_name
         WHERE tc.constraint_type = 'PRIMARY KEY'
           AND tc.table_schema = c.table_schema
           AND tc.table_name = c.table_name
           AND k.column_name = c.column_name
       ) AS pk
FROM information_schema.columns c
WHERE c.table_schema = current_schema() AND c.table_name = ?
ORDER BY c.ordinal_position`),
	TextExpr: func(q string) string { return "LOWER(CAST(" + q + " AS TEXT))" },
}

// Store overrides Begin of the generic SQL store with a COPY-based Tx.
type Store struct {
	*sqlstore.Store
	pool *pgxpool.Pool
}

// Open connects to cfg.DSN (a libpq URL or key=value string).
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, storage.Wrap("open", "", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Wrap("open", "", err)
	}
	db := sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")
	return &Store{Store: sqlstore.New(db, Dialect), pool: pool}, nil
}

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storage.Wrap("begin", "", err)
	}
	return &copyTx{tx: tx}, nil
}

// Close closes the database/sql handle and then the pool under it.
func (s *Store) Close() error {
	err := s.Store.Close()
	s.pool.Close()
	return err
}

type copyTx struct {
	tx pgx.Tx
}

func (t *copyTx) Insert(ctx context.Context, table string, columns []string, rows [][]value.Value) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	src, err := copyRows(columns, rows)
	if err != nil {
		return 0, storage.Wrap("insert", table, err)
	}
	n, err := t.tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(src))
	if err != nil {
		return n, storage.Wrap("insert", table, err)
	}
	return n, nil
}

func (t *copyTx) Commit(ctx context.Context) error {
	return storage.Wrap("commit", "", t.tx.Commit(ctx))
}

func (t *copyTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return storage.Wrap("rollback", "", err)
}

// copyRows converts rows to the driver values CopyFrom encodes.
func copyRows(columns []string, rows [][]value.Value) ([][]any, error) {
	if len(columns) == 0 {
		return nil, errors.New("no columns")
	}
	out := make([][]any, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = value.Native(v)
		}
		out[i] = vals
	}
	return out, nil
}

var _ storage.Store = (*Store)(nil)
