// Package storage defines the backend-agnostic relational store the loader
// writes into, plus the registry backends add themselves to.
package storage

import (
	"context"
	"errors"
	"fmt"

	"csvingest/internal/schema"
	"csvingest/internal/value"
)

// Config is the minimal configuration needed to open a Store.
//
// Kind must match a registered backend ("sqlite", "postgres", "mssql",
// "mysql"). DSN is passed through to the backend; for sqlite it is a file
// path or a modernc DSN.
type Config struct {
	Kind string
	DSN  string
}

// Store is the write and catalog surface every backend implements.
//
// IMPORTANT: identifiers passed to a Store are already normalized by the
// probe package ([a-z0-9_], at most 63 bytes). Backends still quote them.
type Store interface {
	Catalog

	// Kind returns the registry kind this store was opened with.
	Kind() string

	TableExists(ctx context.Context, table string) (bool, error)

	// DropTable drops table if it exists.
	DropTable(ctx context.Context, table string) error

	// CreateTable creates the table for spec, including its primary key and
	// every IndexSpec. Only the primary key column is NOT NULL.
	CreateTable(ctx context.Context, spec schema.TableSpec) error

	// Begin starts one load transaction. One Tx carries one batch.
	Begin(ctx context.Context) (Tx, error)

	// Close releases backend resources. Call once.
	Close() error
}

// Tx is a single batch transaction.
type Tx interface {
	// Insert writes rows into table. Every row has len(columns) values.
	// It returns the number of rows written.
	Insert(ctx context.Context, table string, columns []string, rows [][]value.Value) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ColumnInfo describes one column as the store reports it.
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primary_key"`
	Nullable   bool   `json:"nullable"`
}

// Record is one row read back from the store, keyed by column name. Values
// are the driver's native Go values with []byte converted to string.
type Record map[string]any

// Catalog is the read side used by the browse service.
type Catalog interface {
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, table string) ([]ColumnInfo, error)
	CountRows(ctx context.Context, table string) (int64, error)
	// SelectRows returns rows ordered by the first column.
	SelectRows(ctx context.Context, table string, limit, offset int) ([]Record, error)
	// SearchTable returns up to limit rows where any of columns contains
	// term, case-insensitively.
	SearchTable(ctx context.Context, table string, columns []string, term string, limit int) ([]Record, error)
}

// ErrTableNotFound is returned by catalog calls for unknown tables.
var ErrTableNotFound = errors.New("storage: table not found")

// StoreError wraps a backend failure with the operation and table it hit.
type StoreError struct {
	Op    string // "create", "drop", "begin", "insert", "commit", ...
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err, otherwise a *StoreError. An err that is
// already a *StoreError is returned unchanged.
func Wrap(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Table: table, Err: err}
}
