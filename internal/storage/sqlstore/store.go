package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"csvingest/internal/schema"
	"csvingest/internal/storage"
	"csvingest/internal/value"
)

// Store implements storage.Store over a *sqlx.DB.
type Store struct {
	db *sqlx.DB
	d  Dialect
}

// New wraps an open database handle. The Store owns db and closes it.
func New(db *sqlx.DB, d Dialect) *Store {
	return &Store{db: db, d: d}
}

// DB exposes the underlying handle for backend-specific statements.
func (s *Store) DB() *sqlx.DB { return s.db }

// Dialect returns the dialect the store was built with.
func (s *Store) Dialect() Dialect { return s.d }

func (s *Store) Kind() string { return s.d.Kind }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	names, err := s.ListTables(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if strings.EqualFold(n, table) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DropTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, BuildDropSQL(s.d, table)); err != nil {
		return storage.Wrap("drop", table, err)
	}
	return nil
}

// CreateTable runs the CREATE TABLE and CREATE INDEX statements in order.
// DDL is not wrapped in a transaction: MySQL commits DDL implicitly.
func (s *Store) CreateTable(ctx context.Context, spec schema.TableSpec) error {
	stmts, err := BuildCreateSQL(s.d, spec)
	if err != nil {
		return storage.Wrap("create", spec.Name, err)
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return storage.Wrap("create", spec.Name, fmt.Errorf("%s: %w", firstWords(q, 3), err))
		}
	}
	return nil
}

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storage.Wrap("begin", "", err)
	}
	return &Tx{tx: tx, d: s.d}, nil
}

// Tx is one batch transaction.
type Tx struct {
	tx *sqlx.Tx
	d  Dialect
}

// Insert writes rows with as few multi-row INSERT statements as the
// dialect's parameter limits allow.
func (t *Tx) Insert(ctx context.Context, table string, columns []string, rows [][]value.Value) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, storage.Wrap("insert", table, errors.New("no columns"))
	}

	per := t.d.rowsPerStatement(len(columns))
	var n int64
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		q := t.tx.Rebind(BuildInsertSQL(t.d, table, columns, len(chunk)))
		args := make([]any, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			if len(row) != len(columns) {
				return n, storage.Wrap("insert", table, fmt.Errorf("row %d has %d values, want %d", start+i, len(row), len(columns)))
			}
			for _, v := range row {
				args = append(args, t.d.bind(v))
			}
		}

		if _, err := t.tx.ExecContext(ctx, q, args...); err != nil {
			return n, storage.Wrap("insert", table, err)
		}
		n += int64(len(chunk))
	}
	return n, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	return storage.Wrap("commit", "", t.tx.Commit())
}

// Rollback is a no-op on an already finished transaction.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return storage.Wrap("rollback", "", err)
}

// ---- catalog ----

func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.SelectContext(ctx, &names, s.d.ListTablesQuery); err != nil {
		return nil, storage.Wrap("list_tables", "", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) DescribeTable(ctx context.Context, table string) ([]storage.ColumnInfo, error) {
	cols, err := s.d.Describe(ctx, s.db, table)
	if err != nil {
		return nil, storage.Wrap("describe", table, err)
	}
	if len(cols) == 0 {
		return nil, storage.Wrap("describe", table, storage.ErrTableNotFound)
	}
	return cols, nil
}

func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+s.d.Quote(table)); err != nil {
		return 0, storage.Wrap("count", table, err)
	}
	return n, nil
}

func (s *Store) SelectRows(ctx context.Context, table string, limit, offset int) ([]storage.Record, error) {
	cols, err := s.DescribeTable(ctx, table)
	if err != nil {
		return nil, err
	}
	clause, args := s.d.page(s.d.Quote(cols[0].Name), limit, offset)
	q := s.db.Rebind("SELECT * FROM " + s.d.Quote(table) + clause)
	return s.queryRecords(ctx, "select", table, cols, q, args...)
}

func (s *Store) SearchTable(ctx context.Context, table string, columns []string, term string, limit int) ([]storage.Record, error) {
	if len(columns) == 0 || term == "" {
		return nil, nil
	}
	cols, err := s.DescribeTable(ctx, table)
	if err != nil {
		return nil, err
	}
	where, args := BuildSearchSQL(s.d, columns, term)
	clause, pageArgs := s.d.page(s.d.Quote(cols[0].Name), limit, 0)
	q := s.db.Rebind("SELECT * FROM " + s.d.Quote(table) + where + clause)
	return s.queryRecords(ctx, "search", table, cols, q, append(args, pageArgs...)...)
}

func (s *Store) queryRecords(ctx context.Context, op, table string, cols []storage.ColumnInfo, q string, args ...any) ([]storage.Record, error) {
	declTypes := make(map[string]string, len(cols))
	for _, c := range cols {
		declTypes[c.Name] = c.Type
	}

	rows, err := s.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, storage.Wrap(op, table, err)
	}
	defer rows.Close()

	var out []storage.Record
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return nil, storage.Wrap(op, table, err)
		}
		out = append(out, s.normalizeRecord(m, declTypes))
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(op, table, err)
	}
	return out, nil
}

// normalizeRecord turns driver []byte values into strings so records encode
// as JSON text, then applies the dialect's Decode hook per column.
func (s *Store) normalizeRecord(m map[string]any, declTypes map[string]string) storage.Record {
	for k, v := range m {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if s.d.Decode != nil {
			v = s.d.Decode(declTypes[k], v)
		}
		m[k] = v
	}
	return storage.Record(m)
}

func firstWords(q string, n int) string {
	f := strings.Fields(q)
	if len(f) > n {
		f = f[:n]
	}
	return strings.Join(f, " ")
}

var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*Tx)(nil)
)

type columnRow struct {
	Name     string `db:"name"`
	Type     string `db:"type"`
	Nullable bool   `db:"nullable"`
	PK       bool   `db:"pk"`
}

// DescribeQuery returns a Describe func for a catalog query with one '?'
// placeholder (the table name) that selects name, type, nullable and pk.
func DescribeQuery(q string) func(ctx context.Context, db *sqlx.DB, table string) ([]storage.ColumnInfo, error) {
	return func(ctx context.Context, db *sqlx.DB, table string) ([]storage.ColumnInfo, error) {
		var rows []columnRow
		if err := db.SelectContext(ctx, &rows, db.Rebind(q), table); err != nil {
			return nil, err
		}
		out := make([]storage.ColumnInfo, 0, len(rows))
		for _, r := range rows {
			out = append(out, storage.ColumnInfo{
				Name:       r.Name,
				Type:       strings.ToUpper(r.Type),
				PrimaryKey: r.PK,
				Nullable:   r.Nullable && !r.PK,
			})
		}
		return out, nil
	}
}
