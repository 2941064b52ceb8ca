// Package sqlstore implements storage.Store on top of database/sql (through
// sqlx) for any backend that can be described by a Dialect. Backends supply
// the dialect and register a factory; DDL and INSERT statements are built
// here by pure functions so they can be tested without a database.
package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"csvingest/internal/schema"
	"csvingest/internal/storage"
	"csvingest/internal/value"
)

// Role tells a dialect how a column is used, since some backends cannot
// index or key their unbounded text type.
type Role int

const (
	Plain Role = iota
	Indexed
	PrimaryKey
)

// Dialect describes the SQL differences between backends. Queries are written
// with '?' placeholders and rebound by sqlx for the driver.
type Dialect struct {
	Kind string

	// Quote returns a quoted identifier.
	Quote func(ident string) string

	// ColumnType maps a column type to the backend's SQL type.
	ColumnType func(t schema.ColumnType, role Role) string

	// SyntheticKey returns the full column definition of a store-generated
	// auto-increment primary key, given the quoted column name.
	SyntheticKey func(quoted string) string

	// IndexColumn returns the expression used for a column in CREATE INDEX.
	// Nil means the quoted name.
	IndexColumn func(quoted string, t schema.ColumnType) string

	// Bind converts a value to a driver argument. Nil means value.Native.
	Bind func(v value.Value) any

	// MaxParams bounds the placeholders in one statement; MaxRows (optional)
	// bounds the rows in one VALUES list.
	MaxParams int
	MaxRows   int

	// ListTablesQuery returns the user table names, one per row.
	ListTablesQuery string

	// Describe lists the columns of table in ordinal order. It returns an
	// empty slice for unknown tables.
	Describe func(ctx context.Context, db *sqlx.DB, table string) ([]storage.ColumnInfo, error)

	// Page returns the ORDER BY / paging clause and its arguments.
	// Nil means "ORDER BY col LIMIT ? OFFSET ?".
	Page func(orderBy string, limit, offset int) (string, []any)

	// Decode converts a scanned value given the column's declared type.
	// Nil leaves values as scanned.
	Decode func(declType string, v any) any

	// TextExpr returns a lowercased text rendering of a quoted column for
	// substring search.
	TextExpr func(quoted string) string
}

func (d Dialect) bind(v value.Value) any {
	if d.Bind != nil {
		return d.Bind(v)
	}
	return value.Native(v)
}

func (d Dialect) page(orderBy string, limit, offset int) (string, []any) {
	if d.Page != nil {
		return d.Page(orderBy, limit, offset)
	}
	return " ORDER BY " + orderBy + " LIMIT ? OFFSET ?", []any{limit, offset}
}

func (d Dialect) indexColumn(quoted string, t schema.ColumnType) string {
	if d.IndexColumn != nil {
		return d.IndexColumn(quoted, t)
	}
	return quoted
}

// rowsPerStatement returns how many rows of ncols values fit one INSERT.
func (d Dialect) rowsPerStatement(ncols int) int {
	n := 1
	if ncols > 0 && d.MaxParams > 0 {
		n = d.MaxParams / ncols
	}
	if n < 1 {
		n = 1
	}
	if d.MaxRows > 0 && n > d.MaxRows {
		n = d.MaxRows
	}
	return n
}

// BuildCreateSQL returns the CREATE TABLE statement for spec followed by one
// CREATE INDEX statement per IndexSpec.
//
// Rules:
//   - a synthetic key becomes the first column, store-generated
//   - a natural key column is NOT NULL PRIMARY KEY in place
//   - every other column is nullable
func BuildCreateSQL(d Dialect, spec schema.TableSpec) ([]string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, fmt.Errorf("%s: table name is empty", d.Kind)
	}
	if len(spec.Columns) == 0 {
		return nil, fmt.Errorf("%s: table %s has no columns", d.Kind, spec.Name)
	}

	pk := spec.PrimaryKey
	defs := make([]string, 0, len(spec.Columns)+1)
	if pk.Synthetic {
		defs = append(defs, d.SyntheticKey(d.Quote(pk.Name)))
	}

	for _, c := range spec.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("%s: table %s has an empty column name", d.Kind, spec.Name)
		}
		role := Plain
		if spec.Indexed(c.Name) {
			role = Indexed
		}
		isKey := !pk.Synthetic && c.Name == pk.Name
		if isKey {
			role = PrimaryKey
		}

		def := d.Quote(c.Name) + " " + d.ColumnType(c.Type, role)
		if isKey {
			def += " NOT NULL PRIMARY KEY"
		}
		defs = append(defs, def)
	}

	stmts := []string{fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(spec.Name), strings.Join(defs, ", "))}

	for _, idx := range spec.Indexes {
		cols := make([]string, 0, len(idx.Columns))
		for _, name := range idx.Columns {
			i := spec.ColumnIndex(name)
			if i < 0 {
				return nil, fmt.Errorf("%s: index %s references unknown column %s", d.Kind, idx.Name, name)
			}
			cols = append(cols, d.indexColumn(d.Quote(name), spec.Columns[i].Type))
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			d.Quote(idx.Name), d.Quote(spec.Name), strings.Join(cols, ", ")))
	}
	return stmts, nil
}

// BuildDropSQL returns the statement dropping table if it exists.
func BuildDropSQL(d Dialect, table string) string {
	return "DROP TABLE IF EXISTS " + d.Quote(table)
}

// BuildInsertSQL builds a multi-row INSERT with '?' placeholders for nrows
// rows of columns.
func BuildInsertSQL(d Dialect, table string, columns []string, nrows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Quote(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(c))
	}
	b.WriteString(") VALUES ")

	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	for i := 0; i < nrows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
	}
	return b.String()
}

// BuildSearchSQL builds the WHERE clause matching term in any of columns and
// returns it with its arguments. LIKE wildcards in term are escaped.
func BuildSearchSQL(d Dialect, columns []string, term string) (string, []any) {
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	parts := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for _, c := range columns {
		parts = append(parts, d.TextExpr(d.Quote(c))+" LIKE ? ESCAPE '!'")
		args = append(args, pattern)
	}
	return " WHERE " + strings.Join(parts, " OR "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_", "[", "![")
	return r.Replace(s)
}

// QuoteDouble quotes with ANSI double quotes, doubling embedded quotes.
func QuoteDouble(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
