// Package schema holds the table definitions shared by the probe, the loader
// and the storage backends. It lives on its own so backends can import it
// without depending on inference code.
package schema

import "strings"

// ColumnType is the storage type inferred for a column.
type ColumnType int

const (
	Text ColumnType = iota
	Integer
	Real
	Boolean
	Date
)

func (t ColumnType) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	case Boolean:
		return "BOOLEAN"
	case Date:
		return "DATE"
	default:
		return "TEXT"
	}
}

// ParseColumnType maps a type name back to a ColumnType. Unknown names are TEXT.
func ParseColumnType(s string) ColumnType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INTEGER":
		return Integer
	case "REAL":
		return Real
	case "BOOLEAN":
		return Boolean
	case "DATE":
		return Date
	default:
		return Text
	}
}

// MarshalText renders the type name in JSON and YAML output.
func (t ColumnType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText is the inverse of MarshalText.
func (t *ColumnType) UnmarshalText(b []byte) error {
	*t = ParseColumnType(string(b))
	return nil
}

// ColumnSpec describes one source column.
type ColumnSpec struct {
	RawName  string     `json:"raw_name"`
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Nullable bool       `json:"nullable"`
}

// PrimaryKeySpec is either a natural key (one of the table's columns) or a
// synthetic auto-increment key managed by the store.
type PrimaryKeySpec struct {
	Name      string `json:"name"`
	Synthetic bool   `json:"synthetic"`
}

// IndexSpec is a single-column or multi-column secondary index.
type IndexSpec struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// TableSpec is fully self-describing: a backend can issue CREATE TABLE and
// CREATE INDEX from it without looking at the data.
type TableSpec struct {
	Name       string         `json:"name"`
	Columns    []ColumnSpec   `json:"columns"`
	PrimaryKey PrimaryKeySpec `json:"primary_key"`
	Indexes    []IndexSpec    `json:"indexes,omitempty"`
}

// ColumnNames returns the source column names in order. The synthetic key is
// not included.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// ColumnIndex returns the position of the named column, or -1.
func (t TableSpec) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// PrimaryKeyIndex returns the position of the natural key column, or -1 when
// the key is synthetic.
func (t TableSpec) PrimaryKeyIndex() int {
	if t.PrimaryKey.Synthetic {
		return -1
	}
	return t.ColumnIndex(t.PrimaryKey.Name)
}

// Indexed reports whether the column is the natural key or part of an index.
func (t TableSpec) Indexed(column string) bool {
	if !t.PrimaryKey.Synthetic && t.PrimaryKey.Name == column {
		return true
	}
	for _, idx := range t.Indexes {
		for _, c := range idx.Columns {
			if c == column {
				return true
			}
		}
	}
	return false
}

// ForeignKeyHint records that Table.Column probably references
// RefTable.RefColumn. Hints are never emitted as constraints.
type ForeignKeyHint struct {
	Table     string `json:"table"`
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}
