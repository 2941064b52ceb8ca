package loader

import (
	"fmt"

	"csvingest/internal/schema"
)

// WarningKind classifies a recovered row or cell problem.
type WarningKind string

const (
	// WarnParse is a record the CSV reader could not parse. The row fails.
	WarnParse WarningKind = "parse"
	// WarnRowShape is a record with more or fewer cells than the header.
	// The row is padded with nulls or truncated and still loaded.
	WarnRowShape WarningKind = "row_shape"
	// WarnCellCoercion is a cell that does not parse as its column type. It
	// becomes null, unless it is the primary key, in which case the row fails.
	WarnCellCoercion WarningKind = "cell_coercion"
	// WarnNullKey is an empty natural primary key. The row fails.
	WarnNullKey WarningKind = "null_key"
	// WarnDuplicateKey is a natural primary key seen before. The row fails.
	WarnDuplicateKey WarningKind = "duplicate_key"
	// WarnEncodingReplacement is a file decoded with the "replace" fallback.
	// The affected cells hold U+FFFD; the rows still load.
	WarnEncodingReplacement WarningKind = "encoding_replacement"
)

// Warning is one recovered problem. Err is one of *CellCoercionError,
// *RowShapeError, *KeyError, *ReplacementError or the reader's parse error.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Line    int         `json:"line"`
	Column  string      `json:"column,omitempty"`
	Message string      `json:"message"`
	Err     error       `json:"-"`
}

// CellCoercionError reports a cell that could not be coerced to its column
// type.
type CellCoercionError struct {
	Line   int
	Column string
	Type   schema.ColumnType
	Err    error
}

func (e *CellCoercionError) Error() string {
	return fmt.Sprintf("line %d: column %s: %v", e.Line, e.Column, e.Err)
}

func (e *CellCoercionError) Unwrap() error { return e.Err }

// RowShapeError reports a record whose cell count differs from the header.
type RowShapeError struct {
	Line int
	Got  int
	Want int
}

func (e *RowShapeError) Error() string {
	return fmt.Sprintf("line %d: row has %d cells, want %d", e.Line, e.Got, e.Want)
}

// KeyError reports a natural primary key that is empty or repeated.
type KeyError struct {
	Line   int
	Column string
	Value  string
	Kind   WarningKind // WarnNullKey or WarnDuplicateKey
}

func (e *KeyError) Error() string {
	if e.Kind == WarnNullKey {
		return fmt.Sprintf("line %d: primary key %s is empty", e.Line, e.Column)
	}
	return fmt.Sprintf("line %d: duplicate primary key %s=%q", e.Line, e.Column, e.Value)
}

// ReplacementError reports invalid byte sequences that were decoded as
// U+FFFD. It covers the whole file, so its warning has no line.
type ReplacementError struct {
	Path  string
	Count int64
}

func (e *ReplacementError) Error() string {
	return fmt.Sprintf("%s: %d invalid byte sequences replaced with U+FFFD", e.Path, e.Count)
}
