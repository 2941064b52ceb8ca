package schema

import (
	"errors"
	"fmt"
)

// SchemaErrorKind distinguishes the schema failures that abort a file.
type SchemaErrorKind int

const (
	EmptyHeader SchemaErrorKind = iota + 1
	DuplicateTableName
	IncompatibleAppend
)

func (k SchemaErrorKind) String() string {
	switch k {
	case EmptyHeader:
		return "empty_header"
	case DuplicateTableName:
		return "duplicate_table_name"
	case IncompatibleAppend:
		return "incompatible_append"
	default:
		return "unknown"
	}
}

// Sentinels matched by SchemaError.Is, so callers can write
// errors.Is(err, schema.ErrEmptyHeader).
var (
	ErrEmptyHeader        = errors.New("empty header")
	ErrDuplicateTableName = errors.New("duplicate table name")
	ErrIncompatibleAppend = errors.New("incompatible append")
)

// SchemaError is fatal to the file it was raised for.
type SchemaError struct {
	Kind   SchemaErrorKind
	Table  string
	Detail string
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("schema: %s", e.Kind)
	if e.Table != "" {
		msg += " table=" + e.Table
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches the sentinel for the error kind.
func (e *SchemaError) Is(target error) bool {
	switch e.Kind {
	case EmptyHeader:
		return target == ErrEmptyHeader
	case DuplicateTableName:
		return target == ErrDuplicateTableName
	case IncompatibleAppend:
		return target == ErrIncompatibleAppend
	}
	return false
}
