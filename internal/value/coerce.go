package value

import (
	"errors"
	"fmt"
	"strings"

	"csvingest/internal/schema"
)

// ErrNotCoercible is wrapped by every Coerce failure.
var ErrNotCoercible = errors.New("value not coercible")

// Coerce converts a raw cell to the variant for t. Empty and whitespace-only
// cells are Null for every type and never fail.
func Coerce(raw string, t schema.ColumnType) (Value, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Null{}, nil
	}

	switch t {
	case schema.Integer:
		if n, ok := ParseInteger(s); ok {
			return Integer(n), nil
		}
	case schema.Real:
		if f, ok := ParseReal(s); ok {
			return Real(f), nil
		}
	case schema.Boolean:
		if b, ok := ParseBoolean(s); ok {
			return Boolean(b), nil
		}
	case schema.Date:
		if d, ok := ParseDate(s); ok {
			return Date(d), nil
		}
	default:
		return Text(s), nil
	}
	return Null{}, fmt.Errorf("%w: %q as %s", ErrNotCoercible, truncateForError(s), t)
}

func truncateForError(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
