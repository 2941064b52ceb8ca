// Package value is the closed set of cell values produced by coercion.
//
// A Value is one of Null, Integer, Real, Text, Date or Boolean. The set is
// closed by the unexported isValue method, so a type switch over the six
// variants is exhaustive and each storage backend needs exactly one bind
// conversion per variant.
package value

import (
	"strconv"
	"time"
)

// Value is a coerced cell.
type Value interface {
	String() string
	isValue()
}

type (
	Null    struct{}
	Integer int64
	Real    float64
	Text    string
	Date    time.Time
	Boolean bool
)

func (Null) isValue()    {}
func (Integer) isValue() {}
func (Real) isValue()    {}
func (Text) isValue()    {}
func (Date) isValue()    {}
func (Boolean) isValue() {}

func (Null) String() string      { return "NULL" }
func (v Integer) String() string { return strconv.FormatInt(int64(v), 10) }
func (v Real) String() string    { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v Text) String() string    { return string(v) }
func (v Date) String() string    { return time.Time(v).UTC().Format(time.RFC3339Nano) }
func (v Boolean) String() string { return strconv.FormatBool(bool(v)) }

// IsNull reports whether v is the Null variant (or a nil interface).
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Native converts v to the Go value database/sql drivers accept directly.
// Backends with special needs (SQLite dates and booleans) switch on the
// variants themselves.
func Native(v Value) any {
	switch x := v.(type) {
	case Integer:
		return int64(x)
	case Real:
		return float64(x)
	case Text:
		return string(x)
	case Date:
		return time.Time(x)
	case Boolean:
		return bool(x)
	default:
		return nil
	}
}
