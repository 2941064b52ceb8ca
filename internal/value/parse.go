package value

import (
	"strconv"
	"strings"
	"time"
)

// The parse functions below are shared by type inference and coercion, so a
// column inferred from its sample always coerces those same sample values.
// All of them expect s to be trimmed already.

// ParseInteger accepts an optional sign followed by ASCII digits only, within
// the int64 range.
func ParseInteger(s string) (int64, bool) {
	if !IsIntegerLiteral(s) {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsIntegerLiteral reports whether s is an optional sign followed by at least
// one ASCII digit, regardless of magnitude.
func IsIntegerLiteral(s string) bool {
	digits := s
	if len(digits) > 0 && (digits[0] == '+' || digits[0] == '-') {
		digits = digits[1:]
	}
	if digits == "" {
		return false
	}
	for i := 0; i < len(digits); i++ {
		if !isDigit(digits[i]) {
			return false
		}
	}
	return true
}

// ParseReal accepts decimal notation with an optional fraction and exponent.
// Integers are accepted too, but only within the int64 range: a longer digit
// string would lose digits as a float64. NaN, Inf, hex floats and digit
// separators are rejected even though strconv would take some of them.
func ParseReal(s string) (float64, bool) {
	if IsIntegerLiteral(s) {
		n, ok := ParseInteger(s)
		return float64(n), ok
	}
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	mantissa := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		mantissa++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			mantissa++
		}
	}
	if mantissa == 0 {
		return 0, false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for i < len(s) && isDigit(s[i]) {
			i++
			exp++
		}
		if exp == 0 {
			return 0, false
		}
	}
	if i != len(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// HasLeadingZero reports numeric-looking strings whose leading zero is
// significant, e.g. "007" or "-0123". "0", "0.5" and "-0" return false.
func HasLeadingZero(s string) bool {
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	return len(s) > 1 && s[0] == '0' && isDigit(s[1])
}

// ParseBoolean accepts true/false, yes/no and 1/0, case-insensitively.
func ParseBoolean(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "yes", "1":
		return true, true
	case "false", "no", "0":
		return false, true
	default:
		return false, false
	}
}

// DateLayouts are the accepted date and datetime patterns: ISO-8601 dates
// and datetimes plus the formats found in LinkedIn exports
// ("15 Mar 2023", "3/15/23, 10:42 AM", "2023-03-15 10:42:00 UTC", "Mar 2020").
var DateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05Z07:00",
	"2006/01/02",
	"1/2/2006",
	"1/2/2006 15:04",
	"1/2/06, 3:04 PM",
	"2 Jan 2006",
	"Jan 2, 2006",
	"Jan 2006",
}

// ParseDate tries every layout in DateLayouts and returns the time in UTC.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
