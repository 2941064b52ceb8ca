package probe

import (
	"strconv"
	"strings"
)

// MaxIdentLen is the longest identifier produced. 63 bytes is the Postgres
// limit and is accepted by every other backend.
const MaxIdentLen = 63

// reservedColumns maps names that collide with SQL keywords or with the
// export's own conventions to a safe replacement. Every replacement is a
// fixed point of NormalizeColumn.
var reservedColumns = map[string]string{
	"date": "date_col",
	"from": "col_from",
	"to":   "col_to",
	"text": "col_text",
}

// NormalizeColumn converts a raw header cell into a column identifier.
//
// Steps, in order: trim, lowercase, replace every rune outside [a-z0-9_]
// with '_', collapse runs of '_', strip leading and trailing '_', apply the
// reserved-name remap, fall back to col_<pos> when nothing is left, prefix
// col_ when the result starts with a digit, and cap the length at
// MaxIdentLen.
//
// pos is the 1-based column position used only for the empty fallback.
// The function is pure and idempotent for a fixed pos.
func NormalizeColumn(raw string, pos int) string {
	s := cleanIdent(raw)
	if r, ok := reservedColumns[s]; ok {
		s = r
	}
	if s == "" {
		s = "col_" + strconv.Itoa(pos)
	}
	if startsWithDigit(s) {
		s = "col_" + s
	}
	return truncateIdent(s)
}

// NormalizeTable converts a file stem into a table identifier. It follows
// NormalizeColumn but uses a t_ prefix for a leading digit and does not remap
// reserved names.
func NormalizeTable(stem string) string {
	s := cleanIdent(stem)
	if s == "" {
		s = "t_table"
	}
	if startsWithDigit(s) {
		s = "t_" + s
	}
	return truncateIdent(s)
}

// WithSuffix appends _<n> to an identifier, shortening the base so the
// result still fits MaxIdentLen.
func WithSuffix(base string, n int) string {
	suffix := "_" + strconv.Itoa(n)
	if len(base)+len(suffix) > MaxIdentLen {
		base = strings.TrimRight(base[:MaxIdentLen-len(suffix)], "_")
	}
	return base + suffix
}

func cleanIdent(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))

	var b strings.Builder
	b.Grow(len(s))

	lastUnderscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		// '_' and everything outside the grammar collapse into one '_'.
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// truncateIdent caps s at MaxIdentLen. Identifiers are ASCII by construction
// so a byte cut is safe.
func truncateIdent(s string) string {
	if len(s) <= MaxIdentLen {
		return s
	}
	return strings.TrimRight(s[:MaxIdentLen], "_")
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
