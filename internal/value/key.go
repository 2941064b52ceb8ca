package value

import "strings"

// Key returns the canonical form used to detect duplicate primary key
// values. Text is case-folded because several backends compare strings
// case-insensitively under their default collation.
func Key(v Value) string {
	if t, ok := v.(Text); ok {
		return strings.ToLower(string(t))
	}
	return v.String()
}
