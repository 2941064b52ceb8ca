package probe

import (
	"sort"
	"strings"

	"csvingest/internal/schema"
)

// ForeignKeyHints guesses references between tables from naming alone:
//
//   - a column named email or email_address points at a table whose natural
//     key is email;
//   - a column named <table>_id (or the singular <table minus s>_id) points at
//     a table whose natural key is id.
//
// Hints are informational and never created as constraints.
func ForeignKeyHints(tables []schema.TableSpec) []schema.ForeignKeyHint {
	var out []schema.ForeignKeyHint
	for _, ref := range tables {
		if ref.PrimaryKey.Synthetic {
			continue
		}
		key := ref.PrimaryKey.Name

		var want map[string]bool
		switch key {
		case "email":
			want = map[string]bool{"email": true, "email_address": true}
		case "id":
			want = map[string]bool{ref.Name + "_id": true}
			if s := strings.TrimSuffix(ref.Name, "s"); s != ref.Name && s != "" {
				want[s+"_id"] = true
			}
		default:
			continue
		}

		for _, t := range tables {
			if t.Name == ref.Name {
				continue
			}
			for _, c := range t.Columns {
				if want[c.Name] {
					out = append(out, schema.ForeignKeyHint{
						Table:     t.Name,
						Column:    c.Name,
						RefTable:  ref.Name,
						RefColumn: key,
					})
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.RefTable < b.RefTable
	})
	return out
}
