package probe

import (
	"fmt"
	"path"
	"strings"

	"github.com/spaolacci/murmur3"

	"csvingest/internal/schema"
)

// IndexRule requests an index on Column for every table whose name matches
// TablePattern (a path.Match glob; "*" or "" matches every table).
type IndexRule struct {
	TablePattern string `yaml:"table" json:"table"`
	Column       string `yaml:"column" json:"column"`
}

// DefaultIndexRules is the static catalog of lookup indexes: email, names and
// timestamps, whatever table they show up in.
var DefaultIndexRules = []IndexRule{
	{TablePattern: "*", Column: "email"},
	{TablePattern: "*", Column: "timestamp"},
	{TablePattern: "*", Column: "first_name"},
	{TablePattern: "*", Column: "last_name"},
	{TablePattern: "*", Column: "date_col"},
}

func (r IndexRule) matches(table, column string) bool {
	if r.Column != column {
		return false
	}
	if r.TablePattern == "" || r.TablePattern == "*" {
		return true
	}
	ok, err := path.Match(r.TablePattern, table)
	return err == nil && ok
}

// applyIndexRules returns one index per matching column, in column order.
// The natural primary key is skipped since the store already indexes it.
func applyIndexRules(t schema.TableSpec, rules []IndexRule) []schema.IndexSpec {
	var out []schema.IndexSpec
	for _, c := range t.Columns {
		if !t.PrimaryKey.Synthetic && c.Name == t.PrimaryKey.Name {
			continue
		}
		for _, r := range rules {
			if r.matches(t.Name, c.Name) {
				out = append(out, schema.IndexSpec{
					Name:    IndexName(t.Name, c.Name),
					Columns: []string{c.Name},
				})
				break
			}
		}
	}
	return out
}

// IndexName is idx_<table>_<column>. Names longer than MaxIdentLen keep a
// prefix and get a murmur3 suffix of the full name so they stay unique.
func IndexName(table, column string) string {
	name := "idx_" + table + "_" + column
	if len(name) <= MaxIdentLen {
		return name
	}
	suffix := fmt.Sprintf("_%08x", murmur3.Sum32([]byte(name)))
	return strings.TrimRight(name[:MaxIdentLen-len(suffix)], "_") + suffix
}
