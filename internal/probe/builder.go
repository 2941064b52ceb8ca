// Package probe derives a TableSpec from a CSV header and a sample window:
// identifier normalization, type inference, primary key selection and index
// rules. Everything here is pure; the same input always yields the same
// TableSpec.
package probe

import (
	"strings"

	"csvingest/internal/schema"
	"csvingest/internal/value"
)

// Options controls Build.
type Options struct {
	Infer InferOptions

	// IndexRules defaults to DefaultIndexRules when nil.
	IndexRules []IndexRule
}

// naturalKeyCandidates are checked in column order; the first one whose
// sampled values are present and unique becomes the primary key.
var naturalKeyCandidates = map[string]bool{"id": true, "email": true}

// Build turns a raw table name (usually the file stem), a header row and the
// sampled data rows into a TableSpec.
//
// Errors:
//   - *schema.SchemaError{Kind: EmptyHeader} when the header has no
//     non-blank cell.
func Build(tableRaw string, header []string, sample [][]string, opt Options) (schema.TableSpec, error) {
	table := NormalizeTable(tableRaw)
	if headerIsEmpty(header) {
		return schema.TableSpec{}, &schema.SchemaError{Kind: schema.EmptyHeader, Table: table}
	}

	maxSample := opt.Infer.MaxSample
	if maxSample <= 0 {
		maxSample = DefaultSampleSize
	}
	if len(sample) > maxSample {
		sample = sample[:maxSample]
	}

	names := uniqueColumnNames(header)

	t := schema.TableSpec{
		Name:    table,
		Columns: make([]schema.ColumnSpec, len(header)),
	}

	cols := make([][]string, len(header))
	for i := range header {
		cols[i] = columnSample(sample, i)
		typ, nullable := Infer(cols[i], opt.Infer)
		t.Columns[i] = schema.ColumnSpec{
			RawName:  header[i],
			Name:     names[i],
			Type:     typ,
			Nullable: nullable,
		}
	}

	t.PrimaryKey = choosePrimaryKey(t.Columns, cols)

	rules := opt.IndexRules
	if rules == nil {
		rules = DefaultIndexRules
	}
	t.Indexes = applyIndexRules(t, rules)

	return t, nil
}

func headerIsEmpty(header []string) bool {
	for _, h := range header {
		if strings.TrimSpace(h) != "" {
			return false
		}
	}
	return true
}

// uniqueColumnNames normalizes every header cell and resolves collisions by
// appending _2, _3, ... in first-seen order.
func uniqueColumnNames(header []string) []string {
	used := make(map[string]bool, len(header))
	out := make([]string, len(header))
	for i, raw := range header {
		base := NormalizeColumn(raw, i+1)
		name := base
		for n := 2; used[name]; n++ {
			name = WithSuffix(base, n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// columnSample extracts column i from the sample. Short rows contribute an
// empty value, matching the null the loader will pad them with.
func columnSample(rows [][]string, i int) []string {
	out := make([]string, len(rows))
	for r, row := range rows {
		if i < len(row) {
			out[r] = row[i]
		}
	}
	return out
}

func choosePrimaryKey(cols []schema.ColumnSpec, samples [][]string) schema.PrimaryKeySpec {
	for i, c := range cols {
		if !naturalKeyCandidates[c.Name] {
			continue
		}
		if uniqueAndPresent(samples[i], c.Type) {
			return schema.PrimaryKeySpec{Name: c.Name}
		}
	}
	return schema.PrimaryKeySpec{Name: syntheticKeyName(cols), Synthetic: true}
}

// uniqueAndPresent requires a non-empty sample where every value is present,
// coercible and distinct after coercion.
func uniqueAndPresent(sample []string, typ schema.ColumnType) bool {
	if len(sample) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(sample))
	for _, raw := range sample {
		v, err := value.Coerce(raw, typ)
		if err != nil || value.IsNull(v) {
			return false
		}
		k := value.Key(v)
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
	}
	return true
}

func syntheticKeyName(cols []schema.ColumnSpec) string {
	used := make(map[string]bool, len(cols))
	for _, c := range cols {
		used[c.Name] = true
	}
	if !used["id"] {
		return "id"
	}
	name := "row_id"
	for n := 2; used[name]; n++ {
		name = WithSuffix("row_id", n)
	}
	return name
}
