package loader

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"csvingest/internal/schema"
)

// cellPool covers empty, numeric, non-numeric and case-folded duplicate
// cells. A record of exactly {"!"} is fed as a parse error.
var cellPool = []string{"", "1", "x", "a@x.io", "B@x.io", "42", "b@x.io", "!"}

func toRecords(picks [][]int) [][]string {
	recs := make([][]string, len(picks))
	for i, row := range picks {
		rec := make([]string, len(row))
		for j, p := range row {
			rec[j] = cellPool[p]
		}
		recs[i] = rec
	}
	return recs
}

// TestProperty_RowConservation: for any input, any batch size and any single
// failing batch, every received row is either loaded or failed, and the
// store holds exactly the loaded rows.
func TestProperty_RowConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	spec := schema.TableSpec{
		Name: "t",
		Columns: []schema.ColumnSpec{
			{Name: "email", Type: schema.Text},
			{Name: "n", Type: schema.Integer},
			{Name: "s", Type: schema.Text},
		},
		PrimaryKey: schema.PrimaryKeySpec{Name: "email"},
	}

	properties.Property("loaded + failed == attempted", prop.ForAll(
		func(picks [][]int, batchSize, failOn int) bool {
			st := &flakyStore{failOn: failOn}
			res := Load(context.Background(), st, spec, feed(toRecords(picks)), Options{BatchSize: batchSize})
			if res.RowsLoaded+res.RowsFailed != res.RowsAttempted {
				return false
			}
			if res.RowsLoaded != st.inserted {
				return false
			}
			if res.Err == nil && res.RowsAttempted != int64(len(picks)) {
				return false
			}
			return res.RowsAttempted <= int64(len(picks))
		},
		gen.SliceOf(gen.SliceOf(gen.IntRange(0, len(cellPool)-1))),
		gen.IntRange(1, 4),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
