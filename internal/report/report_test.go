package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvingest/internal/browse"
	"csvingest/internal/ingest"
	"csvingest/internal/loader"
	"csvingest/internal/schema"
	"csvingest/internal/storage"
)

func sampleSpec() schema.TableSpec {
	return schema.TableSpec{
		Name: "connections",
		Columns: []schema.ColumnSpec{
			{RawName: "Email Address", Name: "email_address", Type: schema.Text},
			{RawName: "Connected On", Name: "connected_on", Type: schema.Date, Nullable: true},
		},
		PrimaryKey: schema.PrimaryKeySpec{Name: "id", Synthetic: true},
		Indexes:    []schema.IndexSpec{{Name: "idx_connections_connected_on", Columns: []string{"connected_on"}}},
	}
}

func sampleSummary() ingest.Summary {
	warns := make([]loader.Warning, 7)
	for i := range warns {
		warns[i] = loader.Warning{Kind: loader.WarnRowShape, Line: i + 2, Message: fmt.Sprintf("line %d: row has 2 cells, want 3", i+2)}
	}
	return ingest.Summary{
		RunID:     "run-42",
		StartedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		Results: []loader.LoadResult{
			{
				FilePath: "in/Connections.csv", TableName: "connections", Encoding: "utf-8",
				RowsAttempted: 10, RowsLoaded: 8, RowsFailed: 2, Batches: 1,
				Warnings:      warns,
				WarningCounts: map[loader.WarningKind]int{loader.WarnRowShape: 7, loader.WarnNullKey: 2},
				Duration:      250 * time.Millisecond,
				Table:         sampleSpec(),
			},
			{
				FilePath: "in/broken.csv", TableName: "broken",
				Err: &schema.SchemaError{Kind: schema.EmptyHeader, Table: "broken"},
			},
		},
		ForeignKeys: []schema.ForeignKeyHint{{Table: "messages", Column: "email", RefTable: "contacts", RefColumn: "email"}},
	}
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, sampleSummary()))
	out := buf.String()

	for _, want := range []string{
		"run run-42",
		"FILE", "STATUS", "WARNINGS",
		"in/Connections.csv", "connections", "partial",
		"in/broken.csv", "failed",
		"files=2 failed_files=1 rows_attempted=10 rows_loaded=8 rows_failed=2",
		"errors", "in/broken.csv: ",
		"[row_shape] line 2: row has 2 cells, want 3",
		"... 4 more",
		"messages.email -> contacts.email",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "line 7:", "only the first warnings of a file are listed")
}

func TestText_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, ingest.Summary{RunID: "r"}))
	out := buf.String()
	assert.Contains(t, out, "files=0 failed_files=0")
	assert.NotContains(t, out, "errors")
	assert.NotContains(t, out, "relationships")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, sampleSummary()))

	var got Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, "run-42", got.RunID)
	assert.EqualValues(t, 1500, got.DurationMS)
	assert.Equal(t, Totals{Files: 2, FailedFiles: 1, RowsAttempted: 10, RowsLoaded: 8, RowsFailed: 2}, got.Totals)
	require.Len(t, got.Files, 2)

	ok, bad := got.Files[0], got.Files[1]
	assert.Equal(t, "partial", ok.Status)
	assert.Equal(t, 7, ok.WarningCounts[loader.WarnRowShape])
	require.NotNil(t, ok.Schema)
	assert.Equal(t, schema.Date, ok.Schema.Columns[1].Type)
	assert.Empty(t, ok.Error)

	assert.Equal(t, "failed", bad.Status)
	assert.Contains(t, bad.Error, "empty")
	assert.Nil(t, bad.Schema)

	assert.True(t, strings.Contains(buf.String(), `"type": "DATE"`), buf.String())
}

func TestFromSummary_ErrorsBecomeStrings(t *testing.T) {
	t.Parallel()

	sum := ingest.Summary{Results: []loader.LoadResult{{FilePath: "a.csv", Err: errors.New("boom")}}}
	got := FromSummary(sum)
	assert.Equal(t, "boom", got.Files[0].Error)
	assert.Equal(t, "failed", got.Files[0].Status)
}

func TestSpecText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SpecText(&buf, sampleSpec(), "windows-1252"))
	out := buf.String()

	for _, want := range []string{
		"table connections", "encoding windows-1252",
		"email_address", "Email Address", "TEXT",
		"connected_on", "DATE", "synthetic",
		"indexes: idx_connections_connected_on",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSpecJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SpecJSON(&buf, sampleSpec(), "utf-8"))

	var got struct {
		Encoding string           `json:"encoding"`
		Table    schema.TableSpec `json:"table"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "utf-8", got.Encoding)
	assert.Equal(t, sampleSpec(), got.Table)
}

func TestTables(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Tables(&buf, []browse.TableSummary{{Name: "connections", Rows: 1234}, {Name: "messages", Rows: 0}}))
	out := buf.String()
	for _, want := range []string{"TABLE", "ROWS", "connections", "1234", "messages"} {
		assert.Contains(t, out, want)
	}
}

func TestSearchHits(t *testing.T) {
	var buf bytes.Buffer
	hits := []browse.SearchHit{{
		Table:   "contacts",
		Columns: []string{"email", "company"},
		Rows:    []storage.Record{{"email": "ada@example.com", "company": nil}},
	}}
	require.NoError(t, SearchHits(&buf, "ada", hits))
	out := buf.String()
	assert.Contains(t, out, "contacts")
	assert.Contains(t, out, "1 rows")
	assert.Contains(t, out, "ada@example.com")
	assert.NotContains(t, out, "<nil>")

	buf.Reset()
	require.NoError(t, SearchHits(&buf, "zzz", nil))
	assert.Contains(t, buf.String(), `no matches for "zzz"`)
}
