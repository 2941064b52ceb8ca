// Package report renders run summaries and probed table specs for the
// terminal (lipgloss tables) or as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"csvingest/internal/browse"
	"csvingest/internal/ingest"
	"csvingest/internal/loader"
	"csvingest/internal/schema"
)

// Color palette, kept small.
var (
	colorHeader  = lipgloss.Color("39")
	colorSuccess = lipgloss.Color("34")
	colorWarning = lipgloss.Color("214")
	colorError   = lipgloss.Color("196")
	colorMuted   = lipgloss.Color("240")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorHeader)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorHeader).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numStyle    = cellStyle.Align(lipgloss.Right)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle  = lipgloss.NewStyle().Foreground(colorError)

	statusStyles = map[string]lipgloss.Style{
		"ok":      cellStyle.Foreground(colorSuccess),
		"partial": cellStyle.Foreground(colorWarning),
		"failed":  cellStyle.Foreground(colorError),
	}
)

// WarningsPerFile bounds the warning lines Text prints for each file.
const WarningsPerFile = 5

// Text writes a human-readable summary: one table row per file, totals,
// the errors of failed files, a sample of warnings and foreign key hints.
func Text(w io.Writer, sum ingest.Summary) error {
	attempted, loaded, failed, failedFiles := sum.Totals()

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("run %s", sum.RunID)))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  started %s  took %s",
		sum.StartedAt.Format(time.RFC3339), sum.Duration.Truncate(time.Millisecond))))
	b.WriteString("\n")

	const statusCol = 3
	numeric := map[int]bool{4: true, 5: true, 6: true, 7: true}
	rows := make([][]string, 0, len(sum.Results))
	for _, r := range sum.Results {
		rows = append(rows, []string{
			r.FilePath,
			r.TableName,
			orDash(r.Encoding),
			r.Status(),
			strconv.FormatInt(r.RowsAttempted, 10),
			strconv.FormatInt(r.RowsLoaded, 10),
			strconv.FormatInt(r.RowsFailed, 10),
			strconv.Itoa(warningTotal(r)),
			r.Duration.Truncate(time.Millisecond).String(),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("FILE", "TABLE", "ENCODING", "STATUS", "ATTEMPTED", "LOADED", "FAILED", "WARNINGS", "DURATION").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == statusCol:
				if s, ok := statusStyles[rows[row][statusCol]]; ok {
					return s
				}
			case numeric[col]:
				return numStyle
			}
			return cellStyle
		})
	b.WriteString(t.String())
	b.WriteString("\n")

	fmt.Fprintf(&b, "files=%d failed_files=%d rows_attempted=%d rows_loaded=%d rows_failed=%d\n",
		len(sum.Results), failedFiles, attempted, loaded, failed)

	var errs []string
	for _, r := range sum.Results {
		if r.Err != nil {
			errs = append(errs, fmt.Sprintf("  %s: %v", r.FilePath, r.Err))
		}
	}
	if len(errs) > 0 {
		b.WriteString("\n" + titleStyle.Render("errors") + "\n")
		b.WriteString(errorStyle.Render(strings.Join(errs, "\n")) + "\n")
	}

	var warns []string
	for _, r := range sum.Results {
		for i, wn := range r.Warnings {
			if i == WarningsPerFile {
				warns = append(warns, mutedStyle.Render(fmt.Sprintf("  %s: ... %d more", r.FilePath, warningTotal(r)-i)))
				break
			}
			warns = append(warns, fmt.Sprintf("  %s: [%s] %s", r.FilePath, wn.Kind, wn.Message))
		}
	}
	if len(warns) > 0 {
		b.WriteString("\n" + titleStyle.Render("warnings") + "\n")
		b.WriteString(strings.Join(warns, "\n") + "\n")
	}

	if len(sum.ForeignKeys) > 0 {
		b.WriteString("\n" + titleStyle.Render("relationships") + "\n")
		for _, fk := range sum.ForeignKeys {
			fmt.Fprintf(&b, "  %s.%s -> %s.%s\n", fk.Table, fk.Column, fk.RefTable, fk.RefColumn)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func warningTotal(r loader.LoadResult) int {
	n := 0
	for _, c := range r.WarningCounts {
		n += c
	}
	return n
}

// Summary is the JSON form of ingest.Summary. Errors become strings.
type Summary struct {
	RunID       string                  `json:"run_id"`
	StartedAt   time.Time               `json:"started_at"`
	DurationMS  int64                   `json:"duration_ms"`
	Totals      Totals                  `json:"totals"`
	Files       []File                  `json:"files"`
	ForeignKeys []schema.ForeignKeyHint `json:"foreign_keys,omitempty"`
}

type Totals struct {
	Files         int   `json:"files"`
	FailedFiles   int   `json:"failed_files"`
	RowsAttempted int64 `json:"rows_attempted"`
	RowsLoaded    int64 `json:"rows_loaded"`
	RowsFailed    int64 `json:"rows_failed"`
}

type File struct {
	Path          string                     `json:"path"`
	Table         string                     `json:"table"`
	Encoding      string                     `json:"encoding,omitempty"`
	Status        string                     `json:"status"`
	RowsAttempted int64                      `json:"rows_attempted"`
	RowsLoaded    int64                      `json:"rows_loaded"`
	RowsFailed    int64                      `json:"rows_failed"`
	Batches       int                        `json:"batches"`
	WarningCounts map[loader.WarningKind]int `json:"warning_counts,omitempty"`
	Warnings      []loader.Warning           `json:"warnings,omitempty"`
	Error         string                     `json:"error,omitempty"`
	DurationMS    int64                      `json:"duration_ms"`
	Schema        *schema.TableSpec          `json:"schema,omitempty"`
}

// FromSummary converts sum to its JSON form.
func FromSummary(sum ingest.Summary) Summary {
	attempted, loaded, failed, failedFiles := sum.Totals()
	out := Summary{
		RunID:      sum.RunID,
		StartedAt:  sum.StartedAt,
		DurationMS: sum.Duration.Milliseconds(),
		Totals: Totals{
			Files:         len(sum.Results),
			FailedFiles:   failedFiles,
			RowsAttempted: attempted,
			RowsLoaded:    loaded,
			RowsFailed:    failed,
		},
		Files:       make([]File, 0, len(sum.Results)),
		ForeignKeys: sum.ForeignKeys,
	}
	for _, r := range sum.Results {
		f := File{
			Path:          r.FilePath,
			Table:         r.TableName,
			Encoding:      r.Encoding,
			Status:        r.Status(),
			RowsAttempted: r.RowsAttempted,
			RowsLoaded:    r.RowsLoaded,
			RowsFailed:    r.RowsFailed,
			Batches:       r.Batches,
			Warnings:      r.Warnings,
			DurationMS:    r.Duration.Milliseconds(),
		}
		if len(r.WarningCounts) > 0 {
			f.WarningCounts = r.WarningCounts
		}
		if r.Err != nil {
			f.Error = r.Err.Error()
		}
		if r.Table.Name != "" {
			spec := r.Table
			f.Schema = &spec
		}
		out.Files = append(out.Files, f)
	}
	return out
}

// JSON writes sum as indented JSON.
func JSON(w io.Writer, sum ingest.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(FromSummary(sum))
}

// SpecText writes the columns of a probed table: name, header text, type,
// nullability, key and index membership.
func SpecText(w io.Writer, spec schema.TableSpec, encoding string) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render("table "+spec.Name) + mutedStyle.Render("  encoding "+orDash(encoding)) + "\n")

	rows := make([][]string, 0, len(spec.Columns)+1)
	if spec.PrimaryKey.Synthetic {
		rows = append(rows, []string{spec.PrimaryKey.Name, "", "INTEGER", "no", "synthetic", ""})
	}
	for _, c := range spec.Columns {
		key := ""
		if !spec.PrimaryKey.Synthetic && c.Name == spec.PrimaryKey.Name {
			key = "primary"
		}
		indexed := ""
		if spec.Indexed(c.Name) {
			indexed = "yes"
		}
		rows = append(rows, []string{c.Name, c.RawName, c.Type.String(), yesNo(c.Nullable), key, indexed})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("COLUMN", "HEADER", "TYPE", "NULLABLE", "KEY", "INDEXED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	b.WriteString(t.String() + "\n")

	if len(spec.Indexes) > 0 {
		names := make([]string, len(spec.Indexes))
		for i, idx := range spec.Indexes {
			names[i] = idx.Name
		}
		sort.Strings(names)
		b.WriteString(mutedStyle.Render("indexes: "+strings.Join(names, ", ")) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// SpecJSON writes spec as indented JSON with the detected encoding.
func SpecJSON(w io.Writer, spec schema.TableSpec, encoding string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Encoding string           `json:"encoding"`
		Table    schema.TableSpec `json:"table"`
	}{encoding, spec})
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Tables writes the table list with row counts.
func Tables(w io.Writer, tables []browse.TableSummary) error {
	rows := make([][]string, len(tables))
	for i, t := range tables {
		rows[i] = []string{t.Name, strconv.FormatInt(t.Rows, 10)}
	}
	out := grid([]string{"TABLE", "ROWS"}, rows, map[int]bool{1: true})
	_, err := io.WriteString(w, out+"\n")
	return err
}

// SearchHits writes one table per matching source table. Cells are
// rendered with fmt's %v; NULL prints as an empty cell.
func SearchHits(w io.Writer, query string, hits []browse.SearchHit) error {
	var b strings.Builder
	if len(hits) == 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("no matches for %q", query)) + "\n")
	}
	for _, h := range hits {
		b.WriteString(titleStyle.Render(h.Table) + mutedStyle.Render(fmt.Sprintf("  %d rows", len(h.Rows))) + "\n")
		rows := make([][]string, len(h.Rows))
		for i, rec := range h.Rows {
			row := make([]string, len(h.Columns))
			for j, c := range h.Columns {
				if v := rec[c]; v != nil {
					row[j] = fmt.Sprintf("%v", v)
				}
			}
			rows[i] = row
		}
		b.WriteString(grid(h.Columns, rows, nil) + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func grid(headers []string, rows [][]string, numeric map[int]bool) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case numeric[col]:
				return numStyle
			}
			return cellStyle
		}).
		String()
}
