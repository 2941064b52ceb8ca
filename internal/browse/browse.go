// Package browse is the read side over a loaded store: table listing, paged
// rows, substring search across every table and foreign key hints.
package browse

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"csvingest/internal/probe"
	"csvingest/internal/schema"
	"csvingest/internal/storage"
)

const (
	DefaultPageSize    = 50
	DefaultSearchLimit = 25
	MaxPageSize        = 1000
)

// ErrEmptyQuery is returned by Search for a blank term.
var ErrEmptyQuery = errors.New("browse: empty search query")

// Service answers browse queries against Catalog. Zero values of PageSize
// and SearchLimit use the defaults.
type Service struct {
	Catalog     storage.Catalog
	PageSize    int
	SearchLimit int // rows per table
}

// TableSummary is one entry of the table list.
type TableSummary struct {
	Name string `json:"name"`
	Rows int64  `json:"rows"`
}

// TablePage is one page of a table's rows.
type TablePage struct {
	Name     string               `json:"name"`
	Columns  []storage.ColumnInfo `json:"columns"`
	Rows     []storage.Record     `json:"rows"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Total    int64                `json:"total"`
}

// Pages returns the number of pages Total spans.
func (p TablePage) Pages() int {
	if p.PageSize <= 0 || p.Total == 0 {
		return 0
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

// SearchHit holds the matching rows of one table.
type SearchHit struct {
	Table   string           `json:"table"`
	Columns []string         `json:"columns"`
	Rows    []storage.Record `json:"rows"`
}

func (s *Service) pageSize() int {
	switch {
	case s.PageSize <= 0:
		return DefaultPageSize
	case s.PageSize > MaxPageSize:
		return MaxPageSize
	}
	return s.PageSize
}

func (s *Service) searchLimit() int {
	if s.SearchLimit <= 0 {
		return DefaultSearchLimit
	}
	return s.SearchLimit
}

// Tables lists every table with its row count, sorted by name.
func (s *Service) Tables(ctx context.Context) ([]TableSummary, error) {
	names, err := s.Catalog.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TableSummary, 0, len(names))
	for _, name := range names {
		n, err := s.Catalog.CountRows(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, TableSummary{Name: name, Rows: n})
	}
	return out, nil
}

// lookup resolves name against the catalog so only existing tables reach
// query text.
func (s *Service) lookup(ctx context.Context, name string) (string, error) {
	names, err := s.Catalog.ListTables(ctx)
	if err != nil {
		return "", err
	}
	want := strings.ToLower(strings.TrimSpace(name))
	for _, n := range names {
		if strings.ToLower(n) == want {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", storage.ErrTableNotFound, name)
}

// Table returns page (1-based) of the named table. Pages past the end come
// back with no rows.
func (s *Service) Table(ctx context.Context, name string, page int) (TablePage, error) {
	table, err := s.lookup(ctx, name)
	if err != nil {
		return TablePage{}, err
	}
	if page < 1 {
		page = 1
	}
	size := s.pageSize()

	cols, err := s.Catalog.DescribeTable(ctx, table)
	if err != nil {
		return TablePage{}, err
	}
	total, err := s.Catalog.CountRows(ctx, table)
	if err != nil {
		return TablePage{}, err
	}
	out := TablePage{Name: table, Columns: cols, Page: page, PageSize: size, Total: total, Rows: []storage.Record{}}
	offset := (page - 1) * size
	if int64(offset) >= total {
		return out, nil
	}
	rows, err := s.Catalog.SelectRows(ctx, table, size, offset)
	if err != nil {
		return TablePage{}, err
	}
	out.Rows = rows
	return out, nil
}

// Search looks for q as a case-insensitive substring of any column of any
// table. Tables without a match are left out.
func (s *Service) Search(ctx context.Context, q string) ([]SearchHit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	names, err := s.Catalog.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	var out []SearchHit
	for _, name := range names {
		info, err := s.Catalog.DescribeTable(ctx, name)
		if err != nil {
			return nil, err
		}
		cols := make([]string, len(info))
		for i, c := range info {
			cols[i] = c.Name
		}
		rows, err := s.Catalog.SearchTable(ctx, name, cols, q, s.searchLimit())
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			out = append(out, SearchHit{Table: name, Columns: cols, Rows: rows})
		}
	}
	return out, nil
}

// Relationships derives foreign key hints from the stored tables. A primary
// key named id is treated as a natural key here since the store cannot tell
// a synthetic one apart.
func (s *Service) Relationships(ctx context.Context) ([]schema.ForeignKeyHint, error) {
	specs, err := s.Specs(ctx)
	if err != nil {
		return nil, err
	}
	hints := probe.ForeignKeyHints(specs)
	if hints == nil {
		hints = []schema.ForeignKeyHint{}
	}
	return hints, nil
}

// Specs rebuilds a TableSpec per stored table from the catalog. Column types
// are not recovered; every column reads back as TEXT.
func (s *Service) Specs(ctx context.Context) ([]schema.TableSpec, error) {
	names, err := s.Catalog.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	specs := make([]schema.TableSpec, 0, len(names))
	for _, name := range names {
		info, err := s.Catalog.DescribeTable(ctx, name)
		if err != nil {
			return nil, err
		}
		spec := schema.TableSpec{Name: name, PrimaryKey: schema.PrimaryKeySpec{Synthetic: true}}
		for _, c := range info {
			if c.PrimaryKey && spec.PrimaryKey.Name == "" {
				spec.PrimaryKey = schema.PrimaryKeySpec{Name: c.Name}
			}
			spec.Columns = append(spec.Columns, schema.ColumnSpec{Name: c.Name, Type: schema.Text, Nullable: c.Nullable})
		}
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, nil
}
