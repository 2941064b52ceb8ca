// Package datasource abstracts where input CSV files come from. A Source is
// one file; Open may be called more than once (encoding detection reads the
// file before the load reads it again).
package datasource

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"
)

// Source is one input file.
type Source interface {
	// Path identifies the file in logs and results and decides processing
	// order. It is a local path or an s3:// URL.
	Path() string
	// Open returns a fresh reader positioned at the start of the file.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Stem returns the base name of p without its extension, which becomes the
// raw table name.
func Stem(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// IsCSV reports whether name has a .csv extension, case-insensitively.
func IsCSV(name string) bool {
	return strings.EqualFold(path.Ext(name), ".csv")
}

// SortByPath orders sources by Path, the processing order of a run.
func SortByPath(srcs []Source) {
	sort.SliceStable(srcs, func(i, j int) bool { return srcs[i].Path() < srcs[j].Path() })
}
