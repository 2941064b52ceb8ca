// Package file provides datasource.Source values backed by the local
// filesystem.
package file

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"csvingest/internal/datasource"
)

// Source is a local CSV file.
type Source struct {
	path string
}

// New returns a Source for path. The file is not opened.
func New(path string) *Source { return &Source{path: path} }

func (s *Source) Path() string { return s.path }

func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	return f, nil
}

// Discover walks dir recursively and returns every *.csv file (extension
// matched case-insensitively), sorted by path. Hidden directories are
// skipped.
func Discover(dir string) ([]datasource.Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("input dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input dir: %s is not a directory", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && len(d.Name()) > 1 && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && datasource.IsCSV(d.Name()) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	sort.Strings(paths)
	out := make([]datasource.Source, 0, len(paths))
	for _, p := range paths {
		out = append(out, New(p))
	}
	return out, nil
}

// FromPaths wraps explicit paths, sorted.
func FromPaths(paths []string) []datasource.Source {
	cp := append([]string(nil), paths...)
	sort.Strings(cp)
	out := make([]datasource.Source, 0, len(cp))
	for _, p := range cp {
		out = append(out, New(p))
	}
	return out
}

var _ datasource.Source = (*Source)(nil)
