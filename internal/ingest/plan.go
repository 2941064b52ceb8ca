package ingest

import (
	"fmt"
	"strings"

	"csvingest/internal/datasource"
	"csvingest/internal/probe"
	"csvingest/internal/schema"
)

// Policy decides what happens when two files normalize to the same table
// name.
type Policy string

const (
	// PolicyRename gives the second and later files <name>_2, <name>_3, ...
	PolicyRename Policy = "rename"
	// PolicyAppend loads later files into the first file's table. Their
	// columns must match.
	PolicyAppend Policy = "append"
	// PolicyReplace drops and recreates the table for every file; the last
	// file wins.
	PolicyReplace Policy = "replace"
	// PolicyFail fails later files with a DuplicateTableName schema error.
	PolicyFail Policy = "fail"
)

// ParsePolicy maps a config value to a Policy. Empty means PolicyRename.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyRename, nil
	case PolicyRename, PolicyAppend, PolicyReplace, PolicyFail:
		return p, nil
	default:
		return "", fmt.Errorf("ingest: unknown table conflict policy %q (want rename|append|replace|fail)", s)
	}
}

// Parallel reports whether files of a run may load concurrently under p.
// Only policies whose table names are fully decided up front qualify.
func (p Policy) Parallel() bool { return p == PolicyRename || p == PolicyFail }

// mode is what a job does with its table.
type mode int

const (
	modeCreate mode = iota // drop if present, create, load
	modeAppend             // load into a table created by an earlier file
	modeReject             // fail without reading the file
)

type job struct {
	index int
	src   datasource.Source
	table string
	mode  mode
	err   error // set for modeReject
}

// planJobs assigns a table name and mode to every source. srcs must already
// be sorted; the first file to claim a name owns it.
func planJobs(srcs []datasource.Source, policy Policy) []job {
	jobs := make([]job, len(srcs))
	seen := map[string]int{} // base name -> files claiming it
	used := map[string]bool{}

	for i, src := range srcs {
		base := probe.NormalizeTable(datasource.Stem(src.Path()))
		seen[base]++
		j := job{index: i, src: src, table: base}

		switch {
		case policy == PolicyRename:
			// A renamed table may already hold the name another file
			// normalizes to, so check used names rather than counts.
			if used[base] {
				j.table = nextFree(base, used)
			}
		case seen[base] == 1:
		case policy == PolicyAppend:
			j.mode = modeAppend
		case policy == PolicyReplace:
			j.mode = modeCreate
		default:
			j.mode = modeReject
			j.err = &schema.SchemaError{
				Kind:   schema.DuplicateTableName,
				Table:  base,
				Detail: fmt.Sprintf("%s normalizes to a table name already used in this run", src.Path()),
			}
		}
		used[j.table] = true
		jobs[i] = j
	}
	return jobs
}

// nextFree returns the first base_<n> (n >= 2) not in used.
func nextFree(base string, used map[string]bool) string {
	for n := 2; ; n++ {
		name := probe.WithSuffix(base, n)
		if !used[name] {
			return name
		}
	}
}
