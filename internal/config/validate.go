package config

import (
	"fmt"
	"os"
	"strings"

	"csvingest/internal/datasource/charset"
	"csvingest/internal/ingest"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the YAML key it concerns.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// KnownStores are the store kinds the csvingest binary links in.
var KnownStores = []string{"sqlite", "postgres", "mssql", "mysql"}

// Validate checks the settings a load needs. Warnings describe settings that
// work but probably do not do what was intended.
func (c *Config) Validate() []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.InputDir) == "" {
		add(SeverityError, "input_dir", "is required")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		add(SeverityError, "db_path", "is required")
	}
	if !contains(KnownStores, c.StorageConfig().Kind) {
		add(SeverityError, "store", "unknown store %q (want one of %s)", c.Store, strings.Join(KnownStores, ", "))
	}

	if c.SampleSize < 1 {
		add(SeverityError, "sample_size", "must be at least 1, got %d", c.SampleSize)
	}
	if c.BatchSize < 1 {
		add(SeverityError, "batch_size", "must be at least 1, got %d", c.BatchSize)
	}

	if len(c.EncodingFallbacks) == 0 {
		add(SeverityWarning, "encoding_fallbacks", "empty; the default chain %v is used", charset.DefaultFallbacks)
	}
	for i, label := range c.EncodingFallbacks {
		path := fmt.Sprintf("encoding_fallbacks[%d]", i)
		if !charset.Known(label) {
			add(SeverityError, path, "unknown encoding %q", label)
			continue
		}
		if charset.Canonical(label) == charset.Replace && i < len(c.EncodingFallbacks)-1 {
			add(SeverityWarning, path, "%q accepts any input; later entries are never tried", charset.Replace)
		}
	}

	if _, err := c.DelimiterRune(); err != nil {
		add(SeverityError, "delimiter", "%v", err)
	}

	policy, err := ingest.ParsePolicy(c.TableConflict)
	if err != nil {
		add(SeverityError, "table_conflict", "%v", err)
	}
	switch {
	case c.Workers < 1:
		add(SeverityError, "workers", "must be at least 1, got %d", c.Workers)
	case c.Workers > 1 && err == nil && !policy.Parallel():
		add(SeverityWarning, "workers", "table_conflict=%s loads files one at a time; workers=%d is ignored", policy, c.Workers)
	}

	for i, r := range c.IndexRules {
		if strings.TrimSpace(r.Column) == "" {
			add(SeverityError, fmt.Sprintf("index_rules[%d].column", i), "is required")
		}
	}

	switch strings.ToLower(c.Metrics.Backend) {
	case "", "none":
	case "datadog":
		if os.Getenv("DD_API_KEY") == "" {
			add(SeverityWarning, "metrics.backend", "datadog selected but DD_API_KEY is not set")
		}
	default:
		add(SeverityError, "metrics.backend", "unknown backend %q (want none or datadog)", c.Metrics.Backend)
	}
	if d, err := c.FlushInterval(); err != nil {
		add(SeverityError, "metrics.flush_every", "%v", err)
	} else if d < 0 {
		add(SeverityError, "metrics.flush_every", "must not be negative")
	}

	if c.Serve.PageSize < 1 || c.Serve.PageSize > 1000 {
		add(SeverityError, "serve.page_size", "must be between 1 and 1000, got %d", c.Serve.PageSize)
	}

	return issues
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
