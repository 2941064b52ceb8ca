// Package metrics is the small instrumentation facade used by the loader and
// the orchestrator. Core code only talks to the package-level functions; the
// process picks a Backend once at startup (datadog or none).
package metrics

import "sync"

// Metric names emitted by csvingest.
const (
	FilesTotal          = "csvingest_files_total"           // labels: status
	RowsTotal           = "csvingest_rows_total"            // labels: kind
	BatchesTotal        = "csvingest_batches_total"         // no labels
	WarningsTotal       = "csvingest_warnings_total"        // labels: kind
	FileDurationSeconds = "csvingest_file_duration_seconds" // labels: status
)

// Labels are key/value dimensions attached to a sample.
type Labels map[string]string

// Backend receives samples. Implementations must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the
// no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter on the current backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one histogram sample on the current backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush asks the current backend to submit buffered samples.
func Flush() error {
	return current().Flush()
}
