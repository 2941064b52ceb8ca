// Package loader streams parsed CSV rows into a store under a TableSpec.
//
// Rows are coerced cell by cell, grouped into batches and written one
// transaction per batch. Row-level problems are recovered and recorded as
// typed warnings; a store failure stops the file but keeps every batch that
// was already committed.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"csvingest/internal/metrics"
	"csvingest/internal/schema"
	"csvingest/internal/storage"
	"csvingest/internal/transformer"
	"csvingest/internal/value"
)

const (
	DefaultBatchSize   = 500
	DefaultMaxWarnings = 100
)

// Logger is the minimal logging interface used by the loader.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Options controls Load.
type Options struct {
	// BatchSize is the number of rows per transaction. <= 0 means
	// DefaultBatchSize.
	BatchSize int

	// MaxWarnings bounds LoadResult.Warnings. WarningCounts always counts
	// every warning. 0 means DefaultMaxWarnings; < 0 keeps none.
	MaxWarnings int

	// StripHTML reduces TEXT cells that contain markup to their visible text.
	StripHTML bool

	// Keys is the set of primary key values already in the table. Nil
	// starts an empty set.
	Keys *KeySet

	// Abort, when set, is called with the fatal error before the loader
	// drains the remaining rows, so the producer can stop early.
	Abort context.CancelCauseFunc

	Logger Logger
}

// LoadResult is the outcome of loading one file.
//
// Invariant: RowsLoaded + RowsFailed == RowsAttempted.
type LoadResult struct {
	FilePath  string
	TableName string
	Encoding  string

	RowsAttempted int64
	RowsLoaded    int64
	RowsFailed    int64
	Batches       int

	Warnings      []Warning
	WarningCounts map[WarningKind]int

	// Err is the error that stopped the file, if any: *schema.SchemaError,
	// *charset.EncodingError, *storage.StoreError or a context error.
	Err error

	Duration time.Duration

	// Table is the spec the file was loaded under. Columns that turned out
	// to hold nulls past the sample window are marked Nullable.
	Table schema.TableSpec
}

// Status summarizes the result: "failed" when Err is set, "partial" when
// some rows failed, "ok" otherwise.
func (r LoadResult) Status() string {
	switch {
	case r.Err != nil:
		return "failed"
	case r.RowsFailed > 0:
		return "partial"
	default:
		return "ok"
	}
}

// Load consumes rows until the channel is closed and writes them into
// spec.Name. The caller must have created the table. Load always returns a
// LoadResult; fatal problems are reported in its Err field.
//
// Every row received is either loaded or failed. After a fatal error the
// remaining rows are drained without being counted, and dropped rather than
// re-pooled.
func Load(ctx context.Context, st storage.Store, spec schema.TableSpec, rows <-chan *transformer.Row, opt Options) LoadResult {
	l := newFileLoader(st, spec, opt)
	start := time.Now()

loop:
	for {
		select {
		case <-ctx.Done():
			l.fatal(context.Cause(ctx))
			break loop
		case r, ok := <-rows:
			if !ok {
				break loop
			}
			l.row(r)
			r.Free()
			if l.full() {
				l.flush(ctx)
			}
			if l.res.Err != nil {
				break loop
			}
		}
	}

	if l.res.Err == nil {
		if err := ctx.Err(); err != nil {
			l.fatal(context.Cause(ctx))
		} else {
			l.flush(ctx)
		}
	}
	if l.res.Err != nil {
		l.failPending()
		if opt.Abort != nil {
			opt.Abort(l.res.Err)
		}
		for r := range rows {
			r.Drop()
		}
	}

	l.res.Duration = time.Since(start)
	l.report()
	return l.res
}

type fileLoader struct {
	st   storage.Store
	opt  Options
	logf func(format string, v ...any)
	keys *KeySet

	cols  []string
	types []schema.ColumnType
	pk    int

	batch     [][]value.Value
	batchKeys []string

	res LoadResult
}

func newFileLoader(st storage.Store, spec schema.TableSpec, opt Options) *fileLoader {
	if opt.BatchSize <= 0 {
		opt.BatchSize = DefaultBatchSize
	}
	if opt.MaxWarnings == 0 {
		opt.MaxWarnings = DefaultMaxWarnings
	}
	keys := opt.Keys
	if keys == nil {
		keys = NewKeySet()
	}

	table := spec
	table.Columns = append([]schema.ColumnSpec(nil), spec.Columns...)

	types := make([]schema.ColumnType, len(spec.Columns))
	for i, c := range spec.Columns {
		types[i] = c.Type
	}

	l := &fileLoader{
		st:    st,
		opt:   opt,
		logf:  logger(opt.Logger),
		keys:  keys,
		cols:  spec.ColumnNames(),
		types: types,
		pk:    spec.PrimaryKeyIndex(),
		batch: make([][]value.Value, 0, opt.BatchSize),
		res: LoadResult{
			TableName:     spec.Name,
			WarningCounts: map[WarningKind]int{},
			Table:         table,
		},
	}
	return l
}

func logger(l Logger) func(format string, v ...any) {
	if l == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return l.Printf
}

// row coerces one record into the pending batch, or counts it failed.
func (l *fileLoader) row(r *transformer.Row) {
	l.res.RowsAttempted++

	if r.Err != nil {
		l.fail()
		l.warn(WarnParse, r.Line, "", r.Err)
		return
	}

	cells := r.V
	if len(cells) != len(l.cols) {
		l.warn(WarnRowShape, r.Line, "", &RowShapeError{Line: r.Line, Got: len(cells), Want: len(l.cols)})
	}

	vals := make([]value.Value, len(l.cols))
	key := ""
	for i, name := range l.cols {
		raw := ""
		if i < len(cells) {
			raw = cells[i]
		}
		if l.opt.StripHTML && l.types[i] == schema.Text {
			raw = transformer.StripHTML(raw)
		}

		v, err := value.Coerce(raw, l.types[i])
		if err != nil {
			l.warn(WarnCellCoercion, r.Line, name, &CellCoercionError{Line: r.Line, Column: name, Type: l.types[i], Err: err})
			if i == l.pk {
				l.fail()
				return
			}
			v = value.Null{}
		}

		if i == l.pk {
			if value.IsNull(v) {
				l.fail()
				l.warn(WarnNullKey, r.Line, name, &KeyError{Line: r.Line, Column: name, Kind: WarnNullKey})
				return
			}
			key = value.Key(v)
		} else if value.IsNull(v) && !l.res.Table.Columns[i].Nullable {
			l.res.Table.Columns[i].Nullable = true
			l.logf("stage=load table=%s column=%s note=null_past_sample line=%d", l.res.TableName, name, r.Line)
		}
		vals[i] = v
	}

	if l.pk >= 0 {
		if !l.keys.Add(key) {
			l.fail()
			l.warn(WarnDuplicateKey, r.Line, l.cols[l.pk], &KeyError{Line: r.Line, Column: l.cols[l.pk], Value: vals[l.pk].String(), Kind: WarnDuplicateKey})
			return
		}
		l.batchKeys = append(l.batchKeys, key)
	}
	l.batch = append(l.batch, vals)
}

func (l *fileLoader) full() bool { return len(l.batch) >= l.opt.BatchSize }

// flush writes the pending batch in its own transaction. On failure the batch
// is rolled back, its rows are counted failed and the error becomes fatal.
func (l *fileLoader) flush(ctx context.Context) {
	if len(l.batch) == 0 {
		return
	}
	start := time.Now()
	n := int64(len(l.batch))

	if err := l.insert(ctx); err != nil {
		l.fatal(err)
		return
	}

	l.res.RowsLoaded += n
	l.res.Batches++
	metrics.IncCounter(metrics.BatchesTotal, 1, nil)
	l.logf("stage=load_batch table=%s batch=%d rows=%d duration=%s",
		l.res.TableName, l.res.Batches, n, time.Since(start).Truncate(time.Millisecond))

	l.batch = l.batch[:0]
	l.batchKeys = l.batchKeys[:0]
}

func (l *fileLoader) insert(ctx context.Context) (err error) {
	tx, err := l.st.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
		}
	}()

	if _, err := tx.Insert(ctx, l.res.TableName, l.cols, l.batch); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// fatal records the error that stops the file. Store failures keep their
// *storage.StoreError type; anything else from the store is wrapped.
func (l *fileLoader) fatal(err error) {
	if err == nil || l.res.Err != nil {
		return
	}
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		err = storage.Wrap("load", l.res.TableName, err)
	}
	l.res.Err = err
	l.logf("stage=load table=%s status=error err=%v", l.res.TableName, err)
}

// failPending counts the unwritten batch as failed and releases its keys.
func (l *fileLoader) failPending() {
	if len(l.batch) == 0 {
		return
	}
	l.res.RowsFailed += int64(len(l.batch))
	l.keys.Remove(l.batchKeys...)
	l.batch = l.batch[:0]
	l.batchKeys = l.batchKeys[:0]
}

func (l *fileLoader) fail() { l.res.RowsFailed++ }

func (l *fileLoader) warn(kind WarningKind, line int, column string, err error) {
	l.res.record(Warning{Kind: kind, Line: line, Column: column, Message: err.Error(), Err: err}, l.opt.MaxWarnings)
}

// AddWarning records a problem found outside the row stream, such as during
// decoding. maxWarnings has the meaning of Options.MaxWarnings.
func (r *LoadResult) AddWarning(kind WarningKind, err error, maxWarnings int) {
	if maxWarnings == 0 {
		maxWarnings = DefaultMaxWarnings
	}
	r.record(Warning{Kind: kind, Message: err.Error(), Err: err}, maxWarnings)
	metrics.IncCounter(metrics.WarningsTotal, 1, metrics.Labels{"kind": string(kind)})
}

func (r *LoadResult) record(w Warning, maxWarnings int) {
	if r.WarningCounts == nil {
		r.WarningCounts = map[WarningKind]int{}
	}
	r.WarningCounts[w.Kind]++
	if maxWarnings < 0 || len(r.Warnings) >= maxWarnings {
		return
	}
	r.Warnings = append(r.Warnings, w)
}

func (l *fileLoader) report() {
	metrics.IncCounter(metrics.RowsTotal, float64(l.res.RowsLoaded), metrics.Labels{"kind": "loaded"})
	metrics.IncCounter(metrics.RowsTotal, float64(l.res.RowsFailed), metrics.Labels{"kind": "failed"})
	for kind, n := range l.res.WarningCounts {
		metrics.IncCounter(metrics.WarningsTotal, float64(n), metrics.Labels{"kind": string(kind)})
	}
	l.logf("stage=load table=%s status=%s rows_attempted=%d rows_loaded=%d rows_failed=%d batches=%d duration=%s",
		l.res.TableName, l.res.Status(), l.res.RowsAttempted, l.res.RowsLoaded, l.res.RowsFailed,
		l.res.Batches, l.res.Duration.Truncate(time.Millisecond))
}

// String renders a one-line summary for logs.
func (r LoadResult) String() string {
	return fmt.Sprintf("file=%s table=%s status=%s attempted=%d loaded=%d failed=%d",
		r.FilePath, r.TableName, r.Status(), r.RowsAttempted, r.RowsLoaded, r.RowsFailed)
}
