// Package ingest orchestrates a run: it plans one table per input file,
// detects each file's encoding, infers its schema from a sample window,
// recreates the table and streams the rows through the loader.
//
// Files are independent units of work. A file that fails is recorded in its
// LoadResult and the run moves on.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"csvingest/internal/datasource"
	"csvingest/internal/datasource/charset"
	"csvingest/internal/datasource/file"
	"csvingest/internal/loader"
	"csvingest/internal/metrics"
	"csvingest/internal/parser/csv"
	"csvingest/internal/probe"
	"csvingest/internal/schema"
	"csvingest/internal/storage"
	"csvingest/internal/transformer"
)

// Logger is the minimal logging interface used by the runner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Options controls a run. Zero values fall back to the defaults noted on
// each field.
type Options struct {
	SampleSize        int      // probe.DefaultSampleSize
	BatchSize         int      // loader.DefaultBatchSize
	EncodingFallbacks []string // charset.DefaultFallbacks
	Delimiter         rune     // 0 sniffs the header line
	Conflict          Policy   // PolicyRename
	Workers           int      // 1

	PreserveLeadingZeros bool
	StripHTML            bool
	MaxWarnings          int // loader.DefaultMaxWarnings
	IndexRules           []probe.IndexRule

	// ChannelBuffer is the row channel capacity between parser and loader.
	ChannelBuffer int // 256
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		SampleSize:           probe.DefaultSampleSize,
		BatchSize:            loader.DefaultBatchSize,
		EncodingFallbacks:    charset.DefaultFallbacks,
		Conflict:             PolicyRename,
		Workers:              1,
		PreserveLeadingZeros: true,
		MaxWarnings:          loader.DefaultMaxWarnings,
		ChannelBuffer:        256,
	}
}

// Runner loads files into Store.
type Runner struct {
	Store   storage.Store
	Options Options
	Logger  Logger

	// Seams for tests.
	Now   func() time.Time
	NewID func() string

	mu      sync.Mutex
	appends map[string]*appendTarget
}

// appendTarget is the table an append group loads into, once its first
// file has created it.
type appendTarget struct {
	spec *schema.TableSpec
	keys *loader.KeySet
}

// Summary is the result of one run. Results are in processing order.
type Summary struct {
	RunID       string
	StartedAt   time.Time
	Duration    time.Duration
	Results     []loader.LoadResult
	ForeignKeys []schema.ForeignKeyHint
}

// Totals adds up the row counts of every file and counts the failed files.
func (s Summary) Totals() (attempted, loaded, failed int64, failedFiles int) {
	for _, r := range s.Results {
		attempted += r.RowsAttempted
		loaded += r.RowsLoaded
		failed += r.RowsFailed
		if r.Err != nil {
			failedFiles++
		}
	}
	return attempted, loaded, failed, failedFiles
}

// Err returns the errors of failed files joined, or nil.
func (s Summary) Err() error {
	var errs []error
	for _, r := range s.Results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.FilePath, r.Err))
		}
	}
	return errors.Join(errs...)
}

// RunPaths runs over local files.
func (r *Runner) RunPaths(ctx context.Context, paths []string) Summary {
	return r.Run(ctx, file.FromPaths(paths))
}

// Run loads every source and returns one LoadResult per source, ordered by
// path. It never aborts on a file; cancellation of ctx fails the files that
// have not finished.
func (r *Runner) Run(ctx context.Context, sources []datasource.Source) Summary {
	opt := r.options()
	logf := r.logger()

	srcs := append([]datasource.Source(nil), sources...)
	datasource.SortByPath(srcs)

	sum := Summary{RunID: r.newID(), StartedAt: r.now()}
	jobs := planJobs(srcs, opt.Conflict)
	results := make([]loader.LoadResult, len(jobs))

	r.mu.Lock()
	r.appends = map[string]*appendTarget{}
	r.mu.Unlock()

	workers := opt.Workers
	if workers > 1 && !opt.Conflict.Parallel() {
		logf("stage=run note=workers_forced_sequential policy=%s workers=%d", opt.Conflict, workers)
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}
	logf("stage=run run_id=%s files=%d workers=%d policy=%s", sum.RunID, len(jobs), workers, opt.Conflict)

	jobCh := make(chan job)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobCh {
				results[j.index] = r.runFile(ctx, j, opt)
			}
		}()
	}
	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)
	wg.Wait()

	sum.Results = results
	sum.ForeignKeys = probe.ForeignKeyHints(loadedTables(results))
	sum.Duration = r.now().Sub(sum.StartedAt)

	attempted, loaded, failed, failedFiles := sum.Totals()
	logf("stage=run run_id=%s status=done files=%d failed_files=%d rows_attempted=%d rows_loaded=%d rows_failed=%d duration=%s",
		sum.RunID, len(results), failedFiles, attempted, loaded, failed, sum.Duration.Truncate(time.Millisecond))
	return sum
}

// loadedTables returns the specs of files that reached the loader, one per
// table name (the last one wins, matching replace semantics).
func loadedTables(results []loader.LoadResult) []schema.TableSpec {
	idx := map[string]int{}
	var out []schema.TableSpec
	for _, res := range results {
		if res.Table.Name == "" {
			continue
		}
		if i, ok := idx[res.Table.Name]; ok {
			out[i] = res.Table
			continue
		}
		idx[res.Table.Name] = len(out)
		out = append(out, res.Table)
	}
	return out
}

func (r *Runner) runFile(ctx context.Context, j job, opt Options) loader.LoadResult {
	start := r.now()
	logf := r.logger()

	var res loader.LoadResult
	if j.mode == modeReject {
		res = loader.LoadResult{TableName: j.table, Err: j.err}
	} else {
		res = r.loadFile(ctx, j, opt)
	}
	res.FilePath = j.src.Path()
	res.TableName = j.table
	res.Duration = r.now().Sub(start)

	status := res.Status()
	metrics.IncCounter(metrics.FilesTotal, 1, metrics.Labels{"status": status})
	metrics.ObserveHistogram(metrics.FileDurationSeconds, res.Duration.Seconds(), metrics.Labels{"status": status})

	if res.Err != nil {
		logf("stage=file file=%s table=%s status=%s err=%v", res.FilePath, res.TableName, status, res.Err)
	} else {
		logf("stage=file file=%s table=%s encoding=%s status=%s rows_loaded=%d rows_failed=%d duration=%s",
			res.FilePath, res.TableName, res.Encoding, status, res.RowsLoaded, res.RowsFailed, res.Duration.Truncate(time.Millisecond))
	}
	return res
}

func (r *Runner) loadFile(ctx context.Context, j job, opt Options) loader.LoadResult {
	p, err := prepare(ctx, j.src, j.table, opt)
	if err != nil {
		return loader.LoadResult{Encoding: p.encoding, Err: err}
	}
	defer p.close()

	spec := p.spec
	var keys *loader.KeySet
	if j.mode == modeAppend {
		tgt := r.appendTarget(j.table)
		if tgt.spec != nil {
			if err := compatible(*tgt.spec, spec); err != nil {
				p.freePending()
				return loader.LoadResult{Encoding: p.encoding, Err: err}
			}
			spec = *tgt.spec
		} else {
			// Earlier files of the group failed before creating the table.
			j.mode = modeCreate
		}
		keys = tgt.keys
	}

	if j.mode == modeCreate {
		if err := recreate(ctx, r.Store, spec); err != nil {
			p.freePending()
			return loader.LoadResult{Encoding: p.encoding, Err: err}
		}
		if opt.Conflict == PolicyAppend {
			tgt := r.appendTarget(j.table)
			s := spec
			tgt.spec = &s
			keys = tgt.keys
		}
	}

	rows := make(chan *transformer.Row, opt.ChannelBuffer)
	streamCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	// The stream goroutine owns the sample rows from here on.
	pending := p.pending
	p.pending = nil

	streamErr := make(chan error, 1)
	go func() {
		defer close(rows)
		streamErr <- csv.StreamRows(streamCtx, p.reader, pending, rows)
	}()

	res := loader.Load(ctx, r.Store, spec, rows, loader.Options{
		BatchSize:   opt.BatchSize,
		MaxWarnings: opt.MaxWarnings,
		StripHTML:   opt.StripHTML,
		Keys:        keys,
		Abort:       abort,
		Logger:      r.Logger,
	})
	res.Encoding = p.encoding

	if err := <-streamErr; err != nil && res.Err == nil && streamCtx.Err() == nil {
		res.Err = fmt.Errorf("read %s: %w", j.src.Path(), err)
	}
	if p.replaced != nil {
		if n := p.replaced.Count(); n > 0 {
			res.AddWarning(loader.WarnEncodingReplacement, &loader.ReplacementError{Path: j.src.Path(), Count: n}, opt.MaxWarnings)
			r.logger()("stage=decode file=%s encoding=%s replaced=%d", j.src.Path(), p.encoding, n)
		}
	}
	return res
}

func (r *Runner) appendTarget(table string) *appendTarget {
	r.mu.Lock()
	defer r.mu.Unlock()
	tgt := r.appends[table]
	if tgt == nil {
		tgt = &appendTarget{keys: loader.NewKeySet()}
		r.appends[table] = tgt
	}
	return tgt
}

// recreate drops table if it exists and creates it with its indexes.
func recreate(ctx context.Context, st storage.Store, spec schema.TableSpec) error {
	if err := st.DropTable(ctx, spec.Name); err != nil {
		return err
	}
	return st.CreateTable(ctx, spec)
}

// compatible reports whether a file can append into target: the normalized
// column names must match in order.
func compatible(target, got schema.TableSpec) error {
	want, have := target.ColumnNames(), got.ColumnNames()
	same := len(want) == len(have)
	for i := 0; same && i < len(want); i++ {
		same = want[i] == have[i]
	}
	if same {
		return nil
	}
	return &schema.SchemaError{
		Kind:   schema.IncompatibleAppend,
		Table:  target.Name,
		Detail: fmt.Sprintf("columns %v do not match %v", have, want),
	}
}

// prepared is a file opened, decoded and probed, ready to stream.
type prepared struct {
	encoding string
	replaced *charset.Replacements // set for the replace fallback
	rc       io.ReadCloser
	reader   *csv.Reader
	pending  []*transformer.Row // the sample window, re-sent to the loader
	spec     schema.TableSpec
}

func (p *prepared) freePending() {
	for _, r := range p.pending {
		r.Free()
	}
	p.pending = nil
}

func (p *prepared) close() {
	p.freePending()
	if p.rc != nil {
		_ = p.rc.Close()
	}
}

// prepare detects the encoding, reads the header and the sample window and
// builds the TableSpec for table. On error the returned prepared carries the
// encoding (if detected) and holds no open resources.
func prepare(ctx context.Context, src datasource.Source, table string, opt Options) (p *prepared, err error) {
	p = &prepared{}
	enc, err := charset.Detect(ctx, src.Path(), src.Open, opt.EncodingFallbacks)
	if err != nil {
		return p, err
	}
	p.encoding = enc

	rc, err := src.Open(ctx)
	if err != nil {
		return p, fmt.Errorf("open %s: %w", src.Path(), err)
	}
	p.rc = rc
	defer func() {
		if err != nil {
			p.close()
			p.rc = nil
		}
	}()

	var dec io.Reader
	if enc == charset.Replace {
		dec, p.replaced = charset.NewReplacingReader(rc)
	} else if dec, err = charset.NewReader(rc, enc); err != nil {
		return p, err
	}
	rd, err := csv.NewReader(dec, csv.Options{Comma: opt.Delimiter})
	if err != nil {
		return p, fmt.Errorf("%s: %w", src.Path(), err)
	}
	p.reader = rd

	var sample [][]string
	for len(p.pending) < opt.SampleSize {
		row, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return p, fmt.Errorf("%s: %w", src.Path(), err)
		}
		p.pending = append(p.pending, row)
		if row.Err == nil {
			sample = append(sample, row.V)
		}
	}

	spec, err := probe.Build(table, rd.Header(), sample, probe.Options{
		Infer: probe.InferOptions{
			MaxSample:            opt.SampleSize,
			PreserveLeadingZeros: opt.PreserveLeadingZeros,
		},
		IndexRules: opt.IndexRules,
	})
	if err != nil {
		return p, err
	}
	p.spec = spec
	return p, nil
}

// Probe infers the TableSpec of one source without touching a store.
func Probe(ctx context.Context, src datasource.Source, opt Options) (schema.TableSpec, string, error) {
	opt = withDefaults(opt)
	p, err := prepare(ctx, src, probe.NormalizeTable(datasource.Stem(src.Path())), opt)
	if err != nil {
		return schema.TableSpec{}, p.encoding, err
	}
	p.close()
	return p.spec, p.encoding, nil
}

func withDefaults(opt Options) Options {
	def := DefaultOptions()
	if opt.SampleSize <= 0 {
		opt.SampleSize = def.SampleSize
	}
	if opt.BatchSize <= 0 {
		opt.BatchSize = def.BatchSize
	}
	if len(opt.EncodingFallbacks) == 0 {
		opt.EncodingFallbacks = def.EncodingFallbacks
	}
	if opt.Conflict == "" {
		opt.Conflict = def.Conflict
	}
	if opt.Workers <= 0 {
		opt.Workers = def.Workers
	}
	if opt.MaxWarnings == 0 {
		opt.MaxWarnings = def.MaxWarnings
	}
	if opt.ChannelBuffer <= 0 {
		opt.ChannelBuffer = def.ChannelBuffer
	}
	return opt
}

func (r *Runner) options() Options { return withDefaults(r.Options) }

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return r.Logger.Printf
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}
