package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"csvingest/internal/datasource"
	"csvingest/internal/datasource/file"
)

// DefaultDebounce is how long a path must stay quiet before it is reloaded.
const DefaultDebounce = 500 * time.Millisecond

// WatchOptions controls Watch.
type WatchOptions struct {
	Debounce time.Duration // DefaultDebounce

	// OnReload is called with the summary of every reload, from the watch
	// goroutine.
	OnReload func(Summary)

	// OnReady is called once the directory tree is being watched.
	OnReady func()
}

// Watch reloads a CSV file under dir each time it is created or written,
// replacing the file's table. Bursts of events for one path collapse into
// a single reload. Reloads run one at a time. Watch returns nil when ctx is
// done.
func (r *Runner) Watch(ctx context.Context, dir string, wo WatchOptions) error {
	logf := r.logger()
	if wo.Debounce <= 0 {
		wo.Debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := watchTree(w, dir); err != nil {
		return err
	}
	logf("stage=watch dir=%s status=ready", dir)
	if wo.OnReady != nil {
		wo.OnReady()
	}

	done := make(chan struct{})
	defer close(done)
	deb := newDebouncer(wo.Debounce, done)
	defer deb.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := watchTree(w, ev.Name); err != nil {
						logf("stage=watch dir=%s status=error err=%v", ev.Name, err)
					}
					continue
				}
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !datasource.IsCSV(ev.Name) {
				continue
			}
			deb.touch(ev.Name)

		case f := <-deb.ready:
			if !deb.due(f) {
				continue
			}
			logf("stage=watch file=%s status=changed", f.path)
			sum := r.reload(ctx, f.path)
			if wo.OnReload != nil {
				wo.OnReload(sum)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logf("stage=watch status=error err=%v", err)
		}
	}
}

// fired is a debounce timer expiry for path. gen identifies the touch that
// armed the timer.
type fired struct {
	path string
	gen  uint64
}

// debouncer collapses bursts of touches per path into one fired value on
// ready. It is used from a single goroutine; only the timer callbacks run
// elsewhere, and they only send on ready.
type debouncer struct {
	delay  time.Duration
	ready  chan fired
	done   <-chan struct{}
	timers map[string]*time.Timer
	gens   map[string]uint64
}

func newDebouncer(delay time.Duration, done <-chan struct{}) *debouncer {
	return &debouncer{
		delay:  delay,
		ready:  make(chan fired),
		done:   done,
		timers: map[string]*time.Timer{},
		gens:   map[string]uint64{},
	}
}

// touch restarts the quiet period of path. A timer that already fired and
// is blocked on ready becomes stale.
func (d *debouncer) touch(path string) {
	if t, ok := d.timers[path]; ok {
		t.Stop()
	}
	d.gens[path]++
	f := fired{path: path, gen: d.gens[path]}
	d.timers[path] = time.AfterFunc(d.delay, func() {
		select {
		case d.ready <- f:
		case <-d.done:
		}
	})
}

// due reports whether f comes from the latest touch of its path and, if so,
// forgets the path.
func (d *debouncer) due(f fired) bool {
	if d.gens[f.path] != f.gen {
		return false
	}
	delete(d.timers, f.path)
	delete(d.gens, f.path)
	return true
}

func (d *debouncer) stop() {
	for _, t := range d.timers {
		t.Stop()
	}
}

// reload loads one file with replace semantics, leaving r's options alone.
func (r *Runner) reload(ctx context.Context, path string) Summary {
	opt := r.Options
	opt.Conflict = PolicyReplace
	opt.Workers = 1
	one := &Runner{Store: r.Store, Options: opt, Logger: r.Logger, Now: r.Now, NewID: r.NewID}
	return one.Run(ctx, file.FromPaths([]string{path}))
}

// watchTree adds dir and its subdirectories, skipping hidden ones the way
// file.Discover does.
func watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
