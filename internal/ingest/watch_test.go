package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatch(t *testing.T, r *Runner, dir string) <-chan Summary {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	reloads := make(chan Summary, 8)
	ready := make(chan struct{})
	errc := make(chan error, 1)

	go func() {
		errc <- r.Watch(ctx, dir, WatchOptions{
			Debounce: 50 * time.Millisecond,
			OnReload: func(s Summary) { reloads <- s },
			OnReady:  func() { close(ready) },
		})
	}()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errc)
	})

	select {
	case <-ready:
	case err := <-errc:
		t.Fatalf("watch stopped early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not become ready")
	}
	return reloads
}

func nextReload(t *testing.T, reloads <-chan Summary) Summary {
	t.Helper()
	select {
	case s := <-reloads:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}
	return Summary{}
}

func TestWatch_ReloadsChangedFile(t *testing.T) {
	dir := t.TempDir()
	st := openStore(t)
	r := newRunner(st, Options{Conflict: PolicyAppend})
	reloads := startWatch(t, r, dir)

	writeCSV(t, dir, "people.csv", "name,age\nada,36\nalan,41\n")
	sum := nextReload(t, reloads)
	require.Len(t, sum.Results, 1)
	require.NoError(t, sum.Results[0].Err)
	assert.Equal(t, "people", sum.Results[0].TableName)
	assert.EqualValues(t, 2, count(t, st, "people"))

	writeCSV(t, dir, "people.csv", "name,age\ngrace,85\n")
	sum = nextReload(t, reloads)
	require.NoError(t, sum.Results[0].Err)
	assert.EqualValues(t, 1, count(t, st, "people"), "a reload replaces the table")
	assert.Equal(t, PolicyAppend, r.Options.Conflict, "reloads leave the runner options alone")
}

func TestWatch_NewSubdirectoryAndNonCSV(t *testing.T) {
	dir := t.TempDir()
	st := openStore(t)
	reloads := startWatch(t, newRunner(st, Options{}), dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	sub := filepath.Join(dir, "exports")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watcher a moment to pick up the new directory.
	time.Sleep(200 * time.Millisecond)

	writeCSV(t, sub, "Messages.CSV", "from,body\nada,hi\n")
	sum := nextReload(t, reloads)
	require.Len(t, sum.Results, 1)
	assert.Equal(t, "messages", sum.Results[0].TableName)
	assert.Equal(t, filepath.Join(sub, "Messages.CSV"), sum.Results[0].FilePath)

	select {
	case s := <-reloads:
		t.Fatalf("unexpected reload of %s", s.Results[0].FilePath)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatch_MissingDir(t *testing.T) {
	r := newRunner(openStore(t), Options{})
	err := r.Watch(context.Background(), filepath.Join(t.TempDir(), "nope"), WatchOptions{})
	assert.Error(t, err)
}

func TestDebouncer_TouchAfterFireMakesEarlierStale(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	d := newDebouncer(time.Millisecond, done)
	defer d.stop()

	recv := func() fired {
		t.Helper()
		select {
		case f := <-d.ready:
			return f
		case <-time.After(2 * time.Second):
			t.Fatal("timer never fired")
			return fired{}
		}
	}

	d.touch("a.csv")
	first := recv()
	// A new event lands before the first expiry is handled.
	d.touch("a.csv")
	second := recv()

	assert.False(t, d.due(first), "superseded expiry must not reload")
	assert.True(t, d.due(second))
	assert.False(t, d.due(second), "a path is reloaded once per quiet period")
}

func TestDebouncer_PathsAreIndependent(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	d := newDebouncer(time.Millisecond, done)
	defer d.stop()

	d.touch("a.csv")
	d.touch("b.csv")
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case f := <-d.ready:
			got[f.path] = d.due(f)
		case <-time.After(2 * time.Second):
			t.Fatal("timer never fired")
		}
	}
	assert.Equal(t, map[string]bool{"a.csv": true, "b.csv": true}, got)
}
