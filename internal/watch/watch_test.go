package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	runs int64
}

func (r *countingRunner) RunOnce(context.Context) error {
	atomic.AddInt64(&r.runs, 1)
	return nil
}

func waitForRuns(t *testing.T, r *countingRunner, want int64) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if atomic.LoadInt64(&r.runs) >= want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("expected %d runs, got %d", want, atomic.LoadInt64(&r.runs))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWatcherRunsOnInterval(t *testing.T) {
	inventory := filepath.Join(t.TempDir(), "pages.csv")
	require.NoError(t, os.WriteFile(inventory, []byte("/home\n"), 0o600))

	runner := &countingRunner{}
	w := New(runner, Options{Inventory: inventory, Interval: 50 * time.Millisecond, Debounce: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitForRuns(t, runner, 2)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatcherRunsOnInventoryChange(t *testing.T) {
	dir := t.TempDir()
	inventory := filepath.Join(dir, "pages.csv")
	require.NoError(t, os.WriteFile(inventory, []byte("/home\n"), 0o600))

	runner := &countingRunner{}
	// No interval: only inventory changes trigger runs.
	w := New(runner, Options{Inventory: inventory, Debounce: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to register before touching the file.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(inventory, []byte("/home\n/pricing\n"), 0o600))

	waitForRuns(t, runner, 1)
	cancel()
	<-done
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	inventory := filepath.Join(dir, "pages.csv")
	require.NoError(t, os.WriteFile(inventory, []byte("/home\n"), 0o600))

	runner := &countingRunner{}
	w := New(runner, Options{Inventory: inventory, Debounce: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	time.Sleep(150 * time.Millisecond)

	assert.Zero(t, atomic.LoadInt64(&runner.runs))
}
