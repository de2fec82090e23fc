// Package watch reruns the pipeline on a schedule and whenever the page
// inventory changes. Trigger requests coalesce: a run already in flight
// absorbs triggers that arrive while it executes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
)

// Runner executes one pipeline pass per trigger.
type Runner interface {
	RunOnce(ctx context.Context) error
}

// Options configures the watch loop.
type Options struct {
	Inventory string        // inventory file to watch for changes
	Interval  time.Duration // periodic rerun interval
	Debounce  time.Duration // quiet period after an inventory change
}

// Watcher owns the scheduler and the filesystem watcher.
type Watcher struct {
	runner  Runner
	opts    Options
	trigger chan string
}

// New creates a watcher around runner.
func New(runner Runner, opts Options) *Watcher {
	return &Watcher{
		runner:  runner,
		opts:    opts,
		trigger: make(chan string, 1),
	}
}

// Run blocks until ctx is cancelled, executing one pipeline pass per trigger.
func (w *Watcher) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	if w.opts.Interval > 0 {
		_, err = scheduler.NewJob(
			gocron.DurationJob(w.opts.Interval),
			gocron.NewTask(func() { w.fire("interval") }),
			gocron.WithName("pipeline-rerun"),
		)
		if err != nil {
			return fmt.Errorf("schedule periodic run: %w", err)
		}
	}
	scheduler.Start()
	defer func() { _ = scheduler.Shutdown() }()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory: editors replace files instead of writing in place.
	inventoryAbs, err := filepath.Abs(w.opts.Inventory)
	if err != nil {
		return fmt.Errorf("resolve inventory path: %w", err)
	}
	if err := fsw.Add(filepath.Dir(inventoryAbs)); err != nil {
		return fmt.Errorf("watch inventory directory: %w", err)
	}

	go w.watchLoop(ctx, fsw, filepath.Base(inventoryAbs))

	slog.Info("watch started",
		slog.String("inventory", inventoryAbs),
		slog.Duration("interval", w.opts.Interval),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-w.trigger:
			slog.Info("pipeline run triggered", slog.String("reason", reason))
			if err := w.runner.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("pipeline run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// watchLoop debounces inventory change events into triggers.
func (w *Watcher) watchLoop(ctx context.Context, fsw *fsnotify.Watcher, inventoryFile string) {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != inventoryFile {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.opts.Debounce, func() { w.fire("inventory-change") })
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// fire requests a run; a pending request absorbs the trigger.
func (w *Watcher) fire(reason string) {
	select {
	case w.trigger <- reason:
	default:
	}
}
