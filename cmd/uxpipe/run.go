package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	prom "github.com/prometheus/client_golang/prometheus"

	"uxpipe/internal/artifact"
	"uxpipe/internal/config"
	"uxpipe/internal/eventstore"
	"uxpipe/internal/metrics"
	"uxpipe/internal/pipeline"
	"uxpipe/internal/state"
	"uxpipe/internal/stages/analyze"
	"uxpipe/internal/stages/codegen"
	"uxpipe/internal/stages/notify"
	"uxpipe/internal/stages/pages"
	"uxpipe/internal/stages/publish"
	"uxpipe/internal/stages/record"
	"uxpipe/internal/watch"
)

func cmdRun() int {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("configuration error", "error", err)
		return exitInput
	}

	opts, err := runOptions()
	if err != nil {
		slog.Error("invalid flags", "error", err)
		return exitInput
	}

	ctrl, journal, _, err := buildController(cfg, CLI.Run.DryRun)
	if err != nil {
		slog.Error("setup failed", "error", err)
		return exitInput
	}
	if journal != nil {
		defer journal.Close()
	}

	ctx, stop := signalContext()
	defer stop()

	report, runErr := ctrl.Run(ctx, opts)
	if report != nil {
		printReport(report)
	}
	return exitCode(runErr)
}

func cmdWatch() int {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("configuration error", "error", err)
		return exitInput
	}

	ctrl, journal, reg, err := buildController(cfg, false)
	if err != nil {
		slog.Error("setup failed", "error", err)
		return exitInput
	}
	if journal != nil {
		defer journal.Close()
	}

	if cfg.Metrics.Enabled && reg != nil {
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Listen, metrics.HTTPHandler(reg)); err != nil {
				slog.Error("metrics listener failed", "error", err)
			}
		}()
	}

	ctx, stop := signalContext()
	defer stop()

	w := watch.New(controllerRunner{ctrl}, watch.Options{
		Inventory: cfg.Pages.Inventory,
		Interval:  cfg.Watch.Interval.Std(),
		Debounce:  cfg.Watch.Debounce.Std(),
	})
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("watch failed", "error", err)
		return exitRun
	}
	return exitOK
}

// controllerRunner adapts the pipeline controller to the watch loop.
type controllerRunner struct {
	ctrl *pipeline.Controller
}

func (r controllerRunner) RunOnce(ctx context.Context) error {
	report, err := r.ctrl.Run(ctx, pipeline.RunOptions{})
	if report != nil {
		printReport(report)
	}
	return err
}

// buildController wires the store, tracker, journal, and the six stage
// adapters into a run controller. The returned registry is nil unless
// metrics are enabled.
func buildController(cfg *config.Config, dryRun bool) (*pipeline.Controller, *eventstore.Journal, *prom.Registry, error) {
	store, err := artifact.NewStore(cfg.QueueDir)
	if err != nil {
		return nil, nil, nil, err
	}

	analyzer, err := analyze.NewAnalyzer(cfg.Analyze, dryRun)
	if err != nil {
		return nil, nil, nil, err
	}
	generator, err := codegen.NewGenerator(cfg.Codegen, dryRun)
	if err != nil {
		return nil, nil, nil, err
	}

	stages := pipeline.NewStages(
		pages.NewSource(cfg.Pages, cfg.BaseURL, dryRun),
		record.NewRecorder(cfg.Record, dryRun),
		analyzer,
		generator,
		publish.NewPublisher(cfg.Publish, dryRun),
		notify.NewNotifier(cfg.Notify, dryRun),
	)

	// The journal is diagnostic only: opening it can fail without killing
	// the run.
	journal, err := eventstore.Open(cfg.JournalPath)
	if err != nil {
		slog.Warn("run journal unavailable", "error", err)
		journal = nil
	}

	recorder, reg := newRecorder(cfg)
	ctrl := &pipeline.Controller{
		Config: cfg,
		Stages: stages,
		Store:  store,
		Exec: &pipeline.Executor{
			Store:    store,
			Retry:    cfg.RetryPolicy(),
			Recorder: recorder,
		},
		Tracker:  state.NewTracker(cfg.StateFile),
		Journal:  journal,
		Recorder: recorder,
	}
	return ctrl, journal, reg, nil
}

// runOptions translates the run flags, rejecting contradictory step
// selections.
func runOptions() (pipeline.RunOptions, error) {
	opts := pipeline.RunOptions{
		FromStep:   CLI.Run.FromStep,
		SampleSize: CLI.Run.Sample,
		DryRun:     CLI.Run.DryRun,
	}
	if CLI.Run.Steps == "" {
		return opts, nil
	}
	if CLI.Run.FromStep != 0 {
		return opts, errors.New("--from-step and --steps are mutually exclusive")
	}

	from, to, err := parseSteps(CLI.Run.Steps)
	if err != nil {
		return opts, err
	}
	opts.FromStep, opts.ToStep = from, to
	return opts, nil
}

// parseSteps parses "N" or "N-M".
func parseSteps(s string) (int, int, error) {
	parts := strings.SplitN(s, "-", 2)
	from, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid step range %q", s)
	}
	to := from
	if len(parts) == 2 {
		to, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid step range %q", s)
		}
	}
	return from, to, nil
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case pipeline.IsInputError(err):
		return exitInput
	default:
		return exitRun
	}
}

func printReport(r *pipeline.RunReport) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Stage", "Result", "Items", "OK", "Failed", "Duration"})
	for _, s := range r.Stages {
		t.AppendRow(table.Row{s.Index, s.Name, s.Result, s.TotalItems, s.SuccessfulItems, s.FailedItems,
			fmt.Sprintf("%dms", s.DurationMS)})
	}
	t.Render()

	fmt.Printf("run %s: %s", r.RunID, r.Status)
	if r.Error != "" {
		fmt.Printf(" (%s)", r.Error)
	}
	fmt.Println()
}
