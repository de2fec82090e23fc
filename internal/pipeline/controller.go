package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"uxpipe/internal/artifact"
	"uxpipe/internal/config"
	"uxpipe/internal/eventstore"
	"uxpipe/internal/metrics"
	"uxpipe/internal/observability"
	"uxpipe/internal/state"
)

// ErrRunActive means another process holds the queue lock.
var ErrRunActive = errors.New("uxpipe: another run holds the queue lock")

// RunOptions selects which slice of the pipeline to execute.
type RunOptions struct {
	FromStep   int // 1-based, 0 means 1
	ToStep     int // inclusive, 0 means the last stage
	SampleSize int // first-N work items at the entry stage, 0 means all
	DryRun     bool
}

// Controller drives one pipeline run: resolve the step range, take the queue
// lock, feed each stage its work items, and record everything in the state
// tracker and run journal.
type Controller struct {
	Config   *config.Config
	Stages   []Stage
	Store    *artifact.Store
	Exec     *Executor
	Tracker  *state.Tracker
	Journal  *eventstore.Journal // optional
	Recorder metrics.Recorder
}

// Run executes stages [FromStep, ToStep]. The returned report always covers
// whatever actually ran; the error is non-nil for aborted runs and carries
// the input-vs-fatal classification for exit code mapping.
func (c *Controller) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	from, to, err := c.resolveRange(opts)
	if err != nil {
		return nil, &StageError{Kind: StageErrorInput, Err: err}
	}

	lock := flock.New(filepath.Join(c.Config.QueueDir, ".uxpipe.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire queue lock: %w", err)
	}
	if !locked {
		return nil, ErrRunActive
	}
	defer func() { _ = lock.Unlock() }()

	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)
	start := time.Now()
	report := &RunReport{
		RunID:      runID,
		FromStep:   from,
		ToStep:     to,
		SampleSize: opts.SampleSize,
		DryRun:     opts.DryRun,
		StartedAt:  start.UTC(),
	}

	if err := c.Tracker.Begin(runID, opts.SampleSize); err != nil {
		return nil, err
	}
	c.journal(ctx, runID, "", eventstore.TypeRunStarted, eventstore.RunPayload{
		FromStep: from, ToStep: to, SampleSize: opts.SampleSize,
	})
	observability.InfoContext(ctx, "run started",
		slog.Int("from_step", from),
		slog.Int("to_step", to),
		slog.Bool("dry_run", opts.DryRun),
	)

	status := state.StatusCompleted
	if to < len(c.Stages) {
		// A deliberately truncated run is partial by request.
		status = state.StatusPartial
	}
	var runErr error

	for _, st := range c.Stages[from-1 : to] {
		items, err := c.stageInput(ctx, st, from, opts.SampleSize, report)
		if err != nil {
			status = state.StatusFailed
			runErr = err
			break
		}

		_ = c.Tracker.StageStarted(st.Index, st.Name)
		c.journal(ctx, runID, st.Name, eventstore.TypeStageStarted, eventstore.StagePayload{
			Index: st.Index, TotalItems: len(items),
		})

		out := c.Exec.Run(ctx, st, items, c.execOptions(st))
		report.Stages = append(report.Stages, stageReport(out))
		_ = c.Tracker.StageFinished(stageRecord(out))

		evType := eventstore.TypeStageCompleted
		payload := eventstore.StagePayload{
			Index:           st.Index,
			TotalItems:      out.TotalItems,
			SuccessfulItems: out.SuccessfulItems,
			FailedItems:     out.FailedItems,
			DurationMS:      out.Duration.Milliseconds(),
		}
		if out.Err != nil {
			evType = eventstore.TypeStageFailed
			payload.Error = out.Err.Error()
		}
		c.journal(ctx, runID, st.Name, evType, payload)

		if out.Result == StageResultFatal || out.Result == StageResultCanceled {
			// Cancellation still fails the run; the partial artifact the
			// executor persisted is what makes a later resume possible.
			status = state.StatusFailed
			runErr = out.Err
			break
		}
	}

	report.Status = status
	report.DurationMS = time.Since(start).Milliseconds()
	if runErr != nil {
		report.Error = runErr.Error()
	}

	_ = c.Tracker.Finish(status, runErr)
	c.Recorder.IncRunOutcome(string(status))
	c.Recorder.ObserveRunDuration(time.Since(start))
	c.journal(ctx, runID, "", eventstore.TypeRunFinished, eventstore.RunPayload{
		Status: string(status), DurationMS: report.DurationMS, Error: report.Error,
	})

	if err := report.Persist(filepath.Join(c.Config.QueueDir, "reports")); err != nil {
		observability.WarnContext(ctx, "persist run report failed", slog.String("error", err.Error()))
	}

	observability.InfoContext(ctx, "run finished",
		slog.String("status", string(status)),
		slog.Duration("duration", time.Since(start)),
	)
	return report, runErr
}

func (c *Controller) resolveRange(opts RunOptions) (from, to int, err error) {
	from, to = opts.FromStep, opts.ToStep
	if from == 0 {
		from = 1
	}
	if to == 0 {
		to = len(c.Stages)
	}
	if from < 1 || to > len(c.Stages) || from > to {
		return 0, 0, fmt.Errorf("step range %d-%d outside pipeline 1-%d", from, to, len(c.Stages))
	}
	return from, to, nil
}

// stageInput resolves the pending work items for st: the first stage
// bootstraps from its adapter, the notify stage consumes the run summary,
// every other stage splits the prior stage's artifact.
func (c *Controller) stageInput(ctx context.Context, st Stage, from, sample int, report *RunReport) ([]artifact.Item, error) {
	if _, ok := st.Adapter.(SummarySink); ok {
		report.DurationMS = time.Since(report.StartedAt).Milliseconds()
		sum := report.Summary()
		sum.Status = state.StatusCompleted
		if report.ToStep < len(c.Stages) {
			sum.Status = state.StatusPartial
		}
		data, err := json.Marshal(sum)
		if err != nil {
			return nil, newFatalStageError(st.Name, fmt.Errorf("marshal run summary: %w", err))
		}
		return []artifact.Item{{ID: report.RunID, Status: artifact.StatusPending, Data: data}}, nil
	}

	if st.Index == 1 {
		ba, ok := st.Adapter.(Bootstrapper)
		if !ok {
			return nil, newInputStageError(st.Name, errors.New("first stage adapter cannot produce work items"))
		}
		items, err := ba.Bootstrap(ctx)
		if err != nil {
			return nil, newInputStageError(st.Name, err)
		}
		if sample > 0 && len(items) > sample {
			items = items[:sample]
		}
		if len(items) == 0 {
			return nil, newFatalStageError(st.Name, artifact.ErrEmptyBatch)
		}
		for i := range items {
			items[i].Status = artifact.StatusPending
		}
		return items, nil
	}

	prev, err := c.Store.Read(st.Index - 1)
	if err != nil {
		return nil, newInputStageError(st.Name, fmt.Errorf("artifact for step %d: %w", st.Index-1, err))
	}
	sampleFor := 0
	if st.Index == from {
		sampleFor = sample
	}
	items, err := artifact.Split(prev, sampleFor)
	if err != nil {
		return nil, newFatalStageError(st.Name, err)
	}
	return items, nil
}

func (c *Controller) execOptions(st Stage) ExecOptions {
	s := c.Config.StageSettingsFor(st.Name)
	return ExecOptions{
		Concurrency:     s.Concurrency,
		ItemTimeout:     s.ItemTimeout.Std(),
		MaxFailureRatio: s.MaxFailureRatio,
	}
}

// journal appends to the run journal when one is configured. Journal failures
// degrade to a log line.
func (c *Controller) journal(ctx context.Context, runID, stage, eventType string, payload any) {
	if c.Journal == nil {
		return
	}
	if err := c.Journal.Append(ctx, runID, stage, eventType, payload); err != nil {
		observability.WarnContext(ctx, "journal append failed",
			slog.String("event", eventType),
			slog.String("error", err.Error()),
		)
	}
}

func stageReport(out StageOutcome) StageReport {
	sr := StageReport{
		Index:           out.Stage.Index,
		Name:            out.Stage.Name,
		Result:          out.Result,
		TotalItems:      out.TotalItems,
		SuccessfulItems: out.SuccessfulItems,
		FailedItems:     out.FailedItems,
		DurationMS:      out.Duration.Milliseconds(),
	}
	if out.Err != nil {
		sr.Error = out.Err.Error()
	}
	return sr
}

func stageRecord(out StageOutcome) state.StageRecord {
	rec := state.StageRecord{
		Index:           out.Stage.Index,
		Name:            out.Stage.Name,
		TotalItems:      out.TotalItems,
		SuccessfulItems: out.SuccessfulItems,
		FailedItems:     out.FailedItems,
		FinishedAt:      time.Now().UTC(),
	}
	switch out.Result {
	case StageResultSuccess:
		rec.Status = state.StageCompleted
	case StageResultDegraded:
		rec.Status = state.StageDegraded
	case StageResultCanceled:
		rec.Status = state.StageCanceled
	default:
		rec.Status = state.StageFailed
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	return rec
}
