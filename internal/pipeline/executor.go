package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"uxpipe/internal/artifact"
	"uxpipe/internal/metrics"
	"uxpipe/internal/observability"
	"uxpipe/internal/pool"
	"uxpipe/internal/retry"
)

// ExecOptions bounds one stage execution.
type ExecOptions struct {
	Concurrency     int
	ItemTimeout     time.Duration
	MaxFailureRatio float64 // (0,1]; a stage with a higher failed fraction is fatal
}

// StageOutcome is the executor's normalized result for one stage.
type StageOutcome struct {
	Stage           Stage
	Result          StageResult
	Artifact        *artifact.Artifact // nil when nothing was persisted
	TotalItems      int
	SuccessfulItems int
	FailedItems     int
	Duration        time.Duration
	Err             *StageError // nil on success and degraded
}

// Executor runs a single stage: fan the pending work items through the
// bounded pool, retry transient item failures, persist the resulting
// artifact, and classify the outcome against the failure threshold.
type Executor struct {
	Store    *artifact.Store
	Retry    retry.Policy
	Recorder metrics.Recorder
}

// Run executes stage st over the pending items.
//
// Outcome rules: a fatal adapter signal aborts with nothing persisted;
// cancellation persists a partial artifact covering the completed items; a
// fully processed batch is persisted and then classified as success,
// degraded, or fatal depending on the failed fraction. A batch where every
// item failed is always fatal.
func (e *Executor) Run(ctx context.Context, st Stage, items []artifact.Item, opts ExecOptions) StageOutcome {
	start := time.Now()
	ctx = observability.WithStage(ctx, st.Name)
	out := StageOutcome{Stage: st, TotalItems: len(items)}

	e.Recorder.SetPoolConcurrency(st.Name, opts.Concurrency)
	observability.InfoContext(ctx, "stage started",
		slog.Int("items", len(items)),
		slog.Int("concurrency", opts.Concurrency),
	)

	poolOpts := pool.Options{MaxConcurrency: opts.Concurrency, ItemTimeout: opts.ItemTimeout}
	outcomes, batchErr := pool.Map(ctx, items, poolOpts, func(itemCtx context.Context, it artifact.Item) (json.RawMessage, error) {
		return e.processWithRetry(observability.WithItemID(itemCtx, it.ID), st, it)
	})

	done := e.collect(ctx, st, items, outcomes, &out)

	if batchErr != nil {
		out.Err = classifyBatchError(st.Name, batchErr)
		out.Result = StageResultFatal
		if out.Err.Kind == StageErrorCanceled {
			out.Result = StageResultCanceled
			e.persistPartial(ctx, st, done, len(items), &out)
		}
		e.finish(ctx, &out, start)
		return out
	}

	a := artifact.New(done, st.NextStep)
	if _, err := e.Store.Write(st.Index, st.Name, a); err != nil {
		out.Err = newFatalStageError(st.Name, fmt.Errorf("persist artifact: %w", err))
		out.Result = StageResultFatal
		e.finish(ctx, &out, start)
		return out
	}
	out.Artifact = a

	switch {
	case a.FailedItems == a.TotalItems:
		out.Result = StageResultFatal
		out.Err = newFatalStageError(st.Name, fmt.Errorf("all %d items failed", a.TotalItems))
	case float64(a.FailedItems)/float64(a.TotalItems) > opts.MaxFailureRatio:
		out.Result = StageResultFatal
		out.Err = newFatalStageError(st.Name, fmt.Errorf(
			"%d of %d items failed, above the %.2f failure threshold",
			a.FailedItems, a.TotalItems, opts.MaxFailureRatio,
		))
	case a.FailedItems > 0:
		out.Result = StageResultDegraded
	default:
		out.Result = StageResultSuccess
	}

	e.finish(ctx, &out, start)
	return out
}

// processWithRetry invokes the adapter, retrying per the backoff policy.
// Fatal signals, cancellation, and exhausted attempts end the loop.
func (e *Executor) processWithRetry(ctx context.Context, st Stage, it artifact.Item) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		payload, err := st.Adapter.ProcessItem(ctx, it)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if pool.IsFatal(err) || ctx.Err() != nil || attempt >= e.Retry.MaxRetries {
			return nil, lastErr
		}

		delay := e.Retry.Delay(attempt + 1)
		e.Recorder.IncItemRetry(st.Name)
		observability.WarnContext(ctx, "item failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-time.After(delay):
		}
	}
}

// collect turns pool outcomes into finished work items, skipping slots the
// pool never completed.
func (e *Executor) collect(ctx context.Context, st Stage, items []artifact.Item, outcomes []pool.Outcome[json.RawMessage], out *StageOutcome) []artifact.Item {
	done := make([]artifact.Item, 0, len(items))
	for i, o := range outcomes {
		if !o.Done {
			continue
		}
		it := items[i]
		if o.Err != nil {
			it.Status = artifact.StatusFailed
			it.Error = o.Err.Error()
			out.FailedItems++
			e.Recorder.IncItemResult(st.Name, false)
			observability.WarnContext(ctx, "item failed",
				slog.String("item.id", it.ID),
				slog.String("error", it.Error),
			)
		} else {
			it.Status = artifact.StatusSuccess
			it.Data = o.Output
			it.Error = ""
			out.SuccessfulItems++
			e.Recorder.IncItemResult(st.Name, true)
		}
		done = append(done, it)
	}
	return done
}

// persistPartial writes the partial artifact for a cancelled stage so a later
// run can see how far the batch got. A persist failure here only logs: the
// run is already aborting.
func (e *Executor) persistPartial(ctx context.Context, st Stage, done []artifact.Item, total int, out *StageOutcome) {
	if len(done) == 0 {
		return
	}
	a := artifact.NewPartial(done, total, st.NextStep)
	if _, err := e.Store.Write(st.Index, st.Name, a); err != nil {
		observability.WarnContext(ctx, "persist partial artifact failed",
			slog.String("error", err.Error()),
		)
		return
	}
	out.Artifact = a
}

func (e *Executor) finish(ctx context.Context, out *StageOutcome, start time.Time) {
	out.Duration = time.Since(start)
	e.Recorder.ObserveStageDuration(out.Stage.Name, out.Duration)
	e.Recorder.IncStageResult(out.Stage.Name, out.Result.metricLabel())

	attrs := []slog.Attr{
		slog.String("result", string(out.Result)),
		slog.Int("successful", out.SuccessfulItems),
		slog.Int("failed", out.FailedItems),
		slog.Duration("duration", out.Duration),
	}
	if out.Err != nil {
		attrs = append(attrs, slog.String("error", out.Err.Error()))
		observability.ErrorContext(ctx, "stage finished", attrs...)
		return
	}
	observability.InfoContext(ctx, "stage finished", attrs...)
}
