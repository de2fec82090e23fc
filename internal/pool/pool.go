// Package pool implements the bounded worker pool a stage uses to process
// its work items. Results keep the input order regardless of completion
// order, one item's failure never aborts its siblings, and the only abort
// conditions are context cancellation and an explicit fatal error from the
// per-item function.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrItemTimeout marks a per-item deadline hit. It surfaces as a failed item
// outcome, never as a batch abort.
var ErrItemTimeout = errors.New("uxpipe: work item timed out")

// FatalError wraps an error that must abort the whole batch, e.g. loss of
// required credentials. Adapters signal it via Fatal.
type FatalError struct{ Err error }

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal marks err as batch-fatal.
func Fatal(err error) error { return &FatalError{Err: err} }

// IsFatal reports whether err carries the batch-abort signal.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Outcome is the per-item result slot. Done is false for items the pool never
// finished because the batch was aborted first.
type Outcome[O any] struct {
	Output O
	Err    error
	Done   bool
}

// Options bounds a single Map invocation.
type Options struct {
	MaxConcurrency int           // ceiling on in-flight fn calls; min 1
	ItemTimeout    time.Duration // per-item deadline; 0 disables
}

// Map runs fn over items with at most opts.MaxConcurrency invocations in
// flight, returning one Outcome per input in input order.
//
// The returned error is non-nil only for batch-level aborts: the first fatal
// error reported by fn, or the context's error once ctx is cancelled. In both
// cases the outcome slice is a best-effort partial result covering the items
// that completed before the abort.
func Map[I, O any](ctx context.Context, items []I, opts Options, fn func(context.Context, I) (O, error)) ([]Outcome[O], error) {
	outcomes := make([]Outcome[O], len(items))
	if len(items) == 0 {
		return outcomes, nil
	}

	concurrency := opts.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		fatalErr error
	)

	abort := func(err error) {
		mu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		mu.Unlock()
		cancel()
	}

	indexes := make(chan int)
	worker := func() {
		defer wg.Done()
		for i := range indexes {
			select {
			case <-poolCtx.Done():
				return
			default:
			}

			out, err := runOne(poolCtx, items[i], opts.ItemTimeout, fn)
			if err != nil && poolCtx.Err() != nil && errors.Is(err, context.Canceled) {
				// Aborted mid-flight; leave the slot not-done.
				return
			}

			outcomes[i] = Outcome[O]{Output: out, Err: err, Done: true}

			if err != nil && IsFatal(err) {
				abort(err)
				return
			}
		}
	}

	wg.Add(concurrency)
	for range concurrency {
		go worker()
	}

dispatch:
	for i := range items {
		select {
		case <-poolCtx.Done():
			break dispatch
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	mu.Lock()
	err := fatalErr
	mu.Unlock()
	if err != nil {
		return outcomes, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return outcomes, fmt.Errorf("batch aborted: %w", ctxErr)
	}
	return outcomes, nil
}

// runOne invokes fn under the optional per-item deadline. A deadline hit on
// the item context (while the pool is still live) is downgraded to
// ErrItemTimeout so the caller records a failed item instead of aborting.
func runOne[I, O any](ctx context.Context, in I, timeout time.Duration, fn func(context.Context, I) (O, error)) (O, error) {
	itemCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := fn(itemCtx, in)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return out, fmt.Errorf("%w after %s: %v", ErrItemTimeout, timeout, err)
	}
	return out, err
}
