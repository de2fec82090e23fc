package pipeline

import (
	"context"
	"errors"
	"fmt"

	"uxpipe/internal/metrics"
	"uxpipe/internal/pool"
)

// StageErrorKind enumerates structured stage error categories.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Run must abort.
	StageErrorInput    StageErrorKind = "input"    // Bad input or missing prior artifact.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a structured error carrying category and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err)
}
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}

func newInputStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorInput, Stage: stage, Err: err}
}

func newCanceledStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// StageResult is the normalized outcome class of one stage execution.
type StageResult string

const (
	StageResultSuccess  StageResult = "success"
	StageResultDegraded StageResult = "degraded" // Some items failed, stage survived.
	StageResultFatal    StageResult = "fatal"
	StageResultCanceled StageResult = "canceled"
)

func (r StageResult) metricLabel() metrics.ResultLabel {
	switch r {
	case StageResultSuccess:
		return metrics.ResultSuccess
	case StageResultDegraded:
		return metrics.ResultDegraded
	case StageResultCanceled:
		return metrics.ResultCanceled
	default:
		return metrics.ResultFatal
	}
}

// IsInputError reports whether err stems from bad input or a missing prior
// artifact rather than a processing failure.
func IsInputError(err error) bool {
	var se *StageError
	return errors.As(err, &se) && se.Kind == StageErrorInput
}

// classifyBatchError maps the batch-level error from the worker pool onto a
// stage error. Fatal signals from adapters win over cancellation.
func classifyBatchError(stage string, err error) *StageError {
	if pool.IsFatal(err) {
		return newFatalStageError(stage, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newCanceledStageError(stage, err)
	}
	return newFatalStageError(stage, err)
}
