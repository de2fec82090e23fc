// Package metrics provides the observability hooks for pipeline runs.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics can be enabled by swapping in the Prometheus
// implementation without touching call sites.
package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultDegraded ResultLabel = "degraded"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for run and stage metrics.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncRunOutcome(outcome string) // outcome: completed|partial|failed
	IncItemResult(stage string, success bool)
	IncItemRetry(stage string)
	SetPoolConcurrency(stage string, n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(time.Duration)           {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncRunOutcome(string)                       {}
func (NoopRecorder) IncItemResult(string, bool)                 {}
func (NoopRecorder) IncItemRetry(string)                        {}
func (NoopRecorder) SetPoolConcurrency(string, int)             {}
