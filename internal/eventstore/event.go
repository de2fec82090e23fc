// Package eventstore keeps an append-only journal of pipeline run events in
// SQLite. The journal is diagnostic history: runs never read it back to make
// decisions, so a journal write failure degrades to a log line rather than
// failing the run.
package eventstore

import "time"

// Event types appended by the pipeline controller.
const (
	TypeRunStarted     = "RunStarted"
	TypeStageStarted   = "StageStarted"
	TypeStageCompleted = "StageCompleted"
	TypeStageFailed    = "StageFailed"
	TypeRunFinished    = "RunFinished"
)

// Event is one journal entry.
type Event struct {
	ID        int64
	RunID     string
	Stage     string
	Type      string
	Timestamp time.Time
	Payload   []byte
}

// StagePayload is the JSON payload for stage lifecycle events.
type StagePayload struct {
	Index           int    `json:"index"`
	TotalItems      int    `json:"total_items,omitempty"`
	SuccessfulItems int    `json:"successful_items,omitempty"`
	FailedItems     int    `json:"failed_items,omitempty"`
	DurationMS      int64  `json:"duration_ms,omitempty"`
	Error           string `json:"error,omitempty"`
}

// RunPayload is the JSON payload for run lifecycle events.
type RunPayload struct {
	Status     string `json:"status,omitempty"`
	FromStep   int    `json:"from_step,omitempty"`
	ToStep     int    `json:"to_step,omitempty"`
	SampleSize int    `json:"sample_size,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}
