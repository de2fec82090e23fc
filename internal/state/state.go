// Package state persists the workflow state record that survives process
// restarts. The record is a single JSON document updated with a
// write-to-temp-then-rename so observers never read a half-written file.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusPartial   RunStatus = "partial"
)

// StageStatus is the lifecycle state of one stage within a run.
type StageStatus string

const (
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageDegraded  StageStatus = "degraded"
	StageFailed    StageStatus = "failed"
	StageCanceled  StageStatus = "canceled"
)

// StageRecord summarizes one stage execution.
type StageRecord struct {
	Index           int         `json:"index"`
	Name            string      `json:"name"`
	Status          StageStatus `json:"status"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      time.Time   `json:"finished_at,omitzero"`
	TotalItems      int         `json:"total_items"`
	SuccessfulItems int         `json:"successful_items"`
	FailedItems     int         `json:"failed_items"`
	Error           string      `json:"error,omitempty"`
}

// WorkflowState is the persisted run record.
type WorkflowState struct {
	RunID        string        `json:"run_id"`
	Status       RunStatus     `json:"status"`
	CurrentStage int           `json:"current_stage"`
	SampleSize   int           `json:"sample_size,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	FinishedAt   time.Time     `json:"finished_at,omitzero"`
	Stages       []StageRecord `json:"stages"`
	Error        string        `json:"error,omitempty"`
}

// ErrNoState means no workflow state file exists yet.
var ErrNoState = errors.New("uxpipe: no workflow state recorded")

// Load reads a previously persisted workflow state.
func Load(path string) (*WorkflowState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("read workflow state: %w", err)
	}
	var ws WorkflowState
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("parse workflow state %s: %w", path, err)
	}
	return &ws, nil
}
