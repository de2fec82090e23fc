package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Tracker owns the workflow state file for the duration of a run. Every
// mutation is persisted before the method returns, so a crash at any point
// leaves an accurate record of how far the run got.
type Tracker struct {
	path string

	mu sync.Mutex
	ws WorkflowState
}

// NewTracker creates a tracker that writes to path.
func NewTracker(path string) *Tracker {
	return &Tracker{path: path}
}

// Begin records the start of a run and resets any prior stage records.
func (t *Tracker) Begin(runID string, sampleSize int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	t.ws = WorkflowState{
		RunID:      runID,
		Status:     StatusRunning,
		SampleSize: sampleSize,
		StartedAt:  now,
		UpdatedAt:  now,
		Stages:     []StageRecord{},
	}
	return t.persist()
}

// StageStarted records that stage idx began executing.
func (t *Tracker) StageStarted(idx int, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ws.CurrentStage = idx
	t.ws.Stages = append(t.ws.Stages, StageRecord{
		Index:     idx,
		Name:      name,
		Status:    StageRunning,
		StartedAt: time.Now().UTC(),
	})
	return t.persist()
}

// StageFinished overwrites the in-flight record for rec.Index with the final
// counts and status.
func (t *Tracker) StageFinished(rec StageRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}
	for i := range t.ws.Stages {
		if t.ws.Stages[i].Index == rec.Index {
			if rec.StartedAt.IsZero() {
				rec.StartedAt = t.ws.Stages[i].StartedAt
			}
			t.ws.Stages[i] = rec
			return t.persist()
		}
	}
	t.ws.Stages = append(t.ws.Stages, rec)
	return t.persist()
}

// Finish records the terminal status of the run.
func (t *Tracker) Finish(status RunStatus, runErr error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ws.Status = status
	t.ws.FinishedAt = time.Now().UTC()
	if runErr != nil {
		t.ws.Error = runErr.Error()
	}
	return t.persist()
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() WorkflowState {
	t.mu.Lock()
	defer t.mu.Unlock()

	ws := t.ws
	ws.Stages = append([]StageRecord(nil), t.ws.Stages...)
	return ws
}

func (t *Tracker) persist() error {
	t.ws.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(&t.ws, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write workflow state: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("replace workflow state: %w", err)
	}
	return nil
}
