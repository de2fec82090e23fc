package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue", "workflow_state.json")
	tr := NewTracker(path)

	require.NoError(t, tr.Begin("run-1", 3))
	require.NoError(t, tr.StageStarted(1, "load_pages"))
	require.NoError(t, tr.StageFinished(StageRecord{
		Index:           1,
		Name:            "load_pages",
		Status:          StageCompleted,
		TotalItems:      3,
		SuccessfulItems: 3,
	}))
	require.NoError(t, tr.Finish(StatusCompleted, nil))

	// Every mutation persisted; the file reflects the final picture.
	ws, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", ws.RunID)
	assert.Equal(t, StatusCompleted, ws.Status)
	assert.Equal(t, 3, ws.SampleSize)
	require.Len(t, ws.Stages, 1)
	assert.Equal(t, StageCompleted, ws.Stages[0].Status)
	assert.Equal(t, 3, ws.Stages[0].SuccessfulItems)
	assert.False(t, ws.Stages[0].StartedAt.IsZero())
	assert.False(t, ws.FinishedAt.IsZero())
}

func TestTrackerRecordsFailureMidRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow_state.json")
	tr := NewTracker(path)

	require.NoError(t, tr.Begin("run-2", 0))
	require.NoError(t, tr.StageStarted(1, "load_pages"))
	require.NoError(t, tr.StageFinished(StageRecord{Index: 1, Name: "load_pages", Status: StageCompleted}))
	require.NoError(t, tr.StageStarted(2, "record_sessions"))
	require.NoError(t, tr.Finish(StatusFailed, errors.New("all items failed")))

	ws, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, ws.Status)
	assert.Equal(t, 2, ws.CurrentStage)
	assert.Equal(t, "all items failed", ws.Error)
	require.Len(t, ws.Stages, 2)
	// Stage 2 never finished and stays marked running in the record.
	assert.Equal(t, StageRunning, ws.Stages[1].Status)
}

func TestTrackerBeginResetsPriorRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow_state.json")
	tr := NewTracker(path)

	require.NoError(t, tr.Begin("run-a", 0))
	require.NoError(t, tr.StageStarted(1, "load_pages"))
	require.NoError(t, tr.Finish(StatusFailed, errors.New("boom")))

	require.NoError(t, tr.Begin("run-b", 0))
	ws, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "run-b", ws.RunID)
	assert.Equal(t, StatusRunning, ws.Status)
	assert.Empty(t, ws.Stages)
	assert.Empty(t, ws.Error)
}

func TestLoadMissingState(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, errors.Is(err, ErrNoState))
}

func TestLoadRejectsCorruptState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow_state.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoState)
}

// TestTrackerNeverLeavesTempFile checks the write-then-rename leaves only the
// final document behind.
func TestTrackerNeverLeavesTempFile(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(filepath.Join(dir, "workflow_state.json"))
	require.NoError(t, tr.Begin("run-3", 0))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "workflow_state.json", entries[0].Name())
}
