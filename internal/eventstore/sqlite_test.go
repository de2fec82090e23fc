package eventstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalAppendAndReadBack(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	require.NoError(t, j.Append(ctx, "run-1", "", TypeRunStarted, RunPayload{FromStep: 1, ToStep: 6}))
	require.NoError(t, j.Append(ctx, "run-1", "load_pages", TypeStageStarted, StagePayload{Index: 1}))
	require.NoError(t, j.Append(ctx, "run-1", "load_pages", TypeStageCompleted, StagePayload{
		Index: 1, TotalItems: 5, SuccessfulItems: 5,
	}))
	require.NoError(t, j.Append(ctx, "run-1", "", TypeRunFinished, RunPayload{Status: "completed"}))

	events, err := j.ByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, TypeRunStarted, events[0].Type)
	assert.Equal(t, TypeStageCompleted, events[2].Type)
	assert.Equal(t, "load_pages", events[2].Stage)

	var p StagePayload
	require.NoError(t, json.Unmarshal(events[2].Payload, &p))
	assert.Equal(t, 5, p.SuccessfulItems)
}

func TestJournalIsolatesRuns(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	require.NoError(t, j.Append(ctx, "run-a", "", TypeRunStarted, nil))
	require.NoError(t, j.Append(ctx, "run-b", "", TypeRunStarted, nil))
	require.NoError(t, j.Append(ctx, "run-b", "", TypeRunFinished, nil))

	events, err := j.ByRun(ctx, "run-a")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	last, err := j.LastRunID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-b", last)
}

func TestJournalLastRunIDEmpty(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	last, err := j.LastRunID(context.Background())
	require.NoError(t, err)
	assert.Empty(t, last)
}
