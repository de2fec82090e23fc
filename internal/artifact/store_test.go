package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "queue"))
	require.NoError(t, err)
	return s
}

func TestStoreWriteReadRoundtrip(t *testing.T) {
	s := newTestStore(t)

	a := New([]Item{item("1", StatusSuccess), item("2", StatusFailed)}, "analyze_ux")
	path, err := s.Write(2, "record_sessions", a)
	require.NoError(t, err)
	assert.Equal(t, s.Path(2, "record_sessions"), path)

	got, err := s.Read(2)
	require.NoError(t, err)
	assert.Equal(t, a.TotalItems, got.TotalItems)
	assert.Equal(t, a.SuccessfulItems, got.SuccessfulItems)
	assert.Equal(t, a.FailedItems, got.FailedItems)
	assert.Equal(t, "analyze_ux", got.NextStep)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "1", got.Items[0].ID)
}

func TestStoreReadMissingStage(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Read(4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreReadRejectsInvalidDocument(t *testing.T) {
	s := newTestStore(t)

	corrupt := filepath.Join(s.Dir(), "03_analyze_ux.json")
	require.NoError(t, os.WriteFile(corrupt, []byte(`{"total_items": 7, "successful_items": 1, "failed_items": 1, "items": []}`), 0o600))

	_, err := s.Read(3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaInvalid))
}

func TestStoreReadRejectsMalformedJSON(t *testing.T) {
	s := newTestStore(t)

	path := filepath.Join(s.Dir(), "01_load_pages.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := s.Read(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaInvalid))
}

func TestStoreWriteRejectsInvalidArtifact(t *testing.T) {
	s := newTestStore(t)

	a := New([]Item{item("1", StatusSuccess)}, "")
	a.TotalItems = 9

	_, err := s.Write(1, "load_pages", a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaInvalid))

	// Nothing may land on disk for a rejected document.
	_, err = s.Read(1)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// TestStoreRewriteArchivesPriorVersion checks that re-running a stage never
// mutates a prior artifact in place: each write lands its own archive copy.
func TestStoreRewriteArchivesPriorVersion(t *testing.T) {
	s := newTestStore(t)

	first := New([]Item{item("1", StatusSuccess)}, "")
	_, err := s.Write(1, "load_pages", first)
	require.NoError(t, err)

	second := New([]Item{item("1", StatusSuccess), item("2", StatusSuccess)}, "")
	_, err = s.Write(1, "load_pages", second)
	require.NoError(t, err)

	got, err := s.Read(1)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalItems)

	entries, err := s.ArchiveEntries(1)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStoreWritePartialArtifact(t *testing.T) {
	s := newTestStore(t)

	a := NewPartial([]Item{item("1", StatusSuccess), item("2", StatusSuccess)}, 10, "")
	_, err := s.Write(3, "analyze_ux", a)
	require.NoError(t, err)

	got, err := s.Read(3)
	require.NoError(t, err)
	assert.True(t, got.Partial)
	assert.Equal(t, 10, got.TotalItems)
	assert.Equal(t, 2, got.SuccessfulItems)
}
