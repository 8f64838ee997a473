package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	require.NoError(t, s.Open(":memory:"))
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	run, err := s.CreateRun(StageIngest, "postgres")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.WithinDuration(t, time.Now().UTC(), run.StartedAt, time.Minute)

	require.NoError(t, s.CompleteRun(run.ID, RunStatusCompleted, 500, ""))

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	assert.Equal(t, int64(500), got.Records)
	require.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.Error)
}

func TestCompleteRunFailed(t *testing.T) {
	s := newTestStore(t)

	run, err := s.CreateRun(StageProcess, "duckdb")
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(run.ID, RunStatusFailed, 3, "fetch timed out"))

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "fetch timed out", got.Error)
}

func TestCompleteRunUnknownID(t *testing.T) {
	s := newTestStore(t)
	err := s.CompleteRun("no-such-run", RunStatusCompleted, 0, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGetRunUnknownID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun("no-such-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRecentRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)

	for _, stage := range []string{StageSetup, StageIngest, StageProcess} {
		run, err := s.CreateRun(stage, "postgres")
		require.NoError(t, err)
		require.NoError(t, s.CompleteRun(run.ID, RunStatusCompleted, 0, ""))
		// Keep started_at strictly increasing across runs.
		time.Sleep(5 * time.Millisecond)
	}

	runs, err := s.RecentRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, StageProcess, runs[0].Stage)
	assert.Equal(t, StageIngest, runs[1].Stage)
}

func TestCursors(t *testing.T) {
	s := newTestStore(t)

	pos, err := s.GetCursor("sdss")
	require.NoError(t, err)
	assert.Zero(t, pos, "unseen source starts at 0")

	require.NoError(t, s.SetCursor("sdss", 500))
	require.NoError(t, s.SetCursor("sdss", 1000))
	require.NoError(t, s.SetCursor("lamost", 250))

	pos, err = s.GetCursor("sdss")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), pos)

	pos, err = s.GetCursor("lamost")
	require.NoError(t, err)
	assert.Equal(t, int64(250), pos)
}

func TestStoreNotOpened(t *testing.T) {
	s := NewStore()

	_, err := s.CreateRun(StageIngest, "postgres")
	assert.Error(t, err)
	_, err = s.GetCursor("sdss")
	assert.Error(t, err)
	assert.Error(t, s.SetCursor("sdss", 1))
}
