package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildit/internal/step"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleReport(runID string, failed bool) *step.Report {
	now := time.Now()
	return &step.Report{
		RunID:      runID,
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
		Duration:   time.Minute,
		Failed:     failed,
		Results: []step.Result{
			{StepID: "pkg:git", Summary: "install git", Status: step.StatusSkipped},
			{StepID: "repo:buildit", Summary: "clone buildit", Status: step.StatusDone, Duration: 3 * time.Second},
			{StepID: "wsl:autodetect", Summary: "detect networking", Status: step.StatusWarned, Err: "probe failed"},
		},
	}
}

func TestStore_EmptyJournal(t *testing.T) {
	store := newTestStore(t)

	last, err := store.LastRun()
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestStore_RecordAndQueryRun(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.RecordRun(sampleReport("run-1", false), false))

	last, err := store.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "run-1", last.RunID)
	assert.False(t, last.Failed)
	assert.Equal(t, time.Minute, last.Duration)

	results, err := store.StepResults("run-1")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "pkg:git", results[0].StepID)
	assert.Equal(t, step.StatusSkipped, results[0].Status)
	assert.Equal(t, step.StatusWarned, results[2].Status)
	assert.Equal(t, "probe failed", results[2].Err)
}

func TestStore_LastRunIsNewest(t *testing.T) {
	store := newTestStore(t)

	older := sampleReport("run-old", true)
	older.StartedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, store.RecordRun(older, false))

	newer := sampleReport("run-new", false)
	require.NoError(t, store.RecordRun(newer, true))

	last, err := store.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "run-new", last.RunID)
	assert.True(t, last.DryRun)

	runs, err := store.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].RunID)
	assert.Equal(t, "run-old", runs[1].RunID)
	assert.True(t, runs[1].Failed)
}

func TestStore_ReopenPersists(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.RecordRun(sampleReport("run-1", false), false))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	last, err := reopened.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "run-1", last.RunID)
}
