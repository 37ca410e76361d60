package ledger_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloclimat/veloclimat/internal/ledger"
	"github.com/veloclimat/veloclimat/internal/pipeline"
)

var _ pipeline.Publisher = (*ledger.Ledger)(nil)

func run(i int) *pipeline.RunResult {
	start := time.Date(2024, 7, 1, 12, i, 0, 0, time.UTC)
	return &pipeline.RunResult{
		ID:         fmt.Sprintf("run-%d", i),
		Trigger:    "schedule",
		Status:     pipeline.StatusSucceeded,
		StartedAt:  start,
		FinishedAt: start.Add(30 * time.Second),
		Duration:   30 * time.Second,
		Targets:    []pipeline.TargetResult{{Name: "bikes", Results: int64(i)}},
	}
}

func openLedger(t *testing.T, retain int) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open("", retain)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedger_RecordAndList(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, 0)

	for i := 1; i <= 3; i++ {
		require.NoError(t, l.Record(ctx, run(i)))
	}

	runs, err := l.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)
	assert.Equal(t, int64(3), runs[0].Targets[0].Results)
	assert.True(t, runs[0].StartedAt.Equal(run(3).StartedAt))
}

func TestLedger_RecordReplacesSameID(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, 0)

	r := run(1)
	require.NoError(t, l.Record(ctx, r))
	r.Status = pipeline.StatusFailed
	require.NoError(t, l.Record(ctx, r))

	runs, err := l.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, pipeline.StatusFailed, runs[0].Status)
}

func TestLedger_Retention(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, 2)

	for i := 1; i <= 4; i++ {
		require.NoError(t, l.Publish(ctx, &pipeline.Report{Run: run(i)}))
	}

	runs, err := l.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-4", runs[0].ID)

	_, err = l.Get(ctx, "run-1")
	assert.ErrorIs(t, err, ledger.ErrRunNotFound)
}

func TestLedger_Get(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, 0)
	require.NoError(t, l.Record(ctx, run(5)))

	got, err := l.Get(ctx, "run-5")
	require.NoError(t, err)
	assert.Equal(t, "schedule", got.Trigger)
	assert.Equal(t, 30*time.Second, got.Duration)
}

func TestLedger_PersistsOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	l, err := ledger.Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, run(1)))
	require.NoError(t, l.Close())

	l, err = ledger.Open(path, 0)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	runs, err := l.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}
