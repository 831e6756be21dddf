package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/proxscan/collect"
	"github.com/mastercactapus/proxscan/scan"
	"github.com/mastercactapus/proxscan/stats"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "proxscan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_RoundTrip(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	res := &scan.Result{RunID: "3f1c", StartedAt: time.Unix(1700000000, 0)}
	cfg := scan.Config{ScanAxis: "X", Step: 0.1, Iterations: 1, Samples: 3, OnFailure: scan.PolicySkip}
	require.NoError(t, db.BeginRun(ctx, res, cfg))

	points := []scan.Point{
		{
			Index:       0,
			Position:    17,
			Outcome:     collect.TargetReached,
			Samples:     3,
			Summary:     stats.Summary{N: 3, Means: []float64{13, -2.5}, StdDevs: []float64{1, 0}},
			SettleTime:  250 * time.Millisecond,
			CollectTime: 2 * time.Second,
		},
		{
			Index:    1,
			Position: 17.1,
			Outcome:  collect.DeadlineReached,
			Samples:  1,
			Gap:      true,
			Err:      "sample deadline reached: 1 of 3 samples",
		},
	}
	for _, p := range points {
		require.NoError(t, db.AddPoint(ctx, res.RunID, p))
	}
	require.NoError(t, db.FinishRun(ctx, res.RunID, scan.StateDone, nil))

	got, err := db.Points(ctx, res.RunID)
	require.NoError(t, err)
	if diff := cmp.Diff(points, got); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}

	runs, err := db.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "3f1c", runs[0].ID)
	assert.Equal(t, scan.StateDone, runs[0].State)
	assert.Equal(t, 2, runs[0].Points)
	assert.Equal(t, "skip", runs[0].Policy)
	assert.True(t, runs[0].StartedAt.Equal(res.StartedAt))
	assert.NotNil(t, runs[0].FinishedAt)
	assert.Empty(t, runs[0].Error)
}

func TestDB_FailedRun(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	res := &scan.Result{RunID: "a", StartedAt: time.Now()}
	require.NoError(t, db.BeginRun(ctx, res, scan.Config{ScanAxis: "X", Step: 1, Samples: 1, OnFailure: scan.PolicyAbort}))
	require.NoError(t, db.FinishRun(ctx, "a", scan.StateFailed, errors.New("axis X: home: ALARM:9")))

	runs, err := db.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, scan.StateFailed, runs[0].State)
	assert.Equal(t, "axis X: home: ALARM:9", runs[0].Error)

	pts, err := db.Points(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, pts)
}

func TestDB_UnknownRun(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	_, err := db.Points(ctx, "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	err = db.FinishRun(ctx, "nope", scan.StateDone, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
