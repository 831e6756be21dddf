package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mastercactapus/proxscan/collect"
	"github.com/mastercactapus/proxscan/metrics"
	"github.com/mastercactapus/proxscan/scan"
	"github.com/mastercactapus/proxscan/stats"
	"github.com/mastercactapus/proxscan/store"
)

type staticStatus struct {
	state scan.State
	res   *scan.Result
}

func (s staticStatus) State() scan.State { return s.state }
func (s staticStatus) Result() *scan.Result { return s.res }

func testPoint() scan.Point {
	return scan.Point{
		Index:    0,
		Position: 17,
		Outcome:  collect.TargetReached,
		Samples:  3,
		Summary:  stats.Summary{N: 3, Means: []float64{13}, StdDevs: []float64{1}},
	}
}

func newTestAPI(t *testing.T) (*api, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := prometheus.NewRegistry()
	metrics.New(reg)
	a := newAPI(db, reg, zaptest.NewLogger(t).Sugar())
	t.Cleanup(a.Close)
	return a, db
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func TestAPI_State(t *testing.T) {
	a, _ := newTestAPI(t)

	assert.Equal(t, http.StatusServiceUnavailable, get(t, a, "/api/state").Code)

	a.seq = staticStatus{state: scan.StateScanning, res: &scan.Result{RunID: "r1", Points: []scan.Point{testPoint()}}}
	rec := get(t, a, "/api/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		State  string `json:"state"`
		Result struct {
			RunID  string `json:"run_id"`
			Points []struct {
				Outcome string `json:"outcome"`
				Summary struct {
					Means []float64 `json:"means"`
				} `json:"summary"`
			} `json:"points"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "scanning", body.State)
	assert.Equal(t, "r1", body.Result.RunID)
	require.Len(t, body.Result.Points, 1)
	assert.Equal(t, "target_reached", body.Result.Points[0].Outcome)
	assert.Equal(t, []float64{13}, body.Result.Points[0].Summary.Means)
}

func TestAPI_Results(t *testing.T) {
	a, db := newTestAPI(t)
	ctx := context.Background()

	rec := get(t, a, "/api/results")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	res := &scan.Result{RunID: "r1", StartedAt: time.Now()}
	require.NoError(t, db.BeginRun(ctx, res, scan.Config{ScanAxis: "X", Step: 0.1, Samples: 3, OnFailure: scan.PolicyAbort}))
	require.NoError(t, db.AddPoint(ctx, "r1", testPoint()))

	rec = get(t, a, "/api/results?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Points)

	rec = get(t, a, "/api/results/r1")
	require.Equal(t, http.StatusOK, rec.Code)
	var points []scan.Point
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	require.Len(t, points, 1)
	assert.Equal(t, 17.0, points[0].Position)

	assert.Equal(t, http.StatusNotFound, get(t, a, "/api/results/missing").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, a, "/api/results?limit=x").Code)
}

func TestAPI_Metrics(t *testing.T) {
	a, _ := newTestAPI(t)
	rec := get(t, a, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `proxscan_state{state="idle"} 1`)
}

func TestWriteCSV(t *testing.T) {
	gap := scan.Point{Index: 1, Position: 17.1, Outcome: collect.DeadlineReached, Samples: 1, Gap: true}
	multi := scan.Point{
		Index:    2,
		Position: 17.2,
		Outcome:  collect.TargetReached,
		Samples:  2,
		Summary:  stats.Summary{N: 2, Means: []float64{1.5, -2}},
	}

	var buf bytes.Buffer
	require.NoError(t, writeCSV(&buf, &scan.Result{Points: []scan.Point{testPoint(), gap, multi}}))
	assert.Equal(t, strings.Join([]string{
		"index,position_mm,outcome,samples,gap,Config_1,Config_2",
		"0,17.0000,target_reached,3,false,13,",
		"1,17.1000,deadline_reached,1,true,,",
		"2,17.2000,target_reached,2,false,1.5,-2",
		"",
	}, "\n"), buf.String())
}
