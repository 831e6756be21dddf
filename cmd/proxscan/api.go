package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mastercactapus/proxscan/scan"
	"github.com/mastercactapus/proxscan/store"
)

type history interface {
	Runs(ctx context.Context, limit int) ([]store.Run, error)
	Points(ctx context.Context, runID string) ([]scan.Point, error)
}

type status interface {
	State() scan.State
	Result() *scan.Result
}

// api serves run status and history, and relays sequencer events to SSE
// subscribers on /events/state and /events/points.
type api struct {
	http.Handler
	seq  status
	hist history
	sse  *sse.Server
	log  *zap.SugaredLogger
}

var _ scan.Observer = (*api)(nil)

func newAPI(hist history, reg prometheus.Gatherer, log *zap.SugaredLogger) *api {
	r := mux.NewRouter()
	a := &api{
		Handler: r,
		hist:    hist,
		log:     log,
		sse: sse.NewServer(&sse.Options{
			Headers: map[string]string{"Access-Control-Allow-Origin": "*"},
			Logger:  zap.NewStdLog(log.Desugar()),
		}),
	}

	r.HandleFunc("/api/state", a.state).Methods("GET")
	r.HandleFunc("/api/results", a.runs).Methods("GET")
	r.HandleFunc("/api/results/{id}", a.points).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	r.PathPrefix("/events/").Handler(a.sse)
	r.Use(a.logRequests)

	return a
}

func (a *api) Close() { a.sse.Shutdown() }

func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		a.log.Debugf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
		next.ServeHTTP(w, req)
	})
}

func (a *api) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Errorw("encode response", "error", err)
	}
}

func (a *api) publish(channel string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		a.log.Errorw("marshal event", "channel", channel, "error", err)
		return
	}
	a.sse.SendMessage(channel, sse.SimpleMessage(string(data)))
}

func (a *api) StateChanged(s scan.State) {
	a.publish("/events/state", map[string]scan.State{"state": s})
}

func (a *api) PointRecorded(p scan.Point) {
	a.publish("/events/points", p)
}

func (a *api) state(w http.ResponseWriter, req *http.Request) {
	if a.seq == nil {
		http.Error(w, "not running", http.StatusServiceUnavailable)
		return
	}
	a.writeJSON(w, struct {
		State  scan.State   `json:"state"`
		Result *scan.Result `json:"result,omitempty"`
	}{a.seq.State(), a.seq.Result()})
}

func (a *api) runs(w http.ResponseWriter, req *http.Request) {
	limit := 50
	if v := req.FormValue("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := a.hist.Runs(req.Context(), limit)
	if err != nil {
		a.log.Errorw("list runs", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	a.writeJSON(w, runs)
}

func (a *api) points(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	points, err := a.hist.Points(req.Context(), id)
	if err != nil {
		a.log.Errorw("read run", "run", id, "error", err)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if points == nil {
		points = []scan.Point{}
	}
	a.writeJSON(w, points)
}
