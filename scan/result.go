package scan

import (
	"time"

	"github.com/mastercactapus/proxscan/collect"
	"github.com/mastercactapus/proxscan/stats"
)

// State is the sequencer's position in a run.
type State string

const (
	StateIdle             State = "idle"
	StateHoming           State = "homing"
	StatePositioning      State = "positioning"
	StateAwaitingOperator State = "awaiting_operator"
	StateScanning         State = "scanning"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// States lists every State in run order.
var States = []State{
	StateIdle, StateHoming, StatePositioning, StateAwaitingOperator,
	StateScanning, StateDone, StateFailed,
}

// Point is the outcome of one settle and collect cycle.
type Point struct {
	Index    int             `json:"index"`
	Position float64         `json:"position"`
	Outcome  collect.Outcome `json:"outcome"`
	Samples  int             `json:"samples"`
	Summary  stats.Summary   `json:"summary"`

	// Gap is set when the position was skipped after a failed collection.
	Gap bool   `json:"gap,omitempty"`
	Err string `json:"error,omitempty"`

	SettleTime  time.Duration `json:"settle_time"`
	CollectTime time.Duration `json:"collect_time"`
}

type Result struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Points    []Point   `json:"points"`
}

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.Points = append([]Point(nil), r.Points...)
	return &c
}
