package scan

import (
	"context"
	"errors"
)

// ErrOperatorAbort is returned by an Operator that declined to continue.
var ErrOperatorAbort = errors.New("aborted by operator")

// Operator gates the run on human confirmation.
type Operator interface {
	Confirm(ctx context.Context, message string) error
}

// AutoConfirm accepts every prompt.
type AutoConfirm struct{}

func (AutoConfirm) Confirm(ctx context.Context, _ string) error { return ctx.Err() }

// Observer is notified of progress. Calls are made from the run goroutine
// and must not block.
type Observer interface {
	StateChanged(State)
	PointRecorded(Point)
}

// Recorder persists runs.
type Recorder interface {
	BeginRun(ctx context.Context, res *Result, cfg Config) error
	AddPoint(ctx context.Context, runID string, p Point) error
	FinishRun(ctx context.Context, runID string, state State, runErr error) error
}
