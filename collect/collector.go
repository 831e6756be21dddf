// Package collect reads a bounded number of telemetry records from a device
// log stream.
package collect

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mastercactapus/proxscan/telemetry"
)

var (
	ErrDeadline     = errors.New("sample deadline reached")
	ErrStreamClosed = errors.New("log stream closed")
)

// MaxLineSize is the longest log line the collector accepts.
const MaxLineSize = 1 << 20

// Outcome describes why a collection stopped.
type Outcome int

const (
	TargetReached Outcome = iota
	DeadlineReached
	StreamClosed
	Cancelled
	Malformed
)

func (o Outcome) String() string {
	switch o {
	case TargetReached:
		return "target_reached"
	case DeadlineReached:
		return "deadline_reached"
	case StreamClosed:
		return "stream_closed"
	case Cancelled:
		return "cancelled"
	case Malformed:
		return "malformed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(text []byte) error {
	for c := TargetReached; c <= Malformed; c++ {
		if c.String() == string(text) {
			*o = c
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

type Request struct {
	Samples int
	// Timeout bounds the whole collection. Zero waits until the context ends.
	Timeout time.Duration
}

// Batch holds the records read at one position. Records is complete only when
// Outcome is TargetReached.
type Batch struct {
	Records []telemetry.Record
	Outcome Outcome
	Elapsed time.Duration
}

type Collector struct {
	src    Source
	filter *telemetry.Filter
	log    *zap.SugaredLogger
	clk    clock.Clock
}

func New(src Source, filter *telemetry.Filter, log *zap.SugaredLogger) *Collector {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Collector{src: src, filter: filter, log: log, clk: clock.New()}
}

func (c *Collector) WithClock(clk clock.Clock) *Collector {
	c.clk = clk
	return c
}

func (c *Collector) Format() telemetry.Format { return c.filter.Format() }

// Collect clears the device log, opens a stream and reads until req.Samples
// records have matched. The stream is closed before Collect returns, on
// every path. Partial batches are returned together with the error.
func (c *Collector) Collect(ctx context.Context, req Request) (b Batch, err error) {
	if req.Samples < 1 {
		return b, fmt.Errorf("collect: invalid sample count %d", req.Samples)
	}
	start := c.clk.Now()
	defer func() { b.Elapsed = c.clk.Since(start) }()

	if err := c.src.Clear(ctx); err != nil {
		return b, fmt.Errorf("clear device log: %w", err)
	}
	s, err := c.src.Open(ctx)
	if err != nil {
		return b, fmt.Errorf("open log stream: %w", err)
	}
	defer func() {
		if cErr := s.Close(); cErr != nil {
			err = multierr.Append(err, fmt.Errorf("close log stream: %w", cErr))
		}
	}()

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	scan := bufio.NewScanner(s)
	scan.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	lineCh := make(chan string)
	// scanErrCh always holds a value once lineCh is closed
	scanErrCh := make(chan error, 1)
	go func() {
		defer func() {
			scanErrCh <- scan.Err()
			close(lineCh)
		}()
		for scan.Scan() {
			select {
			case lineCh <- scan.Text():
			case <-readCtx.Done():
				return
			}
		}
	}()

	var deadline <-chan time.Time
	if req.Timeout > 0 {
		t := c.clk.Timer(req.Timeout)
		defer t.Stop()
		deadline = t.C
	}

	b.Records = make([]telemetry.Record, 0, req.Samples)
	var discarded int
	defer func() {
		c.log.Debugw("collection finished", "outcome", b.Outcome, "records", len(b.Records), "discarded", discarded)
	}()

	for {
		select {
		case <-ctx.Done():
			b.Outcome = Cancelled
			return b, ctx.Err()
		case <-deadline:
			b.Outcome = DeadlineReached
			return b, fmt.Errorf("%w: %d of %d samples after %s", ErrDeadline, len(b.Records), req.Samples, req.Timeout)
		case line, ok := <-lineCh:
			if !ok {
				if ctx.Err() != nil {
					b.Outcome = Cancelled
					return b, ctx.Err()
				}
				sErr := <-scanErrCh
				if errors.Is(sErr, bufio.ErrTooLong) {
					b.Outcome = Malformed
					return b, fmt.Errorf("log line longer than %d bytes: %w", MaxLineSize, sErr)
				}
				b.Outcome = StreamClosed
				if sErr != nil {
					return b, fmt.Errorf("%w: %v", ErrStreamClosed, sErr)
				}
				return b, fmt.Errorf("%w: %d of %d samples", ErrStreamClosed, len(b.Records), req.Samples)
			}

			rec, matched, err := c.filter.Match(line)
			if err != nil {
				b.Outcome = Malformed
				return b, err
			}
			if !matched {
				discarded++
				continue
			}
			c.log.Debugw("sample", "n", len(b.Records)+1, "line", line)
			b.Records = append(b.Records, rec)
			if len(b.Records) == req.Samples {
				b.Outcome = TargetReached
				return b, nil
			}
		}
	}
}
