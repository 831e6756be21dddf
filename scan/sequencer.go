// Package scan steps an axis through a range of positions and collects a
// telemetry batch at each one.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mastercactapus/proxscan/collect"
	"github.com/mastercactapus/proxscan/machine"
	"github.com/mastercactapus/proxscan/stats"
)

// Collector reads one batch of records.
type Collector interface {
	Collect(ctx context.Context, req collect.Request) (collect.Batch, error)
}

type Option func(*Sequencer)

// WithOperator sets the confirmation gate. The default confirms everything.
func WithOperator(op Operator) Option {
	return func(s *Sequencer) { s.op = op }
}

func WithRecorder(r Recorder) Option {
	return func(s *Sequencer) { s.rec = r }
}

// WithObserver adds an observer; it may be given more than once.
func WithObserver(o Observer) Option {
	return func(s *Sequencer) { s.obs = append(s.obs, o) }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Sequencer) { s.log = l }
}

func WithClock(c clock.Clock) Option {
	return func(s *Sequencer) { s.clk = c }
}

// Sequencer owns the axes and collector for the duration of a run.
// Only one Run may be active at a time.
type Sequencer struct {
	cfg  Config
	axes map[string]*machine.Axis
	col  Collector

	op  Operator
	rec Recorder
	obs []Observer
	log *zap.SugaredLogger
	clk clock.Clock

	mx      sync.Mutex
	running bool
	state   State
	result  *Result
}

func New(cfg Config, axes map[string]*machine.Axis, col Collector, opts ...Option) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scan config: %w", err)
	}
	for _, name := range cfg.axisNames() {
		if axes[name] == nil {
			return nil, fmt.Errorf("scan config: unknown axis %q", name)
		}
	}
	if col == nil {
		return nil, errors.New("scan: collector is required")
	}

	s := &Sequencer{
		cfg:   cfg.withDefaults(),
		axes:  axes,
		col:   col,
		op:    AutoConfirm{},
		log:   zap.NewNop().Sugar(),
		clk:   clock.New(),
		state: StateIdle,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// State returns the current run state.
func (s *Sequencer) State() State {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.state
}

// Result returns a copy of the current or most recent run.
func (s *Sequencer) Result() *Result {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.result.clone()
}

func (s *Sequencer) setState(st State) {
	s.mx.Lock()
	s.state = st
	s.mx.Unlock()

	s.log.Infow("state", "state", st)
	for _, o := range s.obs {
		o.StateChanged(st)
	}
}

// Run homes and positions the rig, waits for the operator, then scans.
// The returned Result holds every point recorded, also on error.
func (s *Sequencer) Run(ctx context.Context) (*Result, error) {
	s.mx.Lock()
	if s.running {
		s.mx.Unlock()
		return nil, errors.New("scan: already running")
	}
	s.running = true
	s.result = &Result{RunID: uuid.NewString(), StartedAt: s.clk.Now()}
	runID := s.result.RunID
	s.mx.Unlock()

	defer func() {
		s.mx.Lock()
		s.running = false
		s.mx.Unlock()
	}()

	log := s.log.With("run", runID)
	if s.rec != nil {
		if err := s.rec.BeginRun(ctx, s.Result(), s.cfg); err != nil {
			return s.Result(), fmt.Errorf("record run: %w", err)
		}
	}

	err := s.run(ctx, log)
	final := StateDone
	if err != nil {
		final = StateFailed
		log.Errorw("scan aborted", "error", err)
	}
	s.setState(final)

	if s.rec != nil {
		// the run context may already be cancelled
		fErr := s.rec.FinishRun(context.WithoutCancel(ctx), runID, final, err)
		if fErr != nil && err == nil {
			err = fmt.Errorf("record run: %w", fErr)
		}
	}
	return s.Result(), err
}

func (s *Sequencer) run(ctx context.Context, log *zap.SugaredLogger) error {
	s.setState(StateHoming)
	for _, name := range s.cfg.Home {
		a := s.axes[name]
		log.Infof("homing %s-axis", name)
		if err := a.Home(ctx, true); err != nil {
			return err
		}
		pos, err := a.Position(ctx)
		if err != nil {
			return err
		}
		log.Infof("%s position: %.4f", name, pos)
	}

	s.setState(StatePositioning)
	for _, p := range s.cfg.Start {
		a := s.axes[p.Axis]
		if err := a.MoveTo(ctx, p.Position); err != nil {
			return err
		}
		pos, err := a.WaitSettled(ctx)
		if err != nil {
			return err
		}
		log.Infof("%s position: %.4f", p.Axis, pos)
	}

	s.setState(StateAwaitingOperator)
	if err := s.op.Confirm(ctx, s.cfg.MountPrompt); err != nil {
		return err
	}

	s.setState(StateScanning)
	axis := s.axes[s.cfg.ScanAxis]
	pos, err := axis.Position(ctx)
	if err != nil {
		return err
	}
	for i := 0; i <= s.cfg.Iterations; i++ {
		var settle time.Duration
		if i > 0 {
			start := s.clk.Now()
			if err := axis.MoveBy(ctx, s.cfg.Step); err != nil {
				return err
			}
			pos, err = axis.WaitSettled(ctx)
			if err != nil {
				return err
			}
			settle = s.clk.Since(start)
		}
		log.Infof("motor position: %.4fmm", pos)

		p, err := s.sample(ctx, log, i, pos)
		p.SettleTime = settle
		if err != nil {
			if ctx.Err() != nil || s.cfg.OnFailure != PolicySkip {
				return fmt.Errorf("point %d at %.4fmm: %w", i, pos, err)
			}
			p.Gap = true
			p.Err = err.Error()
			log.Warnw("gap", "index", i, "position_mm", pos, "outcome", p.Outcome, "error", err)
		} else {
			log.Infow("point", append([]interface{}{"index", i, "position_mm", pos, "samples", p.Samples}, p.Summary.Fields()...)...)
		}

		if err := s.record(ctx, p); err != nil {
			return err
		}
	}

	s.setState(StateAwaitingOperator)
	err = s.op.Confirm(ctx, s.cfg.DonePrompt)
	if errors.Is(err, ErrOperatorAbort) {
		// nothing left to abort
		err = nil
	}
	return err
}

func (s *Sequencer) sample(ctx context.Context, log *zap.SugaredLogger, i int, pos float64) (Point, error) {
	p := Point{Index: i, Position: pos}
	b, err := s.col.Collect(ctx, collect.Request{Samples: s.cfg.Samples, Timeout: s.cfg.SampleTimeout})
	p.Outcome = b.Outcome
	p.Samples = len(b.Records)
	p.CollectTime = b.Elapsed
	if err != nil {
		return p, err
	}
	log.Infof("%d samples have been collected", p.Samples)

	p.Summary, err = stats.Summarize(b.Records)
	return p, err
}

func (s *Sequencer) record(ctx context.Context, p Point) error {
	s.mx.Lock()
	s.result.Points = append(s.result.Points, p)
	runID := s.result.RunID
	s.mx.Unlock()

	for _, o := range s.obs {
		o.PointRecorded(p)
	}
	if s.rec == nil {
		return nil
	}
	if err := s.rec.AddPoint(ctx, runID, p); err != nil {
		return fmt.Errorf("record point %d: %w", p.Index, err)
	}
	return nil
}
