package machine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// ErrMotionTimeout is returned when an axis does not settle in time.
var ErrMotionTimeout = errors.New("motion did not settle")

// Driver controls a single physical axis. Move commands return as soon as
// the motion has been accepted; IsMoving reports when it completes.
type Driver interface {
	Position(ctx context.Context) (float64, error)
	IsMoving(ctx context.Context) (bool, error)
	MoveTo(ctx context.Context, pos float64) error
	MoveBy(ctx context.Context, delta float64) error
	Home(ctx context.Context) error
}

// SettleOptions bound the status polling done by WaitSettled.
type SettleOptions struct {
	// PollInterval is the delay after the first in-motion observation.
	// It doubles on every following observation up to MaxPollInterval.
	PollInterval    time.Duration
	MaxPollInterval time.Duration

	// Timeout of zero waits until the context is done.
	Timeout time.Duration
}

func (opt SettleOptions) withDefaults() SettleOptions {
	if opt.PollInterval <= 0 {
		opt.PollInterval = 20 * time.Millisecond
	}
	if opt.MaxPollInterval < opt.PollInterval {
		opt.MaxPollInterval = opt.PollInterval
	}
	return opt
}

// Axis wraps a Driver with logging and bounded settle polling.
type Axis struct {
	name string
	drv  Driver
	opt  SettleOptions
	clk  clock.Clock
	log  *zap.SugaredLogger
}

func NewAxis(name string, drv Driver, opt SettleOptions, logger *zap.SugaredLogger) *Axis {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Axis{
		name: name,
		drv:  drv,
		opt:  opt.withDefaults(),
		clk:  clock.New(),
		log:  logger.With("axis", name),
	}
}

// WithClock replaces the clock used for polling and timeouts.
func (a *Axis) WithClock(c clock.Clock) *Axis {
	a.clk = c
	return a
}

func (a *Axis) Name() string { return a.name }

func (a *Axis) Position(ctx context.Context) (float64, error) {
	pos, err := a.drv.Position(ctx)
	if err != nil {
		return 0, fmt.Errorf("axis %s: read position: %w", a.name, err)
	}
	return pos, nil
}

// MoveTo commands absolute motion and returns without waiting for it.
func (a *Axis) MoveTo(ctx context.Context, pos float64) error {
	a.log.Debugf("move to %.4fmm", pos)
	if err := a.drv.MoveTo(ctx, pos); err != nil {
		return fmt.Errorf("axis %s: move to %.4f: %w", a.name, pos, err)
	}
	return nil
}

// MoveBy commands relative motion and returns without waiting for it.
func (a *Axis) MoveBy(ctx context.Context, delta float64) error {
	a.log.Debugf("move by %.4fmm", delta)
	if err := a.drv.MoveBy(ctx, delta); err != nil {
		return fmt.Errorf("axis %s: move by %.4f: %w", a.name, delta, err)
	}
	return nil
}

// Home moves the axis to its reference position. With blocking set it
// also waits for the axis to settle.
func (a *Axis) Home(ctx context.Context, blocking bool) error {
	a.log.Info("homing")
	if err := a.drv.Home(ctx); err != nil {
		return fmt.Errorf("axis %s: home: %w", a.name, err)
	}
	if !blocking {
		return nil
	}
	_, err := a.WaitSettled(ctx)
	return err
}

// WaitSettled polls motion status until the axis stops and returns the
// final position.
func (a *Axis) WaitSettled(ctx context.Context) (float64, error) {
	start := a.clk.Now()

	var deadline <-chan time.Time
	if a.opt.Timeout > 0 {
		t := a.clk.Timer(a.opt.Timeout)
		defer t.Stop()
		deadline = t.C
	}

	interval := a.opt.PollInterval
	for {
		moving, err := a.drv.IsMoving(ctx)
		if err != nil {
			return 0, fmt.Errorf("axis %s: read status: %w", a.name, err)
		}
		if !moving {
			pos, err := a.Position(ctx)
			if err != nil {
				return 0, err
			}
			a.log.Infow("settled", "position_mm", pos, "elapsed", a.clk.Since(start))
			return pos, nil
		}

		wait := a.clk.Timer(interval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return 0, ctx.Err()
		case <-deadline:
			wait.Stop()
			pos, _ := a.drv.Position(ctx)
			return 0, fmt.Errorf("axis %s: still moving after %s (last position %.4fmm): %w",
				a.name, a.opt.Timeout, pos, ErrMotionTimeout)
		case <-wait.C:
		}

		interval *= 2
		if interval > a.opt.MaxPollInterval {
			interval = a.opt.MaxPollInterval
		}
	}
}
