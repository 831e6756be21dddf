// Package fake provides an in-memory axis driver for tests and dry runs.
package fake

import (
	"context"
	"fmt"
	"sync"
)

// Driver is a machine.Driver whose motion completes after a fixed number
// of status polls.
type Driver struct {
	mx sync.Mutex

	pos     float64
	home    float64
	polls   int
	pending int

	// MovePolls is how many IsMoving calls report motion after each
	// command. A negative value never settles.
	MovePolls int

	// Err, when set, is returned from every move command.
	Err error

	calls []string
}

// NewDriver returns a driver resting at pos.
func NewDriver(pos float64) *Driver {
	return &Driver{pos: pos}
}

func (d *Driver) command(format string, args ...interface{}) error {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
	if d.Err != nil {
		return d.Err
	}
	d.pending = d.MovePolls
	return nil
}

func (d *Driver) Position(context.Context) (float64, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.pos, nil
}

func (d *Driver) IsMoving(context.Context) (bool, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.polls++
	if d.pending < 0 {
		return true, nil
	}
	if d.pending > 0 {
		d.pending--
		return true, nil
	}
	return false, nil
}

func (d *Driver) MoveTo(_ context.Context, pos float64) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.command("move_to %.4f", pos); err != nil {
		return err
	}
	d.pos = pos
	return nil
}

func (d *Driver) MoveBy(_ context.Context, delta float64) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.command("move_by %.4f", delta); err != nil {
		return err
	}
	d.pos += delta
	return nil
}

func (d *Driver) Home(context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.command("home"); err != nil {
		return err
	}
	d.pos = d.home
	return nil
}

// Calls returns the commands received so far.
func (d *Driver) Calls() []string {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]string(nil), d.calls...)
}

// Polls returns how many times IsMoving was called.
func (d *Driver) Polls() int {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.polls
}
