package machine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/proxscan/coord"
	"github.com/mastercactapus/proxscan/gcode"
)

// ErrAlarm is returned while the controller is in an alarm state.
var ErrAlarm = errors.New("controller alarm")

// Machine is a multi-axis motion controller reached through an Adapter.
type Machine struct {
	Adapter

	mx      sync.Mutex
	lastCmd time.Time
}

// State is the last status report of a controller.
type State struct {
	Status string
	MPos   coord.Point
	WCO    coord.Point

	// Updated is when the report was received.
	Updated time.Time
}

// Idle reports whether the controller has no motion queued or running.
func (s State) Idle() bool {
	return s.Status == "Idle"
}

func NewMachine(a Adapter) *Machine {
	return &Machine{Adapter: a}
}

// Devices lists the axes the controller reports positions for.
func (m *Machine) Devices() []string {
	res := make([]string, len(coord.Axes))
	for i := range coord.Axes {
		res[i] = coord.Axes[i : i+1]
	}
	return res
}

// Driver returns a single-axis driver for the named axis.
func (m *Machine) Driver(axis string) (Driver, error) {
	if len(axis) != 1 || !strings.Contains(coord.Axes, strings.ToUpper(axis)) {
		return nil, fmt.Errorf("unknown axis %q", axis)
	}
	return &axisDriver{m: m, axis: strings.ToUpper(axis)[0]}, nil
}

// Setup sends a program (e.g. units and distance mode) before any motion.
func (m *Machine) Setup(blocks []gcode.Block) error {
	for _, b := range blocks {
		if b.HasMotion() {
			return errors.New("setup program must not move: " + b.String())
		}
	}
	return m.runBlocks(blocks)
}

// runBlocks returns once every block has been acknowledged, which for
// motion means planned rather than finished.
func (m *Machine) runBlocks(b []gcode.Block) error {
	_, err := m.Adapter.ReadFrom(gcode.NewBuffer(b...))
	m.markCommand()
	return err
}

func (m *Machine) markCommand() {
	m.mx.Lock()
	m.lastCmd = time.Now()
	m.mx.Unlock()
}

// moving treats any report older than the last acknowledged command as
// in-motion, since the controller has not yet told us about it.
func (m *Machine) moving() (bool, error) {
	st := m.CurrentState()
	m.mx.Lock()
	stale := st.Updated.Before(m.lastCmd)
	m.mx.Unlock()
	if strings.HasPrefix(st.Status, "Alarm") {
		return false, ErrAlarm
	}
	if stale {
		return true, nil
	}
	return !st.Idle(), nil
}

type axisDriver struct {
	m    *Machine
	axis byte
}

func (d *axisDriver) Position(context.Context) (float64, error) {
	v, _ := d.m.CurrentState().MPos.Get(d.axis)
	return v, nil
}

func (d *axisDriver) IsMoving(context.Context) (bool, error) {
	return d.m.moving()
}

func (d *axisDriver) MoveTo(_ context.Context, pos float64) error {
	return d.m.runBlocks([]gcode.Block{
		{gcode.G(53), gcode.G(0), gcode.AxisWord(d.axis, pos)},
	})
}

func (d *axisDriver) MoveBy(_ context.Context, delta float64) error {
	return d.m.runBlocks([]gcode.Block{
		{gcode.G(91), gcode.G(0), gcode.AxisWord(d.axis, delta)},
		{gcode.G(90)},
	})
}

// Home issues a single-axis homing cycle. Grbl acknowledges it once the
// cycle is complete.
func (d *axisDriver) Home(context.Context) error {
	_, err := d.m.Adapter.Write([]byte("$H" + string(d.axis) + "\n"))
	d.m.markCommand()
	return err
}
