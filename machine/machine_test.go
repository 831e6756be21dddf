package machine

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/proxscan/coord"
	"github.com/mastercactapus/proxscan/gcode"
)

type recordingAdapter struct {
	mx    sync.Mutex
	state State
	sent  bytes.Buffer
}

func (r *recordingAdapter) CurrentState() State {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.state
}
func (r *recordingAdapter) setState(st State) {
	r.mx.Lock()
	r.state = st
	r.mx.Unlock()
}
func (r *recordingAdapter) WriteByte(b byte) error { return r.sent.WriteByte(b) }
func (r *recordingAdapter) Write(p []byte) (int, error) {
	return r.sent.Write(p)
}
func (r *recordingAdapter) ReadFrom(rd io.Reader) (int64, error) {
	return r.sent.ReadFrom(rd)
}

func TestMachine_Driver(t *testing.T) {
	a := &recordingAdapter{}
	m := NewMachine(a)
	ctx := context.Background()

	assert.Equal(t, []string{"X", "Y", "Z"}, m.Devices())

	_, err := m.Driver("A")
	assert.Error(t, err)

	x, err := m.Driver("x")
	require.NoError(t, err)

	require.NoError(t, x.MoveTo(ctx, 17))
	require.NoError(t, x.MoveBy(ctx, 0.1))
	require.NoError(t, x.Home(ctx))
	assert.Equal(t, "G53G0X17\nG91G0X0.1\nG90\n$HX\n", a.sent.String())
}

func TestMachine_Moving(t *testing.T) {
	a := &recordingAdapter{}
	m := NewMachine(a)
	ctx := context.Background()
	y, err := m.Driver("Y")
	require.NoError(t, err)

	a.setState(State{Status: "Idle", Updated: time.Now()})
	moving, err := y.IsMoving(ctx)
	require.NoError(t, err)
	assert.False(t, moving)

	require.NoError(t, y.MoveTo(ctx, 30.4))
	moving, err = y.IsMoving(ctx)
	require.NoError(t, err)
	assert.True(t, moving, "no report since the move was acknowledged")

	a.setState(State{Status: "Run", Updated: time.Now().Add(time.Millisecond)})
	moving, err = y.IsMoving(ctx)
	require.NoError(t, err)
	assert.True(t, moving)

	a.setState(State{Status: "Idle", MPos: coord.Point{Y: 30.4}, Updated: time.Now().Add(2 * time.Millisecond)})
	moving, err = y.IsMoving(ctx)
	require.NoError(t, err)
	assert.False(t, moving)
	pos, err := y.Position(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30.4, pos)

	a.setState(State{Status: "Alarm:1", Updated: time.Now().Add(3 * time.Millisecond)})
	_, err = y.IsMoving(ctx)
	assert.ErrorIs(t, err, ErrAlarm)
}

func TestMachine_Setup(t *testing.T) {
	a := &recordingAdapter{}
	m := NewMachine(a)

	require.NoError(t, m.Setup(gcode.MustParse("G21 G90\nG94")))
	assert.Equal(t, "G21G90\nG94\n", a.sent.String())

	assert.Error(t, m.Setup(gcode.MustParse("G0 X10")))
}
