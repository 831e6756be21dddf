package machine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mastercactapus/proxscan/machine/fake"
)

func TestAxis_WaitSettled(t *testing.T) {
	drv := fake.NewDriver(0)
	drv.MovePolls = 3
	a := NewAxis("x", drv, SettleOptions{PollInterval: time.Millisecond, Timeout: time.Second}, zaptest.NewLogger(t).Sugar())

	ctx := context.Background()
	require.NoError(t, a.MoveBy(ctx, 0.1))
	pos, err := a.WaitSettled(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, pos, 1e-9)
	assert.Equal(t, 4, drv.Polls())

	require.NoError(t, a.MoveTo(ctx, 17))
	pos, err = a.WaitSettled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 17.0, pos)
	assert.Equal(t, []string{"move_by 0.1000", "move_to 17.0000"}, drv.Calls())
}

func TestAxis_WaitSettledTimeout(t *testing.T) {
	drv := fake.NewDriver(5)
	drv.MovePolls = -1
	mock := clock.NewMock()
	a := NewAxis("x", drv, SettleOptions{
		PollInterval:    10 * time.Millisecond,
		MaxPollInterval: 80 * time.Millisecond,
		Timeout:         time.Second,
	}, zaptest.NewLogger(t).Sugar()).WithClock(mock)

	require.NoError(t, a.MoveBy(context.Background(), 1))

	done := make(chan error, 1)
	go func() {
		_, err := a.WaitSettled(context.Background())
		done <- err
	}()

	guard := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMotionTimeout))
			assert.Contains(t, err.Error(), "6.0000mm")
			assert.Greater(t, drv.Polls(), 3)
			return
		case <-guard:
			t.Fatal("WaitSettled did not time out")
		default:
			mock.Add(10 * time.Millisecond)
		}
	}
}

func TestAxis_WaitSettledCancel(t *testing.T) {
	drv := fake.NewDriver(0)
	drv.MovePolls = -1
	a := NewAxis("y", drv, SettleOptions{PollInterval: time.Millisecond}, nil)
	require.NoError(t, a.MoveTo(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.WaitSettled(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAxis_Home(t *testing.T) {
	drv := fake.NewDriver(12)
	drv.MovePolls = 2
	a := NewAxis("y", drv, SettleOptions{PollInterval: time.Millisecond, Timeout: time.Second}, nil)

	require.NoError(t, a.Home(context.Background(), true))
	pos, err := a.Position(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, pos)
	assert.Equal(t, 3, drv.Polls())

	drv.Err = errors.New("usb gone")
	err = a.Home(context.Background(), true)
	assert.ErrorContains(t, err, "axis y: home: usb gone")
}
