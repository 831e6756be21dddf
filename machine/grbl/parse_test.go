package grbl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/proxscan/coord"
	"github.com/mastercactapus/proxscan/machine"
)

func TestParseStatus(t *testing.T) {
	now := time.Unix(100, 0)

	st, err := parseStatus(machine.State{}, "<Run|MPos:17.100,30.400,0.000|FS:500,0|WCO:1.000,0.000,0.000>\r\n", now)
	require.NoError(t, err)
	assert.Equal(t, "Run", st.Status)
	assert.Equal(t, coord.Point{X: 17.1, Y: 30.4}, st.MPos)
	assert.Equal(t, coord.Point{X: 1}, st.WCO)
	assert.Equal(t, now, st.Updated)
	assert.False(t, st.Idle())

	// WPos reports are converted using the last known WCO.
	st, err = parseStatus(*st, "<Idle|WPos:16.200,30.400,0.000|FS:0,0>", now)
	require.NoError(t, err)
	assert.True(t, st.Idle())
	assert.Equal(t, coord.Point{X: 17.2, Y: 30.4}, st.MPos)

	_, err = parseStatus(machine.State{}, "<Idle|MPos:1,2>", now)
	assert.Error(t, err)

	_, err = parseStatus(machine.State{}, "ok", now)
	assert.Error(t, err)
}

func TestParseMessage(t *testing.T) {
	kind, body, err := parseMessage("[MSG:Caution: Unlocked]")
	require.NoError(t, err)
	assert.Equal(t, "MSG", kind)
	assert.Equal(t, "Caution: Unlocked", body)

	_, _, err = parseMessage("MSG")
	assert.Error(t, err)
}
