package collect

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mastercactapus/proxscan/telemetry"
)

// scriptSource writes lines into a pipe and then either closes it or keeps
// it open until the reader side is closed.
type scriptSource struct {
	lines   []string
	hold    bool
	openErr error

	mx      sync.Mutex
	cleared int
	opened  int
	closed  int
}

type scriptStream struct {
	*io.PipeReader
	src *scriptSource
}

func (s *scriptStream) Close() error {
	s.src.mx.Lock()
	s.src.closed++
	s.src.mx.Unlock()
	return s.PipeReader.Close()
}

func (s *scriptSource) Clear(context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.cleared++
	return nil
}

func (s *scriptSource) Open(context.Context) (Stream, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.mx.Lock()
	s.opened++
	s.mx.Unlock()

	pr, pw := io.Pipe()
	go func() {
		for _, l := range s.lines {
			if _, err := io.WriteString(pw, l+"\n"); err != nil {
				return
			}
		}
		if !s.hold {
			pw.Close()
		}
	}()
	return &scriptStream{PipeReader: pr, src: s}, nil
}

func (s *scriptSource) counts() (cleared, opened, closed int) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.cleared, s.opened, s.closed
}

func newCollector(t *testing.T, src Source, f telemetry.Format) *Collector {
	filter, err := telemetry.NewFilter(f)
	require.NoError(t, err)
	return New(src, filter, zaptest.NewLogger(t).Sugar())
}

func TestCollector_TargetReached(t *testing.T) {
	src := &scriptSource{
		hold: true,
		lines: []string{
			"--------- beginning of main",
			"D mcuservice: DIFF_825c_mean: 12,",
			"D mcuservice: DIFF_825c_mean: 13,",
			"D mcuservice: something else",
			"D mcuservice: DIFF_825c_mean: 14,",
			"D mcuservice: DIFF_825c_mean: 15,",
		},
	}
	c := newCollector(t, src, telemetry.DiffMean)

	b, err := c.Collect(context.Background(), Request{Samples: 3, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, TargetReached, b.Outcome)
	assert.Equal(t, []telemetry.Record{{12}, {13}, {14}}, b.Records)

	cleared, opened, closed := src.counts()
	assert.Equal(t, 1, cleared)
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestCollector_StreamClosed(t *testing.T) {
	src := &scriptSource{lines: []string{"DIFF_825c_mean: 1,"}}
	c := newCollector(t, src, telemetry.DiffMean)

	b, err := c.Collect(context.Background(), Request{Samples: 3})
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.Equal(t, StreamClosed, b.Outcome)
	assert.Len(t, b.Records, 1)

	_, _, closed := src.counts()
	assert.Equal(t, 1, closed)
}

func TestCollector_Deadline(t *testing.T) {
	src := &scriptSource{hold: true, lines: []string{"DIFF_825c_mean: 1,"}}
	c := newCollector(t, src, telemetry.DiffMean)

	b, err := c.Collect(context.Background(), Request{Samples: 3, Timeout: 50 * time.Millisecond})
	assert.ErrorIs(t, err, ErrDeadline)
	assert.Equal(t, DeadlineReached, b.Outcome)
	assert.Len(t, b.Records, 1)

	_, _, closed := src.counts()
	assert.Equal(t, 1, closed)
}

func TestCollector_Cancelled(t *testing.T) {
	src := &scriptSource{hold: true}
	c := newCollector(t, src, telemetry.DiffMean)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	b, err := c.Collect(ctx, Request{Samples: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Cancelled, b.Outcome)

	_, _, closed := src.counts()
	assert.Equal(t, 1, closed)
}

func TestCollector_Malformed(t *testing.T) {
	src := &scriptSource{hold: true, lines: []string{
		"SX92xx Diff 0..7: 1 2 3 4 5 6 7 8 ,done.",
		"SX92xx Diff 0..7: 1 2 3 ,done.",
	}}
	c := newCollector(t, src, telemetry.SX92)

	b, err := c.Collect(context.Background(), Request{Samples: 5, Timeout: 5 * time.Second})
	var me *telemetry.MalformedError
	assert.True(t, errors.As(err, &me))
	assert.Equal(t, Malformed, b.Outcome)
	assert.Len(t, b.Records, 1)

	_, _, closed := src.counts()
	assert.Equal(t, 1, closed)
}

func TestCollector_OpenError(t *testing.T) {
	src := &scriptSource{openErr: errors.New("exec: \"adb\": executable file not found in $PATH")}
	c := newCollector(t, src, telemetry.DiffMean)

	_, err := c.Collect(context.Background(), Request{Samples: 1})
	assert.ErrorContains(t, err, "open log stream")

	_, err = c.Collect(context.Background(), Request{Samples: 0})
	assert.Error(t, err)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.log")
	data := strings.Join([]string{
		"DIFF_825c_mean: 12,",
		"noise",
		"DIFF_825c_mean: 13,",
		"DIFF_825c_mean: 14,",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	c := newCollector(t, FileSource{Path: path}, telemetry.DiffMean)
	b, err := c.Collect(context.Background(), Request{Samples: 3})
	require.NoError(t, err)
	assert.Equal(t, []telemetry.Record{{12}, {13}, {14}}, b.Records)

	_, err = c.Collect(context.Background(), Request{Samples: 4})
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestOutcome_Text(t *testing.T) {
	for o := TargetReached; o <= Malformed; o++ {
		text, err := o.MarshalText()
		require.NoError(t, err)
		var got Outcome
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, o, got)
	}
	var o Outcome
	assert.Error(t, o.UnmarshalText([]byte("done")))
}

// noiseSource streams non-matching lines until the reader side closes.
type noiseSource struct {
	mx     sync.Mutex
	closed int
}

type noiseStream struct {
	*io.PipeReader
	src *noiseSource
}

func (s *noiseStream) Close() error {
	s.src.mx.Lock()
	s.src.closed++
	s.src.mx.Unlock()
	return s.PipeReader.Close()
}

func (*noiseSource) Clear(context.Context) error { return nil }

func (n *noiseSource) Open(context.Context) (Stream, error) {
	pr, pw := io.Pipe()
	go func() {
		for {
			if _, err := io.WriteString(pw, "D mcuservice: irq status 0x04\n"); err != nil {
				return
			}
		}
	}()
	return &noiseStream{PipeReader: pr, src: n}, nil
}

func TestCollector_CancelWhileStreaming(t *testing.T) {
	src := &noiseSource{}
	c := newCollector(t, src, telemetry.DiffMean)

	const runs = 100
	for i := 0; i < runs; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := c.Collect(ctx, Request{Samples: 1})
			done <- err
		}()
		time.Sleep(time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled, "run %d", i)
		case <-time.After(5 * time.Second):
			t.Fatalf("run %d: Collect did not return after cancel", i)
		}
	}

	src.mx.Lock()
	defer src.mx.Unlock()
	assert.Equal(t, runs, src.closed)
}

func TestCollector_LineTooLong(t *testing.T) {
	src := &scriptSource{hold: true, lines: []string{
		"DIFF_825c_mean: 1,",
		"DIFF_825c_mean: " + strings.Repeat("9", MaxLineSize+1),
	}}
	c := newCollector(t, src, telemetry.DiffMean)

	b, err := c.Collect(context.Background(), Request{Samples: 3, Timeout: 5 * time.Second})
	assert.ErrorIs(t, err, bufio.ErrTooLong)
	assert.NotErrorIs(t, err, ErrStreamClosed)
	assert.Equal(t, Malformed, b.Outcome)
	assert.Len(t, b.Records, 1)

	_, _, closed := src.counts()
	assert.Equal(t, 1, closed)
}
