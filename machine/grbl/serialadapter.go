package grbl

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"

	"github.com/mastercactapus/proxscan/machine"
)

// DefaultPollInterval is how often a status report is requested.
const DefaultPollInterval = 200 * time.Millisecond

type SerialAdapter struct {
	*Conn

	log *zap.SugaredLogger

	mx   sync.Mutex
	last machine.State
	data chan string
	done chan struct{}
	stop sync.Once
}

var _ machine.Adapter = &SerialAdapter{}

// OpenSerial opens a Grbl controller on a local serial port.
func OpenSerial(port string, baud int, poll time.Duration, logger *zap.SugaredLogger) (*SerialAdapter, error) {
	p, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	if err != nil {
		return nil, err
	}
	return NewSerialAdapter(p, poll, logger), nil
}

func NewSerialAdapter(rw io.ReadWriter, poll time.Duration, logger *zap.SugaredLogger) *SerialAdapter {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	adapter := &SerialAdapter{
		Conn: NewConn(rw),
		log:  logger,
		data: make(chan string),
		done: make(chan struct{}),
	}
	go adapter.pollLoop(poll)
	go adapter.loop()
	go adapter.readLoop()

	return adapter
}

// Close stops status polling and closes the port.
func (adapter *SerialAdapter) Close() error {
	adapter.stop.Do(func() { close(adapter.done) })
	return adapter.Conn.Close()
}

func (adapter *SerialAdapter) pollLoop(poll time.Duration) {
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		select {
		case <-adapter.done:
			return
		case <-t.C:
			if err := adapter.WriteByte('?'); err != nil {
				adapter.log.Errorw("request status", "error", err)
			}
		}
	}
}

func (adapter *SerialAdapter) readLoop() {
	buf := make([]byte, 1024)
	for {
		n, err := adapter.Read(buf)
		if errors.Is(err, io.ErrShortBuffer) {
			adapter.log.Warn("dropped oversized line from controller")
			adapter.Conn.readBuf = nil
			continue
		}
		if err != nil {
			select {
			case <-adapter.done:
			default:
				adapter.log.Errorw("read from port", "error", err)
			}
			return
		}
		select {
		case adapter.data <- string(buf[:n]):
		case <-adapter.done:
			return
		}
	}
}

func (adapter *SerialAdapter) CurrentState() machine.State {
	adapter.mx.Lock()
	state := adapter.last
	adapter.mx.Unlock()
	return state
}

func (adapter *SerialAdapter) loop() {
	for {
		select {
		case <-adapter.done:
			return
		case data := <-adapter.data:
			adapter.handleLine(data)
		}
	}
}

func (adapter *SerialAdapter) handleLine(data string) {
	if len(data) == 0 {
		return
	}
	switch {
	case data[0] == '<':
		adapter.mx.Lock()
		stat, err := parseStatus(adapter.last, data, time.Now())
		if err == nil {
			adapter.last = *stat
		}
		adapter.mx.Unlock()
		if err != nil {
			adapter.log.Errorw("parse status", "line", data, "error", err)
		}
	case data[0] == '[':
		kind, body, err := parseMessage(data)
		if err != nil {
			adapter.log.Errorw("parse message", "error", err)
			return
		}
		adapter.log.Debugw("controller message", "kind", kind, "body", body)
	case strings.HasPrefix(data, "ALARM:"):
		adapter.log.Warnw("controller alarm", "code", strings.TrimPrefix(data, "ALARM:"))
	}
}
