package grbl

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mastercactapus/proxscan/machine"
	"github.com/mastercactapus/proxscan/spjs"
)

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "cmd_" + strconv.FormatInt(id, 36)
}

// SPJSAdapter drives a Grbl controller attached to a serial-port-json-server.
type SPJSAdapter struct {
	sp   *spjs.SPJS
	port string
	baud int
	log  *zap.SugaredLogger

	cmds    chan adapterMessage
	waiting map[string]chan error

	mx   sync.Mutex
	last machine.State

	done chan struct{}
	stop sync.Once
}

var _ machine.Adapter = &SPJSAdapter{}

type adapterMessage struct {
	spjs.JSON
	wait chan error
}

func NewSPJSAdapter(sp *spjs.SPJS, port string, baud int, poll time.Duration, logger *zap.SugaredLogger) *SPJSAdapter {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	adapter := &SPJSAdapter{
		sp:      sp,
		port:    port,
		baud:    baud,
		log:     logger,
		waiting: make(map[string]chan error, 100),
		cmds:    make(chan adapterMessage, 1000),
		done:    make(chan struct{}),
	}
	go adapter.loop()
	go adapter.pollLoop(poll)

	return adapter
}

// Close stops the adapter and the underlying SPJS connection.
func (adapter *SPJSAdapter) Close() error {
	adapter.stop.Do(func() { close(adapter.done) })
	return adapter.sp.Close()
}

func (adapter *SPJSAdapter) pollLoop(poll time.Duration) {
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		select {
		case <-adapter.done:
			return
		case <-t.C:
			// realtime commands bypass the SPJS queue
			if err := adapter.sp.WriteString("send " + adapter.port + " ?"); err != nil {
				adapter.log.Errorw("request status", "error", err)
			}
		}
	}
}

func (adapter *SPJSAdapter) CurrentState() machine.State {
	adapter.mx.Lock()
	defer adapter.mx.Unlock()
	return adapter.last
}

func (adapter *SPJSAdapter) handleData(data string) {
	data = strings.TrimSpace(data)
	if data == "" {
		return
	}
	switch data[0] {
	case '<':
		adapter.mx.Lock()
		stat, err := parseStatus(adapter.last, data, time.Now())
		if err == nil {
			adapter.last = *stat
		}
		adapter.mx.Unlock()
		if err != nil {
			adapter.log.Errorw("parse status", "line", data, "error", err)
		}
	case '[':
		kind, body, err := parseMessage(data)
		if err != nil {
			adapter.log.Errorw("parse message", "error", err)
			return
		}
		adapter.log.Debugw("controller message", "kind", kind, "body", body)
	}
}

func (adapter *SPJSAdapter) loop() {
	for {
		select {
		case <-adapter.done:
			for key, ch := range adapter.waiting {
				ch <- io.ErrClosedPipe
				delete(adapter.waiting, key)
			}
			return
		case resp := <-adapter.sp.Messages():
			switch msg := resp.(type) {
			case *spjs.DataFrame:
				adapter.handleData(msg.Data)
			case *spjs.CmdStatus:
				switch msg.Cmd {
				case "WipedQueue":
					for key, ch := range adapter.waiting {
						ch <- errors.New("wiped queue")
						delete(adapter.waiting, key)
					}
				case "Complete":
					if adapter.waiting[msg.ID] != nil {
						adapter.waiting[msg.ID] <- nil
						delete(adapter.waiting, msg.ID)
					}
				}
			case *spjs.ErrorMessage:
				adapter.log.Errorw("spjs error", "error", msg.Error)
			case *spjs.SerialPortList:
				for _, port := range msg.SerialPorts {
					if port.Name != adapter.port || port.IsOpen {
						continue
					}
					adapter.log.Infow("opening port", "port", adapter.port)
					err := adapter.sp.WriteString("open " + adapter.port + " " + strconv.Itoa(adapter.baud) + " grbl")
					if err != nil {
						adapter.log.Errorw("open port", "error", err)
					}
				}
			}
		case msg := <-adapter.cmds:
			if err := adapter.sp.SendJSON(msg.JSON); err != nil {
				msg.wait <- err
				continue
			}
			adapter.waiting[msg.Data[len(msg.Data)-1].ID] = msg.wait
		}
	}
}

// ReadFrom queues every line and returns once the last one completes.
func (adapter *SPJSAdapter) ReadFrom(r io.Reader) (n int64, err error) {
	scan := bufio.NewScanner(r)
	var waits []chan error
	for {
		var j spjs.JSON
		j.Port = adapter.port
		for scan.Scan() {
			n += int64(len(scan.Bytes()))
			j.Data = append(j.Data, spjs.Data{
				Data: strings.TrimSpace(scan.Text()) + "\n",
				ID:   nextID(),
			})
			if len(j.Data) == 100 {
				break
			}
		}
		if len(j.Data) == 0 {
			break
		}
		wait := make(chan error, 1)
		waits = append(waits, wait)
		select {
		case adapter.cmds <- adapterMessage{JSON: j, wait: wait}:
		case <-adapter.done:
			return n, io.ErrClosedPipe
		}
	}

	for _, wait := range waits {
		if e := <-wait; e != nil && err == nil {
			err = e
		}
	}
	return n, err
}

func (adapter *SPJSAdapter) WriteByte(b byte) error {
	return adapter.sp.WriteString("send " + adapter.port + " " + string(b))
}

func (adapter *SPJSAdapter) Write(p []byte) (int, error) {
	n, err := adapter.ReadFrom(bytes.NewReader(p))
	return int(n), err
}
