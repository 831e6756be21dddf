// Package spjs talks to a serial-port-json-server over its websocket API,
// for rigs where the motion controller is attached to another host.
package spjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ReconnectDelay is the pause between failed dial attempts.
var ReconnectDelay = 3 * time.Second

type SPJS struct {
	url string
	log *zap.SugaredLogger

	outgoing  chan message
	incomming chan interface{}
	done      chan struct{}
	stop      sync.Once
}

type message struct {
	done    chan struct{}
	payload []byte
}

type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	ID         string `json:"Id"`

	// Data is a string or a list depending on Cmd.
	Data json.RawMessage `json:"D"`
}

type ErrorMessage struct {
	Error string
}
type SerialPortList struct {
	SerialPorts []SerialPort
}
type SerialPort struct {
	Name         string
	Friendly     string
	SerialNumber string
	IsOpen       bool
	Baud         int
}

func NewSPJS(url string, logger *zap.SugaredLogger) *SPJS {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	sp := &SPJS{
		url:       url,
		log:       logger.With("spjs", url),
		outgoing:  make(chan message, 1000),
		incomming: make(chan interface{}, 1000),
		done:      make(chan struct{}),
	}

	go sp.loop()

	return sp
}

func (sp *SPJS) Messages() chan interface{} {
	return sp.incomming
}

// Close stops reconnecting and drops the websocket.
func (sp *SPJS) Close() error {
	sp.stop.Do(func() { close(sp.done) })
	return nil
}

func parseSPJSMessage(data []byte, msg map[string]json.RawMessage) (val interface{}, err error) {
	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	if check("Error", &ErrorMessage{}) {
		return
	}
	if check("SerialPorts", &SerialPortList{}) {
		return
	}
	if check("Cmd", &CmdStatus{}) {
		return
	}
	if check("D", &DataFrame{}) {
		return
	}

	return nil, errors.New("unknown message: " + string(data))
}

func (sp *SPJS) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			sp.log.Errorw("read", "error", err)
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// ignore echo messages
			continue
		}
		var msg map[string]json.RawMessage
		err = json.Unmarshal(data, &msg)
		if err != nil {
			sp.log.Errorw("decode", "error", err)
			continue
		}
		val, err := parseSPJSMessage(data, msg)
		if err != nil {
			sp.log.Debugw("parse", "error", err)
			continue
		}
		select {
		case sp.incomming <- val:
		case <-sp.done:
			return
		}
	}
}

func (sp *SPJS) loop() {
	var nextUp message

reconnect:
	for {
		select {
		case <-sp.done:
			return
		default:
		}
		sp.log.Info("connecting")
		ws, _, err := websocket.DefaultDialer.Dial(sp.url, nil)
		if err != nil {
			sp.log.Errorw("connect", "error", err)
			select {
			case <-sp.done:
				return
			case <-time.After(ReconnectDelay):
			}
			continue
		}
		sp.log.Info("connected")
		ch := make(chan struct{})
		go sp.readLoop(ws, ch)
		go sp.WriteString("list") // refresh list on reconnect

		for {
			if nextUp.done != nil {
				err = ws.WriteMessage(websocket.TextMessage, nextUp.payload)
				if err != nil {
					sp.log.Errorw("send", "error", err)
					ws.Close()
					continue reconnect
				}
				close(nextUp.done)
				nextUp.done = nil
			}

			select {
			case <-sp.done:
				ws.Close()
				return
			case <-ch:
				ws.Close()
				continue reconnect
			case nextUp = <-sp.outgoing:
			}
		}
	}
}

type JSON struct {
	Port string `json:"P"`
	Data []Data
}
type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

func (sp *SPJS) SendJSON(v JSON) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sp.send(append([]byte("sendjson "), data...))
}

func (sp *SPJS) WriteString(data string) error {
	return sp.send([]byte(data))
}

func (sp *SPJS) send(payload []byte) error {
	ch := make(chan struct{})
	select {
	case sp.outgoing <- message{done: ch, payload: payload}:
	case <-sp.done:
		return errors.New("spjs closed")
	}
	select {
	case <-ch:
		return nil
	case <-sp.done:
		return errors.New("spjs closed")
	}
}
