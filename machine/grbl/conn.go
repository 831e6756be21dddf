package grbl

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
)

// bufferSize is the Grbl serial receive buffer.
const bufferSize = 128

// ErrGrblReset will be returned from write methods if a reset is encountered
// before all commands are run.
var ErrGrblReset = errors.New("grbl reset")

// Conn represents a direct connection to a Grbl controller.
type Conn struct {
	rw io.ReadWriter

	readBuf []byte
	scan    *bufio.Scanner
	ackCh   chan error
	resetCh chan struct{}
	closeCh chan struct{}
	close   sync.Once

	mx  sync.Mutex
	wMx sync.Mutex

	deviceBuf int
	lineSize  []int

	wroteLines int64
	readLines  int64
}

// NewConn creates a new Conn using the provided ReadWriter for data.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		scan:    bufio.NewScanner(rw),
		rw:      rw,
		ackCh:   make(chan error),
		resetCh: make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
}

// Close will abort any in-progress writes and close the
// underlying ReadWriter, if it implements io.Closer.
func (c *Conn) Close() (err error) {
	c.close.Do(func() {
		close(c.closeCh)
		if closer, ok := c.rw.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}

func (c *Conn) closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

func (c *Conn) recordBufferSpace(n int) int64 {
	c.deviceBuf += n
	c.wroteLines++
	c.lineSize = append(c.lineSize, n)
	return c.wroteLines
}

func (c *Conn) waitForBufferSpace(n int) error {
	for c.deviceBuf+n > bufferSize && len(c.lineSize) > 0 {
		err := c.next()
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *Conn) reset() error {
	c.deviceBuf = 0
	c.lineSize = nil
	c.readLines = c.wroteLines
	return ErrGrblReset
}

func (c *Conn) next() error {
	if c.closed() {
		return io.ErrClosedPipe
	}

	select {
	case <-c.resetCh:
		return c.reset()
	default:
	}

	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	case <-c.resetCh:
		return c.reset()
	case e := <-c.ackCh:
		c.readLines++
		c.deviceBuf -= c.lineSize[0]
		c.lineSize = c.lineSize[1:]
		return e
	}
}

func (c *Conn) waitForLine(id int64) (err error) {
	for c.readLines < id {
		e := c.next()
		if err == nil {
			err = e
		}
		if e == ErrGrblReset || e == io.ErrClosedPipe {
			return e
		}
	}
	return err
}

// writeLine will block until line has been written to the serial device in full.
//
// It returns the line index.
func (c *Conn) writeLine(line []byte) (id int64, err error) {
	err = c.waitForBufferSpace(len(line))
	if err != nil {
		return 0, err
	}
	c.mx.Lock()
	_, err = c.rw.Write(line)
	c.mx.Unlock()
	if err != nil {
		return 0, err
	}
	id = c.recordBufferSpace(len(line))
	return id, nil
}

func splitLinesKeepN(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		return len(data), append(data, '\n'), nil
	}
	return 0, nil, nil
}

// ReadFrom returns after all lines have been sent and acknowledged.
func (c *Conn) ReadFrom(r io.Reader) (n int64, err error) {
	c.wMx.Lock()
	defer c.wMx.Unlock()
	return c.readFrom(r)
}

func (c *Conn) readFrom(r io.Reader) (n int64, err error) {
	if c.closed() {
		return 0, io.ErrClosedPipe
	}

	scanner := bufio.NewScanner(r)
	scanner.Split(splitLinesKeepN)

	lastID := c.wroteLines
	for scanner.Scan() {
		lastID, err = c.writeLine(scanner.Bytes())
		if err != nil {
			return n, err
		}
		n += int64(len(scanner.Bytes()))
	}
	if err = scanner.Err(); err != nil {
		return n, err
	}

	return n, c.waitForLine(lastID)
}

// Write will return after all lines have been sent and acknowledged.
func (c *Conn) Write(p []byte) (int, error) {
	c.wMx.Lock()
	defer c.wMx.Unlock()

	n, err := c.readFrom(bytes.NewReader(p))
	return int(n), err
}

// WriteByte will write directly to the serial device without
// accounting for buffering.
//
// Use for realtime commands like `?`.
func (c *Conn) WriteByte(p byte) (err error) {
	if c.closed() {
		return io.ErrClosedPipe
	}
	c.mx.Lock()
	_, err = c.rw.Write([]byte{p})
	c.mx.Unlock()
	return err
}

// Read will read the next line from the device.
func (c *Conn) Read(p []byte) (n int, err error) {
	if c.closed() {
		return 0, io.ErrClosedPipe
	}

	if c.readBuf != nil {
		if len(p) < len(c.readBuf) {
			return 0, io.ErrShortBuffer
		}
		n = copy(p, c.readBuf)
		c.readBuf = nil
		return n, nil
	}
	if !c.scan.Scan() {
		if err = c.scan.Err(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	data := c.scan.Bytes()

	if bytes.Equal(data, []byte("ok")) {
		select {
		case c.ackCh <- nil:
		case <-c.closeCh:
			return n, io.ErrClosedPipe
		}
	} else if bytes.HasPrefix(data, []byte("error:")) {
		select {
		case c.ackCh <- errors.New(strings.TrimSpace(string(data))):
		case <-c.closeCh:
			return n, io.ErrClosedPipe
		}
	} else if bytes.HasPrefix(data, []byte("Grbl")) {
		select {
		case c.resetCh <- struct{}{}:
		default:
		}
	}

	if len(p) < len(data) {
		c.readBuf = append([]byte(nil), data...)
		return 0, io.ErrShortBuffer
	}

	return copy(p, data), nil
}
