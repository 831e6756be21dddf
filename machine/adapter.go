package machine

import "io"

// An Adapter represents the minimal motion controller interface.
type Adapter interface {
	// CurrentState returns the last status report received.
	CurrentState() State

	WriteByte(byte) error
	Write([]byte) (int, error)
	ReadFrom(io.Reader) (int64, error)
}
