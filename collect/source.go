package collect

import (
	"context"
	"io"
	"os"
)

// Stream is a running log producer. Close must stop the producer and wait
// for it to exit.
type Stream interface {
	io.Reader
	Close() error
}

// Source produces device log streams.
type Source interface {
	// Clear discards any buffered log output on the device.
	Clear(ctx context.Context) error
	Open(ctx context.Context) (Stream, error)
}

// FileSource replays a previously captured log file.
type FileSource struct {
	Path string
}

func (FileSource) Clear(context.Context) error { return nil }

func (f FileSource) Open(context.Context) (Stream, error) {
	return os.Open(f.Path)
}
