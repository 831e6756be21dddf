package gcode

import (
	"bytes"
	"io"
)

// Buffer streams blocks as newline terminated text, rendering a block only
// when the reader needs more bytes.
type Buffer struct {
	blocks []Block
	buf    bytes.Buffer
}

var _ io.Reader = &Buffer{}

func NewBuffer(blocks ...Block) *Buffer {
	return &Buffer{blocks: blocks}
}

func (b *Buffer) Read(p []byte) (int, error) {
	for len(b.blocks) > 0 && b.buf.Len() < len(p) {
		b.buf.WriteString(b.blocks[0].String())
		b.buf.WriteByte('\n')
		b.blocks = b.blocks[1:]
	}
	if b.buf.Len() == 0 {
		return 0, io.EOF
	}
	return b.buf.Read(p)
}
