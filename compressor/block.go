package compressor

import (
	"io"

	"github.com/jmgilman/go/archive/errors"
)

const (
	// DefaultBytesPerBlock is the default physical block size.
	DefaultBytesPerBlock = 10240

	// LastBlockFull pads the final block to a full block.
	LastBlockFull = -1
)

// BlockWriter re-blocks a byte stream into writes of exactly bytesPerBlock
// bytes to the client.
type BlockWriter struct {
	w                io.Writer
	bytesPerBlock    int
	bytesInLastBlock int

	buf []byte
	n   int

	written int64
	err     error
	closed  bool
}

// NewBlockWriter returns a BlockWriter. See the package documentation for
// the meaning of the block parameters.
func NewBlockWriter(w io.Writer, bytesPerBlock, bytesInLastBlock int) *BlockWriter {
	b := &BlockWriter{
		w:                w,
		bytesPerBlock:    bytesPerBlock,
		bytesInLastBlock: bytesInLastBlock,
	}
	if bytesPerBlock > 0 {
		b.buf = make([]byte, bytesPerBlock)
	}
	return b
}

// BytesPerBlock returns the configured block size.
func (b *BlockWriter) BytesPerBlock() int {
	return b.bytesPerBlock
}

// Written returns the number of bytes accepted by the client so far.
func (b *BlockWriter) Written() int64 {
	return b.written
}

// Write implements io.Writer. Bytes are buffered until a block fills.
func (b *BlockWriter) Write(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	if b.closed {
		return 0, errors.New(errors.CodeMisuse, "write after close")
	}
	if b.bytesPerBlock <= 0 {
		if err := b.writeAll(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	total := len(p)
	for len(p) > 0 {
		c := copy(b.buf[b.n:], p)
		b.n += c
		p = p[c:]
		if b.n == len(b.buf) {
			if err := b.flushOnce(); err != nil {
				return total - len(p), err
			}
		}
	}
	return total, nil
}

// clientWrite performs one client write and classifies the outcome.
// A count of zero or less is fatal regardless of the error.
func (b *BlockWriter) clientWrite(p []byte) (int, error) {
	n, err := b.w.Write(p)
	switch {
	case n <= 0:
		if err == nil {
			err = io.ErrShortWrite
		}
		b.err = errors.Wrap(err, errors.CodeIO, "client write failed")
		return 0, b.err
	case n > len(p):
		b.err = errors.New(errors.CodeIO, "client write returned invalid count")
		return 0, b.err
	case err != nil && err != io.ErrShortWrite:
		b.err = errors.Wrap(err, errors.CodeIO, "client write failed")
		return n, b.err
	}
	b.written += int64(n)
	return n, nil
}

// flushOnce writes the full buffer once. A short write moves the unwritten
// tail to the start of the buffer; it goes out with the next block.
func (b *BlockWriter) flushOnce() error {
	n, err := b.clientWrite(b.buf[:b.n])
	if err != nil {
		return err
	}
	copy(b.buf, b.buf[n:b.n])
	b.n -= n
	return nil
}

// writeAll writes p completely, retrying short writes.
func (b *BlockWriter) writeAll(p []byte) error {
	for len(p) > 0 {
		n, err := b.clientWrite(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// finalLength returns the padded length of a final block holding used bytes.
func (b *BlockWriter) finalLength(used int) int {
	unit := b.bytesPerBlock
	if b.bytesInLastBlock > 0 {
		unit = b.bytesInLastBlock
	}
	target := (used + unit - 1) / unit * unit
	return min(target, b.bytesPerBlock)
}

// Close pads and writes the final block. Nothing is written when the
// buffer is empty. Close does not close the client writer.
func (b *BlockWriter) Close() error {
	if b.closed {
		return b.err
	}
	b.closed = true
	if b.err != nil || b.bytesPerBlock <= 0 || b.n == 0 {
		return b.err
	}

	length := b.finalLength(b.n)
	clear(b.buf[b.n:length])
	b.n = 0
	return b.writeAll(b.buf[:length])
}
