package compressor

import (
	"io"

	"github.com/jmgilman/go/archive/errors"
)

// zeroChunk is the size of the zero buffer used for uncompressed padding.
const zeroChunk = 4096

type config struct {
	bytesPerBlock    int
	bytesInLastBlock int
	padUncompressed  bool
}

// Option configures a Writer.
type Option func(*config)

// WithBytesPerBlock sets the physical block size. Zero or less disables
// blocking.
func WithBytesPerBlock(n int) Option {
	return func(c *config) {
		c.bytesPerBlock = n
	}
}

// WithBytesInLastBlock sets the padding granularity of the final block.
func WithBytesInLastBlock(n int) Option {
	return func(c *config) {
		c.bytesInLastBlock = n
	}
}

// WithPadUncompressed pads the uncompressed stream to a whole number of
// blocks before compression finishes.
func WithPadUncompressed(pad bool) Option {
	return func(c *config) {
		c.padUncompressed = pad
	}
}

// Writer drives a Backend into a BlockWriter.
type Writer struct {
	backend Backend
	block   *BlockWriter
	cfg     config

	uncompressed int64
	err          error
	closed       bool
}

// NewWriter opens backend over a BlockWriter on w.
func NewWriter(w io.Writer, backend Backend, opts ...Option) (*Writer, error) {
	cfg := config{
		bytesPerBlock:    DefaultBytesPerBlock,
		bytesInLastBlock: LastBlockFull,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	block := NewBlockWriter(w, cfg.bytesPerBlock, cfg.bytesInLastBlock)
	if err := backend.Open(block); err != nil {
		return nil, backendError(backend.Name(), err)
	}
	return &Writer{backend: backend, block: block, cfg: cfg}, nil
}

// Name returns the backend name.
func (w *Writer) Name() string {
	return w.backend.Name()
}

// Write compresses p.
func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.closed {
		return 0, errors.New(errors.CodeMisuse, "write after close")
	}
	n, err := w.backend.Write(p)
	w.uncompressed += int64(n)
	if err != nil {
		w.err = backendError(w.backend.Name(), err)
		return n, w.err
	}
	return n, nil
}

// Uncompressed returns the number of bytes written to the Writer.
func (w *Writer) Uncompressed() int64 {
	return w.uncompressed
}

// Compressed returns the number of bytes delivered to the client so far.
func (w *Writer) Compressed() int64 {
	return w.block.Written()
}

// Close pads the uncompressed stream if configured, drains the backend
// and writes the final block.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	if w.err != nil {
		return w.err
	}

	if w.cfg.padUncompressed && w.cfg.bytesPerBlock > 0 {
		if err := w.padUncompressed(); err != nil {
			w.err = err
			return err
		}
	}
	if err := w.backend.Close(); err != nil {
		w.err = backendError(w.backend.Name(), err)
		return w.err
	}
	if err := w.block.Close(); err != nil {
		w.err = err
		return err
	}
	return nil
}

func (w *Writer) padUncompressed() error {
	bpb := int64(w.cfg.bytesPerBlock)
	pad := (bpb - w.uncompressed%bpb) % bpb
	zeros := make([]byte, min(pad, zeroChunk))
	for pad > 0 {
		chunk := zeros[:min(pad, int64(len(zeros)))]
		n, err := w.backend.Write(chunk)
		w.uncompressed += int64(n)
		if err != nil {
			return backendError(w.backend.Name(), err)
		}
		pad -= int64(n)
	}
	return nil
}
