package raw

import (
	"io"

	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/stream"
)

// EntryName is the pathname of the single raw entry.
const EntryName = "data"

// Reader exposes the stream as one entry.
type Reader struct {
	returned bool
	done     bool
}

// NewReader returns a raw reader.
func NewReader() *Reader {
	return &Reader{}
}

func (r *Reader) Name() string {
	return "raw"
}

// Bid accepts anything with the lowest positive bid so that every other
// format wins when it recognizes the stream.
func (r *Reader) Bid(*stream.Cursor) (int, error) {
	return 1, nil
}

func (r *Reader) ReadHeader(_ *stream.Cursor, e *entry.Entry) error {
	if r.returned {
		return io.EOF
	}
	r.returned = true
	e.Clear()
	e.SetPathname(EntryName)
	e.SetMode(entry.TypeReg | 0o644)
	return nil
}

// ReadData hands out whatever the cursor has buffered.
func (r *Reader) ReadData(c *stream.Cursor) ([]byte, error) {
	if r.done {
		return nil, io.EOF
	}
	p, err := c.Peek(1)
	if err != nil && err != io.EOF {
		return nil, errors.WithSeverity(errors.Wrap(err, errors.CodeIO, "raw: read failed"), errors.SeverityFatal)
	}
	if len(p) == 0 {
		r.done = true
		return nil, io.EOF
	}
	if err := c.Consume(len(p)); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Reader) SkipData(c *stream.Cursor) error {
	for {
		_, err := r.ReadData(c)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (r *Reader) Close() error {
	return nil
}
