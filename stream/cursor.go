package stream

import (
	"io"

	"github.com/jmgilman/go/archive/errors"
)

// DefaultBlockSize is the size of a single read from the underlying reader.
const DefaultBlockSize = 64 * 1024

// maxConsecutiveEmptyReads bounds reads that return neither data nor error.
const maxConsecutiveEmptyReads = 100

// Skipper is implemented by readers that can advance without reading.
// Skip returns the number of bytes actually skipped, which is less than n
// only at end of stream.
type Skipper interface {
	Skip(n int64) (int64, error)
}

// Option configures a Cursor.
type Option func(*Cursor)

// WithBlockSize sets how many bytes are requested from the underlying reader
// at a time.
func WithBlockSize(n int) Option {
	return func(c *Cursor) {
		if n > 0 {
			c.blockSize = n
		}
	}
}

// WithCloser makes Close release cl. Filter cursors use this to own the
// filter beneath them.
func WithCloser(cl io.Closer) Option {
	return func(c *Cursor) {
		c.closer = cl
	}
}

// Cursor is a read-ahead buffer over an io.Reader.
// It is not safe for concurrent use.
type Cursor struct {
	src       io.Reader
	closer    io.Closer
	blockSize int

	buf  []byte
	r, w int

	pos    int64
	eof    bool
	err    error
	closed bool
}

// NewCursor returns a cursor reading from src. The cursor does not close
// src unless WithCloser is given.
func NewCursor(src io.Reader, opts ...Option) *Cursor {
	c := &Cursor{
		src:       src,
		blockSize: DefaultBlockSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Peek returns the buffered bytes starting at the current position,
// reading from the underlying reader until at least n bytes are buffered.
// The returned slice may be longer than n and is valid until the next
// call that reads or consumes.
//
// At end of stream with fewer than n bytes left it returns the bytes
// that remain (possibly none) together with io.EOF. Any other error is
// fatal for the cursor.
func (c *Cursor) Peek(n int) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	for c.w-c.r < n && !c.eof {
		if err := c.fill(); err != nil {
			return nil, err
		}
	}
	if c.w-c.r < n {
		return c.buf[c.r:c.w], io.EOF
	}
	return c.buf[c.r:c.w], nil
}

// fill reads once from the underlying reader, compacting or growing the
// buffer so that at least one block fits.
func (c *Cursor) fill() error {
	if c.r > 0 && len(c.buf)-c.w < c.blockSize {
		copy(c.buf, c.buf[c.r:c.w])
		c.w -= c.r
		c.r = 0
	}
	if len(c.buf)-c.w < c.blockSize {
		grown := make([]byte, c.w+c.blockSize)
		copy(grown, c.buf[:c.w])
		c.buf = grown
	}

	for i := 0; i < maxConsecutiveEmptyReads; i++ {
		n, err := c.src.Read(c.buf[c.w:])
		if n < 0 || n > len(c.buf)-c.w {
			return c.fail(errors.New(errors.CodeIO, "reader returned invalid count"))
		}
		c.w += n
		if err == io.EOF {
			c.eof = true
			return nil
		}
		if err != nil {
			return c.fail(err)
		}
		if n > 0 {
			return nil
		}
	}
	return c.fail(io.ErrNoProgress)
}

// fail records err as the sticky fatal error.
func (c *Cursor) fail(err error) error {
	var archiveErr errors.ArchiveError
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		c.err = errors.Wrap(err, errors.CodeTruncated, "truncated input")
	case !errors.As(err, &archiveErr):
		c.err = errors.Wrap(err, errors.CodeIO, "read failed")
	case archiveErr.Severity() != errors.SeverityFatal:
		c.err = errors.WithSeverity(err, errors.SeverityFatal)
	default:
		c.err = err
	}
	return c.err
}

// Consume advances past n bytes returned by the most recent Peek.
func (c *Cursor) Consume(n int) error {
	if c.err != nil {
		return c.err
	}
	if n < 0 || n > c.w-c.r {
		return errors.Newf(errors.CodeMisuse, "consume of %d bytes exceeds %d buffered", n, c.w-c.r)
	}
	c.r += n
	c.pos += int64(n)
	return nil
}

// Skip advances n bytes and returns how many were skipped. The count is
// less than n only when the stream ended first, in which case the error is
// nil; the next Peek reports io.EOF.
func (c *Cursor) Skip(n int64) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if n <= 0 {
		return 0, nil
	}

	buffered := int64(c.w - c.r)
	if n <= buffered {
		c.r += int(n)
		c.pos += n
		return n, nil
	}
	c.r, c.w = 0, 0
	c.pos += buffered
	skipped := buffered
	if c.eof {
		return skipped, nil
	}

	rest, err := c.skipSource(n - buffered)
	skipped += rest
	c.pos += rest
	if err != nil {
		return skipped, c.fail(err)
	}
	if skipped < n {
		c.eof = true
	}
	return skipped, nil
}

// skipSource skips n bytes in the underlying reader.
func (c *Cursor) skipSource(n int64) (int64, error) {
	if s, ok := c.src.(Skipper); ok {
		skipped, err := s.Skip(n)
		if err == io.EOF {
			err = nil
		}
		return skipped, err
	}

	if s, ok := c.src.(io.Seeker); ok {
		if skipped, ok := seekSkip(s, n); ok {
			return skipped, nil
		}
	}

	skipped, err := io.CopyN(io.Discard, c.src, n)
	if err == io.EOF {
		err = nil
	}
	return skipped, err
}

// seekSkip seeks forward at most n bytes, never past the end.
// ok is false when the reader cannot seek.
func seekSkip(s io.Seeker, n int64) (int64, bool) {
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, false
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, false
	}
	target := min(cur+n, end)
	if target < cur {
		target = cur
	}
	if _, err := s.Seek(target, io.SeekStart); err != nil {
		return 0, false
	}
	return target - cur, true
}

// Read implements io.Reader over the unconsumed bytes.
func (c *Cursor) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if c.r == c.w {
		if c.eof {
			return 0, io.EOF
		}
		if len(p) >= c.blockSize {
			n, err := c.src.Read(p)
			c.pos += int64(n)
			if err == io.EOF {
				c.eof = true
				if n > 0 {
					err = nil
				}
				return n, err
			}
			if err != nil {
				return n, c.fail(err)
			}
			return n, nil
		}
		if _, err := c.Peek(1); err != nil && err != io.EOF {
			return 0, err
		}
		if c.r == c.w {
			return 0, io.EOF
		}
	}
	n := copy(p, c.buf[c.r:c.w])
	c.r += n
	c.pos += int64(n)
	return n, nil
}

// ReadByte implements io.ByteReader. Decompressors that see an
// io.ByteReader read exactly what they need, leaving the rest of the
// stream in the cursor.
func (c *Cursor) ReadByte() (byte, error) {
	if c.r == c.w {
		if _, err := c.Peek(1); err != nil {
			return 0, err
		}
	}
	b := c.buf[c.r]
	c.r++
	c.pos++
	return b, nil
}

// Position returns the number of bytes consumed since the cursor was created.
func (c *Cursor) Position() int64 {
	return c.pos
}

// Err returns the sticky fatal error, or nil.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the owned closer, if any. Further reads fail.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.err == nil {
		c.err = errors.New(errors.CodeMisuse, "cursor is closed")
	}
	c.buf = nil
	c.r, c.w = 0, 0
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
