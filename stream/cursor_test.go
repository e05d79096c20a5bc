package stream

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/jmgilman/go/archive/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_PeekConsume(t *testing.T) {
	c := NewCursor(strings.NewReader("hello world"), WithBlockSize(4))

	p, err := c.Peek(5)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(p), 5)
	assert.Equal(t, "hello", string(p[:5]))

	// Peek does not advance.
	p, err = c.Peek(1)
	require.NoError(t, err)
	assert.Equal(t, byte('h'), p[0])

	require.NoError(t, c.Consume(6))
	assert.Equal(t, int64(6), c.Position())

	p, err = c.Peek(5)
	require.NoError(t, err)
	assert.Equal(t, "world", string(p[:5]))
}

func TestCursor_PeekShortAtEOF(t *testing.T) {
	c := NewCursor(strings.NewReader("abc"))

	p, err := c.Peek(10)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "abc", string(p))

	require.NoError(t, c.Consume(3))
	p, err = c.Peek(1)
	assert.ErrorIs(t, err, io.EOF)
	assert.Empty(t, p)
}

func TestCursor_PeekLargerThanBlock(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 100)
	c := NewCursor(iotest.OneByteReader(bytes.NewReader(data)), WithBlockSize(7))

	p, err := c.Peek(len(data))
	require.NoError(t, err)
	assert.Equal(t, data, p[:len(data)])
}

func TestCursor_ConsumeBeyondBuffer(t *testing.T) {
	c := NewCursor(strings.NewReader("abc"))
	_, err := c.Peek(1)
	require.NoError(t, err)

	err = c.Consume(100)
	require.Error(t, err)
	assert.Equal(t, errors.CodeMisuse, errors.GetCode(err))
}

func TestCursor_Skip(t *testing.T) {
	tests := []struct {
		name string
		src  func(data []byte) io.Reader
	}{
		{"seeker", func(d []byte) io.Reader { return bytes.NewReader(d) }},
		{"plain", func(d []byte) io.Reader { return iotest.HalfReader(bytes.NewReader(d)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := []byte(strings.Repeat("x", 1000) + "tail")
			c := NewCursor(tt.src(data), WithBlockSize(16))

			_, err := c.Peek(4)
			require.NoError(t, err)

			n, err := c.Skip(1000)
			require.NoError(t, err)
			assert.Equal(t, int64(1000), n)
			assert.Equal(t, int64(1000), c.Position())

			p, err := c.Peek(4)
			require.NoError(t, err)
			assert.Equal(t, "tail", string(p[:4]))

			n, err = c.Skip(100)
			require.NoError(t, err)
			assert.Equal(t, int64(4), n)

			_, err = c.Peek(1)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

type skipReader struct {
	io.Reader
	skipped int64
}

func (s *skipReader) Skip(n int64) (int64, error) {
	s.skipped += n
	return io.CopyN(io.Discard, s.Reader, n)
}

func TestCursor_SkipUsesSkipper(t *testing.T) {
	src := &skipReader{Reader: strings.NewReader(strings.Repeat("a", 500) + "b")}
	c := NewCursor(src)

	n, err := c.Skip(500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), n)
	assert.Equal(t, int64(500), src.skipped)

	b, err := c.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('b'), b)
}

func TestCursor_ReadAndReadByte(t *testing.T) {
	c := NewCursor(strings.NewReader("abcdef"), WithBlockSize(2))

	b, err := c.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('a'), b)

	rest, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, "bcdef", string(rest))
	assert.Equal(t, int64(6), c.Position())

	_, err = c.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCursor_FatalIsSticky(t *testing.T) {
	boom := io.ErrClosedPipe
	c := NewCursor(iotest.ErrReader(boom))

	_, err := c.Peek(1)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, boom)

	_, err2 := c.Peek(1)
	assert.Equal(t, err, err2)
	assert.Equal(t, err, c.Consume(0))
	_, err2 = c.Skip(1)
	assert.Equal(t, err, err2)
}

func TestCursor_UnexpectedEOFIsTruncated(t *testing.T) {
	c := NewCursor(iotest.ErrReader(io.ErrUnexpectedEOF))

	_, err := c.Peek(1)
	require.Error(t, err)
	assert.Equal(t, errors.CodeTruncated, errors.GetCode(err))
	assert.True(t, errors.IsFatal(err))
}

type closeRecorder struct{ closed int }

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestCursor_Close(t *testing.T) {
	rec := &closeRecorder{}
	c := NewCursor(strings.NewReader("abc"), WithCloser(rec))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, rec.closed)

	_, err := c.Peek(1)
	assert.Error(t, err)
}
