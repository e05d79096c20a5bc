package format

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/stream"
)

type fakeReader struct {
	name string
	bid  int
	err  error
}

func (f *fakeReader) Name() string { return f.name }

func (f *fakeReader) Bid(*stream.Cursor) (int, error) { return f.bid, f.err }

func (f *fakeReader) ReadHeader(*stream.Cursor, *entry.Entry) error { return io.EOF }

func (f *fakeReader) ReadData(*stream.Cursor) ([]byte, error) { return nil, io.EOF }

func (f *fakeReader) SkipData(*stream.Cursor) error { return nil }

func (f *fakeReader) Close() error { return nil }

func cursor(s string) *stream.Cursor {
	return stream.NewCursor(bytes.NewReader([]byte(s)))
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		readers []Reader
		want    string
	}{
		{
			name:    "highest bid wins",
			readers: []Reader{&fakeReader{name: "a", bid: 10}, &fakeReader{name: "b", bid: 30}},
			want:    "b",
		},
		{
			name:    "first reader wins ties",
			readers: []Reader{&fakeReader{name: "a", bid: 30}, &fakeReader{name: "b", bid: 30}},
			want:    "a",
		},
		{
			name:    "negative bids are ignored",
			readers: []Reader{&fakeReader{name: "a", bid: -1}, &fakeReader{name: "b", bid: 1}},
			want:    "b",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Select(context.Background(), cursor("data"), tt.readers, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Name())
		})
	}
}

func TestSelectUnrecognized(t *testing.T) {
	_, err := Select(context.Background(), cursor("data"),
		[]Reader{&fakeReader{name: "a"}, &fakeReader{name: "b", bid: -5}}, nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnrecognized, errors.GetCode(err))
	assert.True(t, errors.IsFatal(err))
	assert.Contains(t, err.Error(), "Unrecognized archive format")
}

func TestSelectBidError(t *testing.T) {
	_, err := Select(context.Background(), cursor("data"),
		[]Reader{&fakeReader{name: "a", err: io.ErrClosedPipe}}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestReadFull(t *testing.T) {
	c := cursor("headerbody")
	p, err := ReadFull(c, 6, "header")
	require.NoError(t, err)
	assert.Equal(t, "header", string(p))

	_, err = ReadFull(c, 10, "body")
	require.Error(t, err)
	assert.Equal(t, errors.CodeTruncated, errors.GetCode(err))
	assert.Contains(t, err.Error(), "truncated body")
}

func TestSkipFull(t *testing.T) {
	c := cursor("0123456789")
	require.NoError(t, SkipFull(c, 4, "pad"))
	p, err := Peek(c, 2)
	require.NoError(t, err)
	assert.Equal(t, "45", string(p[:2]))

	err = SkipFull(c, 100, "pad")
	require.Error(t, err)
	assert.Equal(t, errors.CodeTruncated, errors.GetCode(err))
}

func TestCodes(t *testing.T) {
	for _, code := range []Code{Zip, CpioODC, CpioNewc, ArBSD, ArGNU, Mtree, Shar, SharDump, Raw} {
		got, err := ParseCode(code.String())
		require.NoError(t, err)
		assert.Equal(t, code, got)
	}
	_, err := ParseCode("tar")
	assert.Error(t, err)
	assert.Equal(t, "unknown", Unknown.String())
}
