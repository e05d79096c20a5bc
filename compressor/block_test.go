package compressor

import (
	"bytes"
	"io"
	"testing"

	"github.com/jmgilman/go/archive/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingWriter records the size of every client write.
type recordingWriter struct {
	bytes.Buffer
	writes []int
	limit  int
}

func (r *recordingWriter) Write(p []byte) (int, error) {
	if r.limit > 0 && len(p) > r.limit {
		p = p[:r.limit]
	}
	r.writes = append(r.writes, len(p))
	return r.Buffer.Write(p)
}

func TestBlockWriter_Padding(t *testing.T) {
	tests := []struct {
		name       string
		bpb        int
		last       int
		length     int
		wantLast   int
		wantOutput int
		wantWrites int
	}{
		{"full last block", 512, LastBlockFull, 700, 512, 1024, 2},
		{"zero pads to full block", 512, 0, 700, 512, 1024, 2},
		{"granularity", 10240, 512, 700, 1024, 1024, 1},
		{"granularity one", 10240, 1, 700, 700, 700, 1},
		{"granularity capped", 1000, 768, 1800, 1000, 2000, 2},
		{"exact multiple", 512, LastBlockFull, 1024, 512, 1024, 2},
		{"empty", 512, LastBlockFull, 0, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &recordingWriter{}
			bw := NewBlockWriter(out, tt.bpb, tt.last)

			data := bytes.Repeat([]byte{0xaa}, tt.length)
			n, err := bw.Write(data)
			require.NoError(t, err)
			require.Equal(t, tt.length, n)
			require.NoError(t, bw.Close())

			require.Len(t, out.writes, tt.wantWrites)
			assert.Equal(t, tt.wantOutput, out.Len())
			if tt.wantWrites > 0 {
				assert.Equal(t, tt.wantLast, out.writes[len(out.writes)-1])
				for _, w := range out.writes[:len(out.writes)-1] {
					assert.Equal(t, tt.bpb, w)
				}
			}
			assert.Equal(t, data, out.Bytes()[:tt.length])
			assert.Equal(t, make([]byte, tt.wantOutput-tt.length), out.Bytes()[tt.length:])
			assert.Equal(t, int64(tt.wantOutput), bw.Written())
		})
	}
}

func TestBlockWriter_PaddingProperty(t *testing.T) {
	for _, bpb := range []int{1, 7, 512, 10240} {
		for _, last := range []int{-1, 0, 1, 3, 512} {
			for _, length := range []int{1, 6, 511, 512, 513, 20000} {
				out := &recordingWriter{}
				bw := NewBlockWriter(out, bpb, last)
				_, err := bw.Write(make([]byte, length))
				require.NoError(t, err)
				require.NoError(t, bw.Close())

				final := out.writes[len(out.writes)-1]
				if last <= 0 {
					assert.Equal(t, bpb, final)
				} else {
					assert.True(t, final == bpb || final%last == 0,
						"bpb=%d last=%d length=%d final=%d", bpb, last, length, final)
				}
				assert.GreaterOrEqual(t, out.Len(), length)
			}
		}
	}
}

func TestBlockWriter_Unbuffered(t *testing.T) {
	out := &recordingWriter{}
	bw := NewBlockWriter(out, 0, LastBlockFull)

	_, err := bw.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = bw.Write([]byte("de"))
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	assert.Equal(t, []int{3, 2}, out.writes)
	assert.Equal(t, "abcde", out.String())
}

func TestBlockWriter_ShortWritesKeepTail(t *testing.T) {
	out := &recordingWriter{limit: 300}
	bw := NewBlockWriter(out, 512, 1)

	data := make([]byte, 2000)
	for i := range data {
		data[i] = byte(i)
	}
	_, err := bw.Write(data)
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	assert.Equal(t, data, out.Bytes())
	for _, w := range out.writes {
		assert.LessOrEqual(t, w, 300)
	}
}

type failingWriter struct {
	n   int
	err error
}

func (f *failingWriter) Write(p []byte) (int, error) {
	return f.n, f.err
}

func TestBlockWriter_ZeroWriteIsFatal(t *testing.T) {
	tests := []struct {
		name string
		w    io.Writer
	}{
		{"zero without error", &failingWriter{}},
		{"error", &failingWriter{err: io.ErrClosedPipe}},
		{"partial with hard error", &failingWriter{n: 10, err: io.ErrClosedPipe}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bw := NewBlockWriter(tt.w, 16, LastBlockFull)
			_, err := bw.Write(make([]byte, 64))
			require.Error(t, err)
			assert.True(t, errors.IsFatal(err))

			_, err2 := bw.Write([]byte{1})
			assert.Equal(t, err, err2)
			assert.Equal(t, err, bw.Close())
		})
	}
}

func TestBlockWriter_FinalWriteFailureIsFatal(t *testing.T) {
	bw := NewBlockWriter(&failingWriter{}, 512, LastBlockFull)
	_, err := bw.Write([]byte("short"))
	require.NoError(t, err)

	err = bw.Close()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}
