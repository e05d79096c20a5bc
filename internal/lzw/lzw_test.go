package lzw

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/jmgilman/go/archive/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compress(t *testing.T, data []byte, maxBits int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, maxBits)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	random := make([]byte, 200000)
	rng.Read(random)

	text := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 5000)

	tests := []struct {
		name    string
		data    []byte
		maxBits int
	}{
		{"empty", nil, 16},
		{"single byte", []byte("a"), 16},
		{"kwkwk", []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), 16},
		{"text", text, 16},
		{"text narrow", text, 9},
		{"text 12 bits", text, 12},
		{"random", random, 16},
		{"random dictionary full", random, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := compress(t, tt.data, tt.maxBits)
			require.Equal(t, []byte{0x1f, 0x9d, byte(tt.maxBits) | BlockModeFlag}, z[:3])

			r, err := NewReader(bytes.NewReader(z))
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, len(tt.data), len(got))
			assert.True(t, bytes.Equal(tt.data, got))
		})
	}
}

func TestCompressesRepetitiveInput(t *testing.T) {
	data := bytes.Repeat([]byte("abcabcabc"), 10000)
	z := compress(t, data, 16)
	assert.Less(t, len(z), len(data)/10)
}

func TestReader_ClearCode(t *testing.T) {
	// "ab", clear, "c" at 9 bits. After the clear the decoder skips to the
	// end of the 9-byte code group.
	var bits uint64
	var n int
	put := func(code uint64) {
		bits |= code << n
		n += 9
	}
	put('a')
	put('b')
	put(clearCode)

	stream := []byte{0x1f, 0x9d, 16 | BlockModeFlag}
	group := make([]byte, 9)
	for i := range group {
		group[i] = byte(bits >> (8 * i))
	}
	stream = append(stream, group...)
	stream = append(stream, 'c', 0)

	r, err := NewReader(bytes.NewReader(stream))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestCheckHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  []byte
		bits    int
		block   bool
		wantErr bool
	}{
		{"default", []byte{0x1f, 0x9d, 0x90}, 16, true, false},
		{"no block mode", []byte{0x1f, 0x9d, 0x0c}, 12, false, false},
		{"bad magic", []byte{0x1f, 0x8b, 0x90}, 0, false, true},
		{"reserved bits", []byte{0x1f, 0x9d, 0xf0}, 0, false, true},
		{"too wide", []byte{0x1f, 0x9d, 0x91}, 0, false, true},
		{"too narrow", []byte{0x1f, 0x9d, 0x88}, 0, false, true},
		{"short", []byte{0x1f}, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bits, block, err := CheckHeader(tt.header)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bits, bits)
			assert.Equal(t, tt.block, block)
		})
	}
}

func TestReader_InvalidCode(t *testing.T) {
	// First code 300 refers to a dictionary entry that does not exist.
	code := uint16(300)
	stream := []byte{0x1f, 0x9d, 0x90, byte(code), byte(code >> 8)}

	r, err := NewReader(bytes.NewReader(stream))
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	require.Error(t, err)
	assert.Equal(t, errors.CodeMalformed, errors.GetCode(err))
}

func TestNewWriter_InvalidWidth(t *testing.T) {
	_, err := NewWriter(io.Discard, 17)
	require.Error(t, err)
}
