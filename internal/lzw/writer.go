package lzw

import (
	"io"

	"github.com/jmgilman/go/archive/errors"
)

// DefaultMaxBits is the widest code compress(1) emits by default.
const DefaultMaxBits = 16

const outBufferSize = 4096

// Writer compresses to a .Z stream.
//
// The encoder tracks the code width the decoder will use for every code it
// emits, so codes never straddle a width change and no group padding is
// needed. It never emits clear codes; the dictionary stops growing once it
// is full.
type Writer struct {
	dst io.Writer

	maxBits int
	maxCode int

	dict    map[uint32]int
	freeEnt int
	prefix  int

	// Decoder mirror.
	bits       int
	sectionEnd int
	decFree    int
	decStarted bool

	bitBuf  uint64
	bitUsed int
	out     []byte

	headerDone bool
	closed     bool
	err        error
}

// NewWriter returns a compressor writing to w with codes up to maxBits wide.
func NewWriter(w io.Writer, maxBits int) (*Writer, error) {
	if maxBits < 9 || maxBits > 16 {
		return nil, errors.Newf(errors.CodeInvalidConfig, "invalid compress code width %d", maxBits)
	}
	return &Writer{
		dst:        w,
		maxBits:    maxBits,
		maxCode:    1 << maxBits,
		dict:       make(map[uint32]int),
		freeEnt:    257,
		prefix:     -1,
		bits:       9,
		sectionEnd: 1<<9 - 1,
		decFree:    257,
		out:        make([]byte, 0, outBufferSize+8),
	}, nil
}

// Write implements io.Writer.
func (z *Writer) Write(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	if z.closed {
		return 0, errors.New(errors.CodeMisuse, "write to closed compress writer")
	}
	z.header()

	for _, b := range p {
		if z.prefix < 0 {
			z.prefix = int(b)
			continue
		}
		key := uint32(z.prefix)<<8 | uint32(b)
		if code, ok := z.dict[key]; ok {
			z.prefix = code
			continue
		}
		z.emit(z.prefix)
		if z.freeEnt < z.maxCode {
			z.dict[key] = z.freeEnt
			z.freeEnt++
		}
		z.prefix = int(b)
		if len(z.out) >= outBufferSize {
			if err := z.flush(); err != nil {
				return 0, err
			}
		}
	}
	return len(p), nil
}

func (z *Writer) header() {
	if z.headerDone {
		return
	}
	z.headerDone = true
	z.out = append(z.out, magic0, magic1, byte(z.maxBits)|BlockModeFlag)
}

// emit packs one code at the width the decoder expects, then advances the
// decoder mirror the way the decoder will after reading it.
func (z *Writer) emit(code int) {
	z.bitBuf |= uint64(code) << z.bitUsed
	z.bitUsed += z.bits
	for z.bitUsed >= 8 {
		z.out = append(z.out, byte(z.bitBuf))
		z.bitBuf >>= 8
		z.bitUsed -= 8
	}

	if z.decFree < z.maxCode && z.decStarted {
		z.decFree++
	}
	z.decStarted = true
	if z.decFree > z.sectionEnd {
		z.bits++
		if z.bits == z.maxBits {
			z.sectionEnd = z.maxCode
		} else {
			z.sectionEnd = 1<<z.bits - 1
		}
	}
}

func (z *Writer) flush() error {
	if len(z.out) == 0 {
		return nil
	}
	if _, err := z.dst.Write(z.out); err != nil {
		z.err = err
		return err
	}
	z.out = z.out[:0]
	return nil
}

// Close emits the pending code and flushes. It does not close the
// underlying writer.
func (z *Writer) Close() error {
	if z.closed {
		return z.err
	}
	z.closed = true
	if z.err != nil {
		return z.err
	}
	z.header()
	if z.prefix >= 0 {
		z.emit(z.prefix)
		z.prefix = -1
	}
	if z.bitUsed > 0 {
		z.out = append(z.out, byte(z.bitBuf))
		z.bitBuf, z.bitUsed = 0, 0
	}
	return z.flush()
}
