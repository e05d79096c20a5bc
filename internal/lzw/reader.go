package lzw

import (
	"bufio"
	"io"

	"github.com/jmgilman/go/archive/errors"
)

const (
	magic0 = 0x1f
	magic1 = 0x9d

	// BlockModeFlag marks a stream where code 256 resets the dictionary.
	BlockModeFlag = 0x80

	maxBitsMask  = 0x1f
	reservedMask = 0x60

	clearCode = 256
)

// HeaderLen is the length of the .Z stream header.
const HeaderLen = 3

// CheckHeader validates the three header bytes and returns the maximum code
// width and whether block mode is on.
func CheckHeader(h []byte) (maxBits int, blockMode bool, err error) {
	if len(h) < HeaderLen || h[0] != magic0 || h[1] != magic1 {
		return 0, false, errors.New(errors.CodeMalformed, "invalid compress header")
	}
	if h[2]&reservedMask != 0 {
		return 0, false, errors.New(errors.CodeMalformed, "reserved compress flag bits set")
	}
	maxBits = int(h[2] & maxBitsMask)
	if maxBits < 9 || maxBits > 16 {
		return 0, false, errors.Newf(errors.CodeMalformed, "invalid compress code width %d", maxBits)
	}
	return maxBits, h[2]&BlockModeFlag != 0, nil
}

// Reader decompresses a .Z stream.
type Reader struct {
	src io.ByteReader

	maxBits   int
	maxCode   int
	blockMode bool

	bits           int
	sectionEnd     int
	bytesInSection int
	freeEnt        int
	oldCode        int
	finByte        byte

	bitBuf   uint32
	bitAvail int

	prefix [1 << 16]uint16
	suffix [1 << 16]byte
	stack  []byte
	spos   int

	done bool
	err  error
}

// NewReader reads the stream header from r and returns a decompressor.
// If r is not an io.ByteReader it is buffered, which may read past the end
// of the compressed stream.
func NewReader(r io.Reader) (*Reader, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}

	var h [HeaderLen]byte
	for i := range h {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, errors.New(errors.CodeTruncated, "truncated compress header")
			}
			return nil, err
		}
		h[i] = b
	}
	maxBits, blockMode, err := CheckHeader(h[:])
	if err != nil {
		return nil, err
	}

	z := &Reader{
		src:       br,
		maxBits:   maxBits,
		maxCode:   1 << maxBits,
		blockMode: blockMode,
		stack:     make([]byte, 0, 1<<16),
	}
	for c := 0; c < 256; c++ {
		z.suffix[c] = byte(c)
	}
	z.resetSection()
	return z, nil
}

// resetSection restores the dictionary to its initial state.
func (z *Reader) resetSection() {
	z.bits = 9
	z.sectionEnd = 1<<z.bits - 1
	z.bytesInSection = 0
	z.freeEnt = 256
	if z.blockMode {
		z.freeEnt++
	}
	z.oldCode = -1
}

// getBits returns the next n-bit code. io.EOF means the input ended before
// a whole code was available; the trailing bits are padding.
func (z *Reader) getBits(n int) (int, error) {
	for z.bitAvail < n {
		b, err := z.src.ReadByte()
		if err != nil {
			return 0, err
		}
		z.bitBuf |= uint32(b) << z.bitAvail
		z.bitAvail += 8
		z.bytesInSection++
	}
	code := int(z.bitBuf & (1<<n - 1))
	z.bitBuf >>= n
	z.bitAvail -= n
	return code, nil
}

// nextCode decodes one code onto the stack.
func (z *Reader) nextCode() error {
	code, err := z.getBits(z.bits)
	if err != nil {
		return err
	}

	if code == clearCode && z.blockMode {
		// The encoder pads the section to a whole group of codes.
		skip := (z.bits - z.bytesInSection%z.bits) % z.bits
		z.bitBuf, z.bitAvail = 0, 0
		for ; skip > 0; skip-- {
			if _, err := z.src.ReadByte(); err != nil {
				return err
			}
		}
		z.resetSection()
		return z.nextCode()
	}

	newCode := code
	if code > z.freeEnt || (code == z.freeEnt && z.oldCode < 0) {
		return errors.New(errors.CodeMalformed, "invalid compressed data")
	}

	start := len(z.stack)
	if code >= z.freeEnt {
		z.stack = append(z.stack, z.finByte)
		code = z.oldCode
	}
	for code >= 256 {
		z.stack = append(z.stack, z.suffix[code])
		code = int(z.prefix[code])
	}
	z.finByte = byte(code)
	z.stack = append(z.stack, z.finByte)
	reverse(z.stack[start:])

	if z.freeEnt < z.maxCode && z.oldCode >= 0 {
		z.prefix[z.freeEnt] = uint16(z.oldCode)
		z.suffix[z.freeEnt] = z.finByte
		z.freeEnt++
	}
	if z.freeEnt > z.sectionEnd {
		z.bits++
		z.bytesInSection = 0
		if z.bits == z.maxBits {
			z.sectionEnd = z.maxCode
		} else {
			z.sectionEnd = 1<<z.bits - 1
		}
	}
	z.oldCode = newCode
	return nil
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// Read implements io.Reader.
func (z *Reader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if z.spos < len(z.stack) {
			c := copy(p[n:], z.stack[z.spos:])
			z.spos += c
			n += c
			continue
		}
		z.stack, z.spos = z.stack[:0], 0
		if z.err != nil || z.done {
			break
		}
		if err := z.nextCode(); err != nil {
			if err == io.EOF {
				z.done = true
			} else {
				z.err = err
			}
		}
	}
	if n > 0 {
		return n, nil
	}
	if z.err != nil {
		return 0, z.err
	}
	return 0, io.EOF
}
