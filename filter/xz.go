package filter

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"

	"github.com/jmgilman/go/archive/stream"
)

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// XzBidder recognizes xz streams.
type XzBidder struct{}

func (XzBidder) Name() string {
	return "xz"
}

// Bid checks the magic and the reserved stream flag byte.
func (XzBidder) Bid(upstream *stream.Cursor) (int, error) {
	p, err := peek(upstream, 8)
	if err != nil {
		return 0, err
	}
	if len(p) < 8 || !bytes.HasPrefix(p, xzMagic) || p[6] != 0 || p[7]&0xf0 != 0 {
		return 0, nil
	}
	return 48 + 12, nil
}

func (XzBidder) Init(upstream *stream.Cursor) (Filter, error) {
	zr, err := xz.NewReader(upstream)
	if err != nil {
		return nil, err
	}
	return newReadFilter("xz", zr, nil, upstream), nil
}

// lzmaHeaderLen is the length of the .lzma "alone" header.
const lzmaHeaderLen = 13

// LzmaBidder recognizes .lzma files. The format has no magic, so the bid
// is built from the plausibility of the properties, the dictionary size
// and the size field.
type LzmaBidder struct{}

func (LzmaBidder) Name() string {
	return "lzma"
}

func (LzmaBidder) Bid(upstream *stream.Cursor) (int, error) {
	p, err := peek(upstream, lzmaHeaderLen+1)
	if err != nil {
		return 0, err
	}
	if len(p) < lzmaHeaderLen+1 {
		return 0, nil
	}

	bits := 0
	if p[0] > (4*5+4)*9+8 {
		return 0, nil
	}
	if p[0] == 0x5d || p[0] == 0x5e {
		bits += 8
	}
	if binary.LittleEndian.Uint64(p[5:13]) == math.MaxUint64 {
		bits += 64
	}

	dict := binary.LittleEndian.Uint32(p[1:5])
	switch {
	case isCommonLzmaDict(dict):
		bits += 32
	case dict >= 0x00300000 && dict <= 0x03f00000 && dict&(1<<20-1) == 0 && bits == 8+64:
		bits += 32
	default:
		return 0, nil
	}
	return bits, nil
}

// isCommonLzmaDict reports whether d is 2^n or 2^n + 2^(n-1) within the
// range the lzma tools produce.
func isCommonLzmaDict(d uint32) bool {
	for n := 12; n <= 27; n++ {
		if d == 1<<n {
			return true
		}
		if n < 27 && d == 1<<n|1<<(n-1) {
			return true
		}
	}
	return false
}

func (LzmaBidder) Init(upstream *stream.Cursor) (Filter, error) {
	zr, err := lzma.NewReader(upstream)
	if err != nil {
		return nil, err
	}
	return newReadFilter("lzma", zr, nil, upstream), nil
}
