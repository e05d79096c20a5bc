package filter

import (
	"bytes"

	"github.com/pierrec/lz4/v4"

	"github.com/jmgilman/go/archive/stream"
)

var (
	lz4Magic       = []byte{0x04, 0x22, 0x4d, 0x18}
	lz4LegacyMagic = []byte{0x02, 0x21, 0x4c, 0x18}
)

// Lz4Bidder recognizes lz4 frames, including the legacy frame format.
type Lz4Bidder struct{}

func (Lz4Bidder) Name() string {
	return "lz4"
}

func (Lz4Bidder) Bid(upstream *stream.Cursor) (int, error) {
	p, err := peek(upstream, 5)
	if err != nil {
		return 0, err
	}
	switch {
	case bytes.HasPrefix(p, lz4Magic) && len(p) >= 5:
		// Frame descriptor version must be 01.
		if p[4]&0xc0 != 0x40 {
			return 0, nil
		}
		return 34, nil
	case bytes.HasPrefix(p, lz4LegacyMagic):
		return 32, nil
	}
	return 0, nil
}

func (Lz4Bidder) Init(upstream *stream.Cursor) (Filter, error) {
	return newReadFilter("lz4", lz4.NewReader(upstream), nil, upstream), nil
}
