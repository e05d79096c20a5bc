package filter

import (
	"github.com/jmgilman/go/archive/internal/lzw"
	"github.com/jmgilman/go/archive/stream"
)

// CompressBidder recognizes Unix compress (.Z) streams.
type CompressBidder struct{}

func (CompressBidder) Name() string {
	return "compress (.Z)"
}

func (CompressBidder) Bid(upstream *stream.Cursor) (int, error) {
	p, err := peek(upstream, lzw.HeaderLen)
	if err != nil {
		return 0, err
	}
	if _, _, err := lzw.CheckHeader(p); err != nil {
		return 0, nil
	}
	return 18, nil
}

func (CompressBidder) Init(upstream *stream.Cursor) (Filter, error) {
	zr, err := lzw.NewReader(upstream)
	if err != nil {
		return nil, err
	}
	return newReadFilter("compress (.Z)", zr, nil, upstream), nil
}
