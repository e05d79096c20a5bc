package filter

import "github.com/jmgilman/go/archive/stream"

// NoneBidder represents uncompressed input. It never bids, so the auction
// ends when only uncompressed data remains.
type NoneBidder struct{}

func (NoneBidder) Name() string {
	return "none"
}

func (NoneBidder) Bid(*stream.Cursor) (int, error) {
	return 0, nil
}

// Init returns a pass-through filter.
func (NoneBidder) Init(upstream *stream.Cursor) (Filter, error) {
	return newReadFilter("none", upstream, nil, upstream), nil
}
