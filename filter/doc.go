// Package filter implements the read-side compression filters and the
// auction that stacks them.
//
// A Bidder looks at the leading bytes of a stream and returns a confidence
// score, conventionally the number of bits it verified. Build runs rounds of
// bidding: the highest bid wins (the first registered bidder wins ties), its
// Filter wraps the current stream and the next round bids on the decoded
// output. The auction stops when no bidder bids above zero.
//
//	chain, err := filter.Build(stream.NewCursor(r), filter.DefaultBidders())
//	if err != nil {
//	    return err
//	}
//	defer chain.Close()
//	fmt.Println(chain.Names()) // e.g. [gzip]
//
// Every filter owns exactly one upstream cursor. Closing the chain closes
// the filters from the top down.
package filter
