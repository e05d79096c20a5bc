package filter

import (
	"context"
	"io"

	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/internal/logging"
	"github.com/jmgilman/go/archive/internal/program"
	"github.com/jmgilman/go/archive/stream"
)

// DefaultMaxRounds caps the number of filters stacked by one auction.
const DefaultMaxRounds = 25

// Filter is a decoding stage. Reading yields the decoded bytes of the
// upstream stream. Close releases the stage and its upstream.
type Filter interface {
	io.Reader
	io.Closer
	Name() string
}

// Bidder recognizes one compression method.
type Bidder interface {
	// Name returns the filter name, e.g. "gzip".
	Name() string

	// Bid inspects upstream without consuming and returns a confidence
	// score. Zero or less means no interest. Errors abort the auction.
	Bid(upstream *stream.Cursor) (int, error)

	// Init returns a Filter that decodes upstream and takes ownership of it.
	Init(upstream *stream.Cursor) (Filter, error)
}

// DefaultBidders returns the built-in bidders in registration order.
func DefaultBidders() []Bidder {
	return []Bidder{
		NoneBidder{},
		Bzip2Bidder{},
		CompressBidder{},
		GzipBidder{},
		LzmaBidder{},
		XzBidder{},
		UuBidder{},
		Lz4Bidder{},
		ZstdBidder{},
	}
}

// Chain is the result of an auction.
type Chain struct {
	bottom  *stream.Cursor
	top     *stream.Cursor
	filters []Filter
}

// Top returns the cursor over the fully decoded stream.
func (ch *Chain) Top() *stream.Cursor {
	return ch.top
}

// Names returns the filter names from the top of the chain down.
func (ch *Chain) Names() []string {
	names := make([]string, 0, len(ch.filters))
	for i := len(ch.filters) - 1; i >= 0; i-- {
		names = append(names, ch.filters[i].Name())
	}
	return names
}

// Len returns the number of stacked filters.
func (ch *Chain) Len() int {
	return len(ch.filters)
}

// Close tears the chain down from the top. Each cursor closes the filter
// beneath it; the bottom cursor does not own the client reader.
func (ch *Chain) Close() error {
	return ch.top.Close()
}

type buildConfig struct {
	maxRounds int
	blockSize int
	logger    *logging.Logger
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

// WithMaxRounds sets the auction round cap.
func WithMaxRounds(n int) BuildOption {
	return func(c *buildConfig) {
		if n > 0 {
			c.maxRounds = n
		}
	}
}

// WithBlockSize sets the read size of the cursors placed over each filter.
func WithBlockSize(n int) BuildOption {
	return func(c *buildConfig) {
		c.blockSize = n
	}
}

// WithLogger sets the logger used to report auction results.
func WithLogger(l *logging.Logger) BuildOption {
	return func(c *buildConfig) {
		c.logger = l
	}
}

// Build runs the filter auction on bottom. A read failure or a failed
// filter initialization is fatal. Exceeding the round cap is fatal.
func Build(bottom *stream.Cursor, bidders []Bidder, opts ...BuildOption) (*Chain, error) {
	cfg := &buildConfig{
		maxRounds: DefaultMaxRounds,
		blockSize: stream.DefaultBlockSize,
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ch := &Chain{bottom: bottom, top: bottom}
	for round := 0; ; round++ {
		best, bestBid := -1, 0
		for i, b := range bidders {
			bid, err := b.Bid(ch.top)
			if err != nil {
				_ = ch.Close()
				return nil, auctionError(err, round)
			}
			if bid > bestBid {
				best, bestBid = i, bid
			}
		}
		if best < 0 {
			return ch, nil
		}
		if round >= cfg.maxRounds {
			_ = ch.Close()
			return nil, errors.Newf(errors.CodeLimitExceeded,
				"filter auction exceeded %d rounds", cfg.maxRounds)
		}

		winner := bidders[best]
		f, err := winner.Init(ch.top)
		if err != nil {
			_ = ch.Close()
			return nil, errors.WithSeverity(
				errors.Wrapf(err, errors.CodeMalformed, "%s filter initialization failed", winner.Name()),
				errors.SeverityFatal)
		}
		logging.LogFilterSelected(context.Background(), cfg.logger, winner.Name(), bestBid, round)

		ch.filters = append(ch.filters, f)
		ch.top = stream.NewCursor(f, stream.WithCloser(f), stream.WithBlockSize(cfg.blockSize))
	}
}

// auctionError reports a failed auction read. Decode errors from a filter
// already in the chain keep their own code.
func auctionError(err error, round int) error {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = errors.CodeIO
	}
	return errors.WithSeverity(
		errors.Wrapf(err, code, "reading the stream for auction round %d", round),
		errors.SeverityFatal)
}

// peek returns up to n leading bytes. A short stream is not an error.
func peek(c *stream.Cursor, n int) ([]byte, error) {
	p, err := c.Peek(n)
	if err == io.EOF {
		return p, nil
	}
	return p, err
}

// readFilter adapts a decoder to Filter. Closing it closes the decoder and
// then the upstream cursor.
type readFilter struct {
	name     string
	r        io.Reader
	closeFn  func() error
	upstream *stream.Cursor
}

func newReadFilter(name string, r io.Reader, closeFn func() error, upstream *stream.Cursor) *readFilter {
	return &readFilter{name: name, r: r, closeFn: closeFn, upstream: upstream}
}

func (f *readFilter) Name() string {
	return f.name
}

func (f *readFilter) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err != nil && err != io.EOF {
		err = decodeError(f.name, err)
	}
	return n, err
}

func (f *readFilter) Close() error {
	var err error
	if f.closeFn != nil {
		err = f.closeFn()
	}
	return errors.Combine(err, f.upstream.Close())
}

// decodeError classifies a decoder error. All of them are fatal for the
// stream; the code tells truncation from corruption.
func decodeError(name string, err error) error {
	var archiveErr errors.ArchiveError
	var progErr *program.ProgramError
	switch {
	case errors.As(err, &archiveErr):
		return err
	case errors.As(err, &progErr):
		return errors.Wrapf(err, errors.CodeProgram, "%s failed", name)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return errors.Wrapf(err, errors.CodeTruncated, "truncated %s input", name)
	default:
		return errors.Wrapf(err, errors.CodeMalformed, "%s decompression failed", name)
	}
}
