package format

import (
	"context"
	"io"
	"strings"

	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/internal/logging"
	"github.com/jmgilman/go/archive/stream"
)

// Code identifies a container format.
type Code int

const (
	Unknown Code = iota
	Zip
	CpioODC
	CpioNewc
	ArBSD
	ArGNU
	Mtree
	Shar
	SharDump
	Raw
)

var codeNames = map[Code]string{
	Zip:      "zip",
	CpioODC:  "cpio",
	CpioNewc: "newc",
	ArBSD:    "ar",
	ArGNU:    "argnu",
	Mtree:    "mtree",
	Shar:     "shar",
	SharDump: "shardump",
	Raw:      "raw",
}

// String returns the format name.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseCode returns the code for a format name.
func ParseCode(name string) (Code, error) {
	for code, n := range codeNames {
		if strings.EqualFold(n, name) {
			return code, nil
		}
	}
	return Unknown, errors.Newf(errors.CodeInvalidConfig, "unknown format %q", name)
}

// Reader decodes one container format.
type Reader interface {
	// Name returns the format name used in options and diagnostics.
	Name() string

	// Bid inspects the stream without consuming it.
	Bid(c *stream.Cursor) (int, error)

	// ReadHeader fills e with the next entry. It returns io.EOF at the end
	// of the archive. A warning still delivers the entry.
	ReadHeader(c *stream.Cursor, e *entry.Entry) error

	// ReadData returns the next block of entry data, valid until the next
	// call. It returns io.EOF after the last block. Integrity problems
	// found at the end of the entry are returned once, instead of the
	// first io.EOF.
	ReadData(c *stream.Cursor) ([]byte, error)

	// SkipData discards the rest of the current entry.
	SkipData(c *stream.Cursor) error

	// Close releases per-archive state.
	Close() error
}

// Writer encodes one container format.
type Writer interface {
	// Name returns the format name used in options and diagnostics.
	Name() string

	// SetOption applies a format option. Keys the format does not know
	// return errors.ErrOptionUnknown.
	SetOption(key, value string) error

	// Open sets the destination, normally the compressor.
	Open(w io.Writer) error

	WriteHeader(e *entry.Entry) error
	WriteData(p []byte) (int, error)
	FinishEntry() error

	// Close writes the archive trailer. It does not close the destination.
	Close() error
}

// LastBlockSuggester is implemented by writers whose output needs no
// padding. The supervisor uses the suggestion unless the caller set the
// final block size explicitly.
type LastBlockSuggester interface {
	SuggestedBytesInLastBlock() int
}

// Select runs the format auction on c. The highest bid wins; the first
// reader wins ties. No positive bid is a fatal error.
func Select(ctx context.Context, c *stream.Cursor, readers []Reader, logger *logging.Logger) (Reader, error) {
	best, bestBid := -1, 0
	for i, r := range readers {
		bid, err := r.Bid(c)
		if err != nil {
			return nil, errors.WithSeverity(
				errors.Wrapf(err, errors.CodeIO, "%s bidder could not read the stream", r.Name()),
				errors.SeverityFatal)
		}
		if bid > bestBid {
			best, bestBid = i, bid
		}
	}
	if best < 0 {
		return nil, errors.New(errors.CodeUnrecognized, "Unrecognized archive format")
	}
	logging.LogFormatSelected(ctx, logger, readers[best].Name(), bestBid)
	return readers[best], nil
}

// Peek returns up to n leading bytes. A short stream is not an error.
func Peek(c *stream.Cursor, n int) ([]byte, error) {
	p, err := c.Peek(n)
	if err == io.EOF {
		return p, nil
	}
	return p, err
}

// ReadFull consumes exactly n bytes and returns them. The slice is valid
// until the next cursor call. Running out of input is a fatal truncation.
func ReadFull(c *stream.Cursor, n int, what string) ([]byte, error) {
	p, err := c.Peek(n)
	if err == io.EOF {
		return nil, errors.Newf(errors.CodeTruncated, "truncated %s", what)
	}
	if err != nil {
		return nil, err
	}
	p = p[:n]
	if err := c.Consume(n); err != nil {
		return nil, err
	}
	return p, nil
}

// SkipFull skips exactly n bytes. Running out of input is a fatal truncation.
func SkipFull(c *stream.Cursor, n int64, what string) error {
	skipped, err := c.Skip(n)
	if err != nil {
		return err
	}
	if skipped < n {
		return errors.Newf(errors.CodeTruncated, "truncated %s", what)
	}
	return nil
}
