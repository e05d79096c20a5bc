package archive

import (
	"context"
	"io"

	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/filter"
	"github.com/jmgilman/go/archive/format"
	"github.com/jmgilman/go/archive/format/ar"
	"github.com/jmgilman/go/archive/format/cpio"
	"github.com/jmgilman/go/archive/format/mtree"
	"github.com/jmgilman/go/archive/format/raw"
	"github.com/jmgilman/go/archive/format/zip"
	"github.com/jmgilman/go/archive/internal/logging"
	"github.com/jmgilman/go/archive/stream"
)

type readState int

const (
	readHeader readState = iota
	readData
	readEOF
	readFatal
	readClosed
)

// Reader iterates over the entries of an archive. It is not safe for
// concurrent use.
type Reader struct {
	logger  *logging.Logger
	chain   *filter.Chain
	top     *stream.Cursor
	readers []format.Reader
	format  format.Reader

	entry    *entry.Entry
	state    readState
	dataDone bool
	pending  []byte

	err  error
	last error
}

// NewReader runs the filter auction on r and returns a Reader positioned
// before the first entry. The format auction runs on the first call to
// Next. The caller keeps ownership of r.
func NewReader(r io.Reader, opts ...ReaderOption) (*Reader, error) {
	cfg := &readerConfig{
		maxRounds: filter.DefaultMaxRounds,
		blockSize: stream.DefaultBlockSize,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	logger := logging.FromSlog(cfg.logger).WithComponent("reader")

	readers, err := formatReaders(cfg, logger)
	if err != nil {
		return nil, err
	}

	bidders := filter.DefaultBidders()
	for _, p := range cfg.programs {
		b, err := filter.NewProgramBidder(p.cmdline, p.signature)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidConfig, "invalid filter program")
		}
		bidders = append(bidders, b)
	}

	bottom := stream.NewCursor(r, stream.WithBlockSize(cfg.blockSize))
	chain, err := filter.Build(bottom, bidders,
		filter.WithMaxRounds(cfg.maxRounds),
		filter.WithBlockSize(cfg.blockSize),
		filter.WithLogger(logger))
	if err != nil {
		logging.LogFatal(context.Background(), logger, "filter auction", err)
		return nil, err
	}

	return &Reader{
		logger:  logger,
		chain:   chain,
		top:     chain.Top(),
		readers: readers,
		entry:   entry.New(),
	}, nil
}

// formatReaders builds the format registry in bidding order.
func formatReaders(cfg *readerConfig, logger *logging.Logger) ([]format.Reader, error) {
	codes := cfg.formats
	if len(codes) == 0 {
		codes = []format.Code{format.Zip, format.CpioODC, format.ArBSD, format.Mtree}
	}
	var readers []format.Reader
	seen := make(map[string]bool)
	add := func(r format.Reader) {
		if !seen[r.Name()] {
			seen[r.Name()] = true
			readers = append(readers, r)
		}
	}
	for _, code := range codes {
		switch code {
		case format.Zip:
			add(zip.NewReader(zip.WithReaderLogger(logger.WithComponent("zip"))))
		case format.CpioODC, format.CpioNewc:
			add(cpio.NewReader(cpio.WithReaderLogger(logger.WithComponent("cpio"))))
		case format.ArBSD, format.ArGNU:
			add(ar.NewReader())
		case format.Mtree:
			add(mtree.NewReader())
		case format.Raw:
			add(raw.NewReader())
		default:
			return nil, errors.Newf(errors.CodeInvalidConfig, "Format %s cannot be read", code)
		}
	}
	if cfg.raw {
		add(raw.NewReader())
	}
	return readers, nil
}

// Next advances to the next entry, skipping whatever is left of the
// current one. The returned entry is reused by the following call; Clone
// it to keep it. At the end of the archive Next returns io.EOF.
//
// A warning is returned together with the entry. A failed entry is
// returned with its error and can only be skipped.
func (r *Reader) Next() (*entry.Entry, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if r.state == readEOF {
		return nil, io.EOF
	}
	if r.state == readData && !r.dataDone {
		if err := r.record("skip", r.format.SkipData(r.top)); errors.IsFatal(err) {
			return nil, err
		}
	}
	r.pending = nil
	r.dataDone = false

	if r.format == nil {
		p, err := r.top.Peek(1)
		if err != nil && err != io.EOF {
			return nil, r.fatal("format auction", err)
		}
		if len(p) == 0 {
			r.state = readEOF
			return nil, io.EOF
		}
		f, err := format.Select(context.Background(), r.top, r.readers, r.logger)
		if err != nil {
			return nil, r.fatal("format auction", err)
		}
		r.format = f
	}

	r.entry.Clear()
	err := r.format.ReadHeader(r.top, r.entry)
	if err == io.EOF {
		r.state = readEOF
		return nil, io.EOF
	}
	if err := r.record("read header", err); errors.IsFatal(err) {
		return nil, err
	}
	r.state = readData
	if err != nil {
		logging.LogIntegrityWarning(context.Background(), r.logger, r.entry.Pathname(), err)
	}
	return r.entry, err
}

// Read reads entry data. It returns io.EOF at the end of the entry. An
// integrity problem found at the end of the entry, such as a checksum
// mismatch, is returned once as a warning before io.EOF.
func (r *Reader) Read(p []byte) (int, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	switch r.state {
	case readEOF:
		return 0, io.EOF
	case readHeader:
		return 0, r.fatal("read data", errors.New(errors.CodeMisuse, "Read called before Next"))
	}
	if len(p) == 0 {
		return 0, nil
	}
	for len(r.pending) == 0 {
		if r.dataDone {
			return 0, io.EOF
		}
		data, err := r.format.ReadData(r.top)
		if err == io.EOF {
			r.dataDone = true
			return 0, io.EOF
		}
		if err != nil {
			if errors.IsWarning(err) {
				logging.LogIntegrityWarning(context.Background(), r.logger, r.entry.Pathname(), err)
			}
			return 0, r.record("read data", err)
		}
		r.pending = data
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// Skip discards the rest of the current entry.
func (r *Reader) Skip() error {
	if err := r.check(); err != nil {
		return err
	}
	if r.state != readData || r.dataDone {
		return nil
	}
	r.pending = nil
	r.dataDone = true
	return r.record("skip", r.format.SkipData(r.top))
}

// Close releases the filters and the format. It does not close the
// underlying reader.
func (r *Reader) Close() error {
	if r.state == readClosed {
		return nil
	}
	r.state = readClosed
	var err error
	if r.format != nil {
		err = r.format.Close()
	}
	return errors.Combine(err, r.chain.Close())
}

// Filters returns the names of the stacked filters, outermost last.
func (r *Reader) Filters() []string {
	return r.chain.Names()
}

// Format returns the name of the selected format, or "" before the first
// call to Next.
func (r *Reader) Format() string {
	if r.format == nil {
		return ""
	}
	return r.format.Name()
}

// LastError returns the error reported by the most recent call, or nil.
func (r *Reader) LastError() error {
	return r.last
}

func (r *Reader) check() error {
	switch r.state {
	case readFatal:
		return r.err
	case readClosed:
		return errors.New(errors.CodeMisuse, "archive reader is closed")
	}
	return nil
}

// record stores err as the last error and makes fatal errors sticky.
func (r *Reader) record(op string, err error) error {
	r.last = err
	if errors.IsFatal(err) {
		return r.fatal(op, err)
	}
	return err
}

func (r *Reader) fatal(op string, err error) error {
	if !errors.IsFatal(err) {
		err = errors.WithSeverity(err, errors.SeverityFatal)
	}
	r.err = err
	r.last = err
	r.state = readFatal
	logging.LogFatal(context.Background(), r.logger, op, err)
	return err
}
