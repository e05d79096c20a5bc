package archive

import (
	"log/slog"

	"github.com/jmgilman/go/archive/compressor"
	"github.com/jmgilman/go/archive/format"
)

type programFilter struct {
	cmdline   string
	signature []byte
}

type readerConfig struct {
	formats   []format.Code
	raw       bool
	programs  []programFilter
	maxRounds int
	blockSize int
	logger    *slog.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*readerConfig)

// WithFormats restricts the format auction to the given formats. Both cpio
// codes select the cpio reader and both ar codes select the ar reader.
func WithFormats(codes ...format.Code) ReaderOption {
	return func(c *readerConfig) {
		c.formats = append([]format.Code(nil), codes...)
	}
}

// WithRawFormat adds the raw format to the auction. Raw bids lower than
// every other format, so a stream nobody recognizes is returned as a
// single entry named "data".
func WithRawFormat() ReaderOption {
	return func(c *readerConfig) {
		c.raw = true
	}
}

// WithFilterProgram adds an external decompression program to the filter
// auction. With a signature the program bids only on streams that start
// with it; without one the program is forced onto the stream once.
func WithFilterProgram(cmdline string, signature []byte) ReaderOption {
	return func(c *readerConfig) {
		c.programs = append(c.programs, programFilter{cmdline: cmdline, signature: signature})
	}
}

// WithMaxFilterRounds caps how many filters the auction may stack.
func WithMaxFilterRounds(n int) ReaderOption {
	return func(c *readerConfig) {
		c.maxRounds = n
	}
}

// WithReadBlockSize sets how many bytes each layer requests at a time.
func WithReadBlockSize(n int) ReaderOption {
	return func(c *readerConfig) {
		c.blockSize = n
	}
}

// WithReaderLogger sets the logger for a Reader.
func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(c *readerConfig) {
		c.logger = l
	}
}

type moduleOption struct {
	module string
	key    string
	value  string
}

type writerConfig struct {
	format           format.Code
	compression      compressor.Code
	program          string
	bytesPerBlock    int
	bytesInLastBlock int
	lastBlockSet     bool
	padUncompressed  bool
	options          []moduleOption
	optionErr        error
	logger           *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*writerConfig)

// WithFormat selects the container format. The default is zip.
func WithFormat(code format.Code) WriterOption {
	return func(c *writerConfig) {
		c.format = code
	}
}

// WithCompression selects the compressor. The default is none.
func WithCompression(code compressor.Code) WriterOption {
	return func(c *writerConfig) {
		c.compression = code
	}
}

// WithCompressionProgram compresses by piping the archive through an
// external program.
func WithCompressionProgram(cmdline string) WriterOption {
	return func(c *writerConfig) {
		c.compression = compressor.Program
		c.program = cmdline
	}
}

// WithBytesPerBlock sets the physical output block size. Zero or less
// disables blocking.
func WithBytesPerBlock(n int) WriterOption {
	return func(c *writerConfig) {
		c.bytesPerBlock = n
	}
}

// WithBytesInLastBlock sets the padding granularity of the final block.
// compressor.LastBlockFull pads to a whole block. Without this option the
// format's own preference is used.
func WithBytesInLastBlock(n int) WriterOption {
	return func(c *writerConfig) {
		c.bytesInLastBlock = n
		c.lastBlockSet = true
	}
}

// WithPadUncompressed pads the uncompressed stream to a block boundary
// before compression finishes.
func WithPadUncompressed(pad bool) WriterOption {
	return func(c *writerConfig) {
		c.padUncompressed = pad
	}
}

// WithOption sets one option. An empty module offers the key to the
// format first and then to the compressor.
func WithOption(module, key, value string) WriterOption {
	return func(c *writerConfig) {
		c.options = append(c.options, moduleOption{module: module, key: key, value: value})
	}
}

// WithOptions parses a comma separated list of [module:]key[=value]
// options. A bare key means "1" and a leading "!" clears it.
func WithOptions(s string) WriterOption {
	return func(c *writerConfig) {
		opts, err := parseOptions(s)
		if err != nil {
			c.optionErr = err
			return
		}
		c.options = append(c.options, opts...)
	}
}

// WithWriterLogger sets the logger for a Writer.
func WithWriterLogger(l *slog.Logger) WriterOption {
	return func(c *writerConfig) {
		c.logger = l
	}
}
