package compressor

import (
	"io"
	"strconv"
	"strings"

	"github.com/jmgilman/go/archive/errors"
)

// Code identifies a compression backend.
type Code int

const (
	None Code = iota
	Gzip
	Bzip2
	Xz
	Lzma
	Zstd
	Lz4
	Compress
	UUEncode
	Program
)

var codeNames = map[Code]string{
	None:     "none",
	Gzip:     "gzip",
	Bzip2:    "bzip2",
	Xz:       "xz",
	Lzma:     "lzma",
	Zstd:     "zstd",
	Lz4:      "lz4",
	Compress: "compress",
	UUEncode: "uuencode",
	Program:  "program",
}

// String returns the backend name.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseCode returns the code for a backend name.
func ParseCode(name string) (Code, error) {
	for code, n := range codeNames {
		if strings.EqualFold(n, name) {
			return code, nil
		}
	}
	return None, errors.Newf(errors.CodeInvalidConfig, "unknown compression %q", name)
}

// Backend is one compression method. Options are applied before Open;
// Open connects the output; Write takes uncompressed bytes; Close drains
// all pending output but does not close the sink.
type Backend interface {
	Name() string
	SetOption(key, value string) error
	Open(sink io.Writer) error
	io.WriteCloser
}

// NewBackend returns a backend for code. Program backends need a command
// line and are created with NewProgramBackend.
func NewBackend(code Code) (Backend, error) {
	switch code {
	case None:
		return &noneBackend{}, nil
	case Gzip:
		return newGzipBackend(), nil
	case Bzip2:
		return newBzip2Backend(), nil
	case Xz:
		return newXzBackend(), nil
	case Lzma:
		return newLzmaBackend(), nil
	case Zstd:
		return newZstdBackend(), nil
	case Lz4:
		return newLz4Backend(), nil
	case Compress:
		return &compressBackend{}, nil
	case UUEncode:
		return newUUEncodeBackend(), nil
	case Program:
		return nil, errors.New(errors.CodeInvalidConfig, "program compression needs a command")
	default:
		return nil, errors.Newf(errors.CodeInvalidConfig, "unknown compression code %d", int(code))
	}
}

// parseLevel parses a compression-level option value in [lo, hi].
func parseLevel(name, value string, lo, hi int) (int, error) {
	level, err := strconv.Atoi(value)
	if err != nil || level < lo || level > hi {
		return 0, errors.Newf(errors.CodeInvalidConfig,
			"%s: compression-level must be between %d and %d", name, lo, hi)
	}
	return level, nil
}

// parseBool interprets an option value. The option parser passes "" for
// a negated key and "1" for a bare key.
func parseBool(value string) bool {
	return value != ""
}

// backendError wraps a codec error as fatal.
func backendError(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.SeverityOf(err) == errors.SeverityFatal {
		var archiveErr errors.ArchiveError
		if errors.As(err, &archiveErr) {
			return err
		}
	}
	return errors.WithSeverity(errors.Wrapf(err, errors.CodeIO, "%s compression failed", name), errors.SeverityFatal)
}

// noneBackend passes bytes through unchanged.
type noneBackend struct {
	sink io.Writer
}

func (b *noneBackend) Name() string {
	return "none"
}

func (b *noneBackend) SetOption(string, string) error {
	return errors.ErrOptionUnknown
}

func (b *noneBackend) Open(sink io.Writer) error {
	b.sink = sink
	return nil
}

func (b *noneBackend) Write(p []byte) (int, error) {
	return b.sink.Write(p)
}

func (b *noneBackend) Close() error {
	return nil
}
