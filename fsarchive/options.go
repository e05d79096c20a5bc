package fsarchive

import (
	"log/slog"

	"github.com/jmgilman/go/archive"
	"github.com/jmgilman/go/archive/compressor"
	"github.com/jmgilman/go/archive/format"
)

// ExtractOptions bounds what Extract is willing to write.
type ExtractOptions struct {
	// MaxFiles is the maximum number of entries extracted. 0 disables the limit.
	MaxFiles int

	// MaxSize is the maximum total number of bytes written. 0 disables the limit.
	MaxSize int64

	// MaxFileSize is the maximum size of a single file. 0 disables the limit.
	MaxFileSize int64

	// StripPrefix is removed from member names that start with it.
	StripPrefix string

	// PreservePerms keeps the archived permission bits. Setuid and setgid
	// entries are rejected either way. When false, files are created 0644
	// and directories 0755.
	PreservePerms bool

	// AllowHiddenFiles permits names with a component starting with a dot.
	AllowHiddenFiles bool

	// FilesToExtract holds doublestar glob patterns matched against the
	// name after StripPrefix:
	//   - *.json: .json files in the root
	//   - config/*: files directly below config
	//   - **/*.txt: .txt files at any depth
	// When empty every entry is extracted.
	FilesToExtract []string
}

// DefaultExtractOptions limits extraction to 10000 files, 1 GiB in total
// and 100 MiB per file, and sanitizes permissions.
var DefaultExtractOptions = ExtractOptions{
	MaxFiles:    10000,
	MaxSize:     1 << 30,
	MaxFileSize: 100 << 20,
}

// DefaultWorkers is the number of goroutines opening files while archiving.
const DefaultWorkers = 8

// Option configures an Archiver.
type Option func(*Archiver)

// WithFormat selects the container format used by Archive. Zip is the default.
func WithFormat(code format.Code) Option {
	return func(a *Archiver) {
		a.format = code
	}
}

// WithCompression selects the outer compression used by Archive.
func WithCompression(code compressor.Code) Option {
	return func(a *Archiver) {
		a.compression = code
	}
}

// WithWriterOptions passes extra options to archive.NewWriter, for example
// archive.WithOptions("zip:compression=store").
func WithWriterOptions(opts ...archive.WriterOption) Option {
	return func(a *Archiver) {
		a.writerOpts = append(a.writerOpts, opts...)
	}
}

// WithReaderOptions passes extra options to archive.NewReader.
func WithReaderOptions(opts ...archive.ReaderOption) Option {
	return func(a *Archiver) {
		a.readerOpts = append(a.readerOpts, opts...)
	}
}

// WithWorkers sets the number of goroutines that open files while
// archiving. Values below 1 are treated as 1.
func WithWorkers(n int) Option {
	return func(a *Archiver) {
		a.workers = n
	}
}

// WithLogger sets the logger for the archiver and the readers and writers
// it creates.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archiver) {
		a.slog = l
	}
}
