package archive

import (
	"context"
	"io"

	"github.com/jmgilman/go/archive/compressor"
	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/format"
	"github.com/jmgilman/go/archive/format/ar"
	"github.com/jmgilman/go/archive/format/cpio"
	"github.com/jmgilman/go/archive/format/mtree"
	"github.com/jmgilman/go/archive/format/raw"
	"github.com/jmgilman/go/archive/format/shar"
	"github.com/jmgilman/go/archive/format/zip"
	"github.com/jmgilman/go/archive/internal/logging"
)

type writeState int

const (
	writeHeader writeState = iota
	writeData
	writeFatal
	writeClosed
)

// Writer encodes entries into an archive. Entries are written in order:
// WriteHeader, any number of Write calls, then FinishEntry. A missing
// FinishEntry is performed by the next WriteHeader or by Close. It is not
// safe for concurrent use.
type Writer struct {
	logger  *logging.Logger
	format  format.Writer
	backend compressor.Backend
	comp    *compressor.Writer

	state    writeState
	pathname string
	err      error
	last     error
}

// NewWriter returns a Writer that sends the compressed archive to w in
// blocks. Options are routed to the format first and then to the
// compressor. An option nobody claims is reported as a warning together
// with a usable Writer.
func NewWriter(w io.Writer, opts ...WriterOption) (*Writer, error) {
	cfg := &writerConfig{
		format:           format.Zip,
		compression:      compressor.None,
		bytesPerBlock:    compressor.DefaultBytesPerBlock,
		bytesInLastBlock: compressor.LastBlockFull,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.optionErr != nil {
		return nil, cfg.optionErr
	}
	logger := logging.FromSlog(cfg.logger).WithComponent("writer")

	fw, err := newFormatWriter(cfg.format, logger)
	if err != nil {
		return nil, err
	}
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	warn, err := applyOptions(context.Background(), logger, cfg.options, fw, backend)
	if err != nil {
		return nil, err
	}

	lastBlock := cfg.bytesInLastBlock
	if s, ok := fw.(format.LastBlockSuggester); ok && !cfg.lastBlockSet {
		lastBlock = s.SuggestedBytesInLastBlock()
	}
	comp, err := compressor.NewWriter(w, backend,
		compressor.WithBytesPerBlock(cfg.bytesPerBlock),
		compressor.WithBytesInLastBlock(lastBlock),
		compressor.WithPadUncompressed(cfg.padUncompressed))
	if err != nil {
		return nil, err
	}
	if err := fw.Open(comp); err != nil {
		return nil, err
	}

	return &Writer{
		logger:  logger,
		format:  fw,
		backend: backend,
		comp:    comp,
		last:    warn,
	}, warn
}

func newFormatWriter(code format.Code, logger *logging.Logger) (format.Writer, error) {
	switch code {
	case format.Zip:
		return zip.NewWriter(zip.WithWriterLogger(logger.WithComponent("zip"))), nil
	case format.CpioODC:
		return cpio.NewWriter(cpio.ODC), nil
	case format.CpioNewc:
		return cpio.NewWriter(cpio.Newc), nil
	case format.ArBSD:
		return ar.NewWriter(ar.BSD), nil
	case format.ArGNU:
		return ar.NewWriter(ar.GNU), nil
	case format.Mtree:
		return mtree.NewWriter(), nil
	case format.Shar:
		return shar.NewWriter(), nil
	case format.SharDump:
		return shar.NewDumpWriter(), nil
	case format.Raw:
		return raw.NewWriter(), nil
	}
	return nil, errors.Newf(errors.CodeInvalidConfig, "No such format %s", code)
}

func newBackend(cfg *writerConfig) (compressor.Backend, error) {
	if cfg.compression == compressor.Program {
		return compressor.NewProgramBackend(cfg.program)
	}
	return compressor.NewBackend(cfg.compression)
}

// applyOptions offers each option to the layers its module names. Invalid
// values fail; keys no layer claims are collected into a warning.
func applyOptions(ctx context.Context, logger *logging.Logger, opts []moduleOption, fw format.Writer, backend compressor.Backend) (warn, err error) {
	for _, o := range opts {
		claimed := false
		for _, layer := range []interface {
			Name() string
			SetOption(key, value string) error
		}{fw, backend} {
			if o.module != "" && o.module != layer.Name() {
				continue
			}
			serr := layer.SetOption(o.key, o.value)
			if errors.Is(serr, errors.ErrOptionUnknown) {
				continue
			}
			if serr != nil {
				return nil, serr
			}
			claimed = true
			break
		}
		if !claimed {
			logger.Warn(ctx, "option not recognized",
				"module", o.module,
				"key", o.key)
			if warn == nil {
				warn = errors.WithContext(
					errors.Newf(errors.CodeOptionUnknown, "Undefined option: %s", optionName(o)),
					"key", o.key)
			}
		}
	}
	return warn, nil
}

func optionName(o moduleOption) string {
	if o.module == "" {
		return o.key
	}
	return o.module + ":" + o.key
}

// WriteHeader starts a new entry, finishing the previous one if needed.
// The result combines the implicit finish and the header write, worst
// first.
func (w *Writer) WriteHeader(e *entry.Entry) error {
	if err := w.check(); err != nil {
		return err
	}
	var finishErr error
	if w.state == writeData {
		w.logger.Debug(context.Background(), "implicit finish entry", "entry", w.pathname)
		finishErr = w.finishEntry()
		if errors.IsFatal(finishErr) {
			return finishErr
		}
	}

	err := w.format.WriteHeader(e)
	result := errors.Combine(finishErr, err)
	if errors.IsFatal(err) {
		return w.fatal("write header", err)
	}
	if err == nil || errors.IsWarning(err) {
		w.state = writeData
		w.pathname = e.Pathname()
	}
	w.last = result
	return result
}

// Write writes entry data. Writing past the size declared in the header
// returns the bytes accepted together with a failed error.
func (w *Writer) Write(p []byte) (int, error) {
	if err := w.check(); err != nil {
		return 0, err
	}
	if w.state != writeData {
		return 0, w.fatal("write data", errors.New(errors.CodeMisuse, "Write called without an entry"))
	}
	n, err := w.format.WriteData(p)
	if errors.IsFatal(err) {
		return n, w.fatal("write data", err)
	}
	w.last = err
	return n, err
}

// FinishEntry completes the current entry. A short body is padded and
// reported as a warning.
func (w *Writer) FinishEntry() error {
	if err := w.check(); err != nil {
		return err
	}
	if w.state != writeData {
		return nil
	}
	err := w.finishEntry()
	w.last = err
	return err
}

func (w *Writer) finishEntry() error {
	w.state = writeHeader
	err := w.format.FinishEntry()
	if errors.IsFatal(err) {
		return w.fatal("finish entry", err)
	}
	if errors.IsWarning(err) {
		logging.LogIntegrityWarning(context.Background(), w.logger, w.pathname, err)
	}
	return err
}

// Close finishes the last entry, writes the archive trailer and flushes
// the final block. It does not close the underlying writer.
func (w *Writer) Close() error {
	switch w.state {
	case writeClosed:
		return nil
	case writeFatal:
		return w.err
	}
	var finishErr error
	if w.state == writeData {
		finishErr = w.finishEntry()
		if errors.IsFatal(finishErr) {
			return finishErr
		}
	}
	formatErr := w.format.Close()
	if errors.IsFatal(formatErr) {
		return w.fatal("close", formatErr)
	}
	if err := w.comp.Close(); err != nil {
		return w.fatal("close", err)
	}
	w.state = writeClosed
	w.last = errors.Combine(finishErr, formatErr)
	return w.last
}

// Format returns the name of the container format.
func (w *Writer) Format() string {
	return w.format.Name()
}

// Compression returns the name of the compressor.
func (w *Writer) Compression() string {
	return w.backend.Name()
}

// BytesWritten returns the number of compressed bytes delivered so far.
func (w *Writer) BytesWritten() int64 {
	return w.comp.Compressed()
}

// LastError returns the error reported by the most recent call, or nil.
func (w *Writer) LastError() error {
	return w.last
}

func (w *Writer) check() error {
	switch w.state {
	case writeFatal:
		return w.err
	case writeClosed:
		return errors.New(errors.CodeMisuse, "archive writer is closed")
	}
	return nil
}

func (w *Writer) fatal(op string, err error) error {
	if !errors.IsFatal(err) {
		err = errors.WithSeverity(err, errors.SeverityFatal)
	}
	w.err = err
	w.last = err
	w.state = writeFatal
	logging.LogFatal(context.Background(), w.logger, op, err)
	return err
}
