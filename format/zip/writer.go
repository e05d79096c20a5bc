package zip

import (
	"context"
	"encoding/binary"
	"hash/crc32"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"

	"github.com/jmgilman/go/archive/compressor"
	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/internal/logging"
)

// centralRecord is what the central directory needs to know about an entry.
type centralRecord struct {
	name     string
	flags    uint16
	method   uint16
	version  uint16
	modified uint32
	crc      uint32
	csize    int64
	usize    int64
	offset   int64
	mode     uint32
	dir      bool
	extra    []byte
}

// countingWriter tracks the archive offset.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterLogger sets the logger used for diagnostics.
func WithWriterLogger(l *logging.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = l
	}
}

// Writer encodes a ZIP archive as a stream.
type Writer struct {
	logger *logging.Logger
	method uint16
	level  int

	out     *countingWriter
	flate   *flate.Writer
	entries []*centralRecord

	// Per-entry state.
	cur       *centralRecord
	enc       io.WriteCloser
	crc       uint32
	written   int64
	limit     int64
	dataStart int64
}

// NewWriter returns a ZIP writer that deflates by default.
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{method: MethodDeflate, level: flate.DefaultCompression}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) Name() string {
	return "zip"
}

// SuggestedBytesInLastBlock asks for an unpadded final block.
func (w *Writer) SuggestedBytesInLastBlock() int {
	return 1
}

var methodByName = map[string]uint16{
	"store":   MethodStore,
	"deflate": MethodDeflate,
	"bzip2":   MethodBzip2,
	"lzma":    MethodLzma,
	"xz":      MethodXz,
	"zstd":    MethodZstd,
}

// SetOption accepts compression (store, deflate, bzip2, lzma, xz, zstd)
// and compression-level (0-9).
func (w *Writer) SetOption(key, value string) error {
	switch key {
	case "compression":
		m, ok := methodByName[strings.ToLower(value)]
		if !ok {
			return errors.Newf(errors.CodeInvalidConfig, "zip: unknown compression %q", value)
		}
		w.method = m
		return nil
	case "compression-level":
		level, err := strconv.Atoi(value)
		if err != nil || level < 0 || level > 9 {
			return errors.New(errors.CodeInvalidConfig, "zip: compression-level must be between 0 and 9")
		}
		w.level = level
		return nil
	}
	return errors.ErrOptionUnknown
}

func (w *Writer) Open(out io.Writer) error {
	w.out = &countingWriter{w: out}
	return nil
}

// WriteHeader writes the local file header for e. Regular files,
// directories and symbolic links are supported.
func (w *Writer) WriteHeader(e *entry.Entry) error {
	if w.out == nil {
		return errors.New(errors.CodeMisuse, "zip writer is not open")
	}
	if w.cur != nil {
		if err := w.FinishEntry(); err != nil && !errors.IsWarning(err) {
			return err
		}
	}

	ftype := e.Filetype()
	switch ftype {
	case entry.TypeReg, entry.TypeDir, entry.TypeLink:
	case 0:
		ftype = entry.TypeReg
	default:
		return errors.Newf(errors.CodeUnsupported, "Filetype not supported: %s", e.Pathname())
	}
	name := e.Pathname()
	if name == "" {
		return errors.New(errors.CodeInvalidInput, "Invalid empty pathname")
	}
	if ftype == entry.TypeDir && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	if len(name) > uint16Max {
		return errors.Newf(errors.CodeInvalidInput, "Pathname too long (%d bytes)", len(name))
	}
	if len(w.entries) >= uint16Max {
		return errors.New(errors.CodeLimitExceeded, "ZIP archives hold at most 65535 entries without ZIP64")
	}
	if e.HasSize() && e.Size() > uint32Max {
		return errors.Newf(errors.CodeUnsupported, "Files > 4 GiB require ZIP64: %s", name)
	}
	if w.out.n > uint32Max {
		return errors.New(errors.CodeLimitExceeded, "ZIP archive exceeds 4 GiB")
	}

	method := w.method
	w.limit = -1
	var body []byte
	switch {
	case ftype == entry.TypeDir:
		method = MethodStore
		w.limit = 0
	case ftype == entry.TypeLink:
		method = MethodStore
		body = []byte(e.Symlink())
		w.limit = int64(len(body))
	case e.HasSize():
		if e.Size() == 0 {
			method = MethodStore
		}
		w.limit = e.Size()
	}

	flags := uint16(flagLengthAtEnd)
	if !isASCII(name) && utf8.ValidString(name) {
		flags |= flagUTF8
	}
	if method == MethodLzma {
		flags |= flagLzmaEOS
	}

	mode := ftype | e.Perm()
	meta := e.Clone()
	meta.SetMode(mode)
	rec := &centralRecord{
		name:     name,
		flags:    flags,
		method:   method,
		version:  versionNeeded(method, ftype == entry.TypeDir),
		modified: toDOSTime(e.Mtime()),
		offset:   w.out.n,
		mode:     mode,
		dir:      ftype == entry.TypeDir,
	}

	var local, central extraBuilder
	local.field(extraTimestamp, timestampField(meta, false))
	central.field(extraTimestamp, timestampField(meta, true))
	local.field(extraUnix3, unix3Field(meta))
	central.field(extraUnix3, unix3Field(meta))
	local.field(extraASi, asiField(meta))
	rec.extra = central

	var size uint32
	if method == MethodStore && w.limit >= 0 {
		size = uint32(w.limit)
	}
	h := make([]byte, 0, localHeaderLen+len(name)+len(local))
	h = binary.LittleEndian.AppendUint32(h, sigLocalFile)
	h = binary.LittleEndian.AppendUint16(h, rec.version)
	h = binary.LittleEndian.AppendUint16(h, flags)
	h = binary.LittleEndian.AppendUint16(h, method)
	h = binary.LittleEndian.AppendUint32(h, rec.modified)
	h = binary.LittleEndian.AppendUint32(h, 0)
	h = binary.LittleEndian.AppendUint32(h, size)
	h = binary.LittleEndian.AppendUint32(h, size)
	h = binary.LittleEndian.AppendUint16(h, uint16(len(name)))
	h = binary.LittleEndian.AppendUint16(h, uint16(len(local)))
	h = append(h, name...)
	h = append(h, local...)
	if _, err := w.out.Write(h); err != nil {
		return writeError(err)
	}

	w.cur = rec
	w.crc = 0
	w.written = 0
	w.dataStart = w.out.n
	if err := w.openEncoder(method); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.WriteData(body); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) openEncoder(method uint16) error {
	w.enc = nil
	switch method {
	case MethodStore:
		return nil
	case MethodDeflate:
		if w.flate == nil {
			fw, err := flate.NewWriter(w.out, w.level)
			if err != nil {
				return errors.Wrap(err, errors.CodeInvalidConfig, "zip: invalid deflate level")
			}
			w.flate = fw
		} else {
			w.flate.Reset(w.out)
		}
		w.enc = w.flate
		return nil
	}

	var code compressor.Code
	var sink io.Writer = w.out
	level := w.level
	switch method {
	case MethodBzip2:
		code = compressor.Bzip2
		if level == 0 {
			level = 1
		}
	case MethodLzma:
		code = compressor.Lzma
		sink = &lzmaHeaderWriter{w: w.out}
	case MethodXz:
		code = compressor.Xz
	case MethodZstd:
		code = compressor.Zstd
		if level == 0 {
			level = 1
		}
	}
	b, err := compressor.NewBackend(code)
	if err != nil {
		return err
	}
	if level >= 0 {
		if err := b.SetOption("compression-level", strconv.Itoa(level)); err != nil {
			return err
		}
	}
	if err := b.Open(sink); err != nil {
		return errors.WithSeverity(errors.Wrapf(err, errors.CodeIO, "zip: %s encoder failed", b.Name()),
			errors.SeverityFatal)
	}
	w.enc = b
	return nil
}

// WriteData writes entry data. For entries with a declared size, data
// past that size is refused.
func (w *Writer) WriteData(p []byte) (int, error) {
	if w.cur == nil {
		return 0, errors.New(errors.CodeMisuse, "zip: WriteData called without an entry")
	}
	var overflow error
	if w.limit >= 0 {
		remain := w.limit - w.written
		if int64(len(p)) > remain {
			p = p[:remain]
			overflow = errors.Newf(errors.CodeInvalidInput,
				"zip: write exceeds the declared size of %s", w.cur.name)
		}
	}
	if w.written+int64(len(p)) > uint32Max {
		return 0, errors.Newf(errors.CodeLimitExceeded, "zip: %s exceeds 4 GiB", w.cur.name)
	}
	if len(p) == 0 {
		return 0, overflow
	}

	var err error
	var n int
	if w.enc != nil {
		n, err = w.enc.Write(p)
	} else {
		n, err = w.out.Write(p)
	}
	w.crc = crc32.Update(w.crc, crc32.IEEETable, p[:n])
	w.written += int64(n)
	if err != nil {
		return n, writeError(err)
	}
	return n, overflow
}

// FinishEntry completes the entry data and writes the data descriptor.
// A stored entry shorter than its declared size is padded with zeros and
// reported as a warning.
func (w *Writer) FinishEntry() error {
	if w.cur == nil {
		return nil
	}
	rec := w.cur
	w.cur = nil

	var warn error
	if rec.method == MethodStore && w.limit > w.written {
		short := w.limit - w.written
		zeros := make([]byte, 8192)
		for short > 0 {
			n := int64(len(zeros))
			if n > short {
				n = short
			}
			if _, err := w.out.Write(zeros[:n]); err != nil {
				return writeError(err)
			}
			w.crc = crc32.Update(w.crc, crc32.IEEETable, zeros[:n])
			w.written += n
			short -= n
		}
		warn = errors.Newf(errors.CodeSizeMismatch,
			"zip: %s is shorter than its declared size, padded with zeros", rec.name)
	}
	if w.enc != nil {
		if err := w.enc.Close(); err != nil {
			return writeError(err)
		}
		w.enc = nil
	}

	rec.crc = w.crc
	rec.usize = w.written
	rec.csize = w.out.n - w.dataStart
	if rec.csize > uint32Max {
		return errors.Newf(errors.CodeLimitExceeded, "zip: %s exceeds 4 GiB compressed", rec.name)
	}

	d := make([]byte, 0, descriptorLen)
	d = binary.LittleEndian.AppendUint32(d, sigDescriptor)
	d = binary.LittleEndian.AppendUint32(d, rec.crc)
	d = binary.LittleEndian.AppendUint32(d, uint32(rec.csize))
	d = binary.LittleEndian.AppendUint32(d, uint32(rec.usize))
	if _, err := w.out.Write(d); err != nil {
		return writeError(err)
	}
	w.entries = append(w.entries, rec)
	w.logger.WithEntry(rec.name).Debug(context.Background(), "zip entry written",
		"method", methodName(rec.method),
		"compressed", rec.csize,
		"uncompressed", rec.usize)
	return warn
}

// Close writes the central directory and the end record.
func (w *Writer) Close() error {
	if w.out == nil {
		return nil
	}
	warn := w.FinishEntry()
	if warn != nil && !errors.IsWarning(warn) {
		return warn
	}
	if len(w.entries) > uint16Max {
		return errors.New(errors.CodeLimitExceeded, "zip: too many entries for a ZIP archive without ZIP64")
	}

	start := w.out.n
	for _, rec := range w.entries {
		h := make([]byte, 0, centralHeaderLen+len(rec.name)+len(rec.extra))
		h = binary.LittleEndian.AppendUint32(h, sigCentralDir)
		h = binary.LittleEndian.AppendUint16(h, versionMadeByUnix|20)
		h = binary.LittleEndian.AppendUint16(h, rec.version)
		h = binary.LittleEndian.AppendUint16(h, rec.flags)
		h = binary.LittleEndian.AppendUint16(h, rec.method)
		h = binary.LittleEndian.AppendUint32(h, rec.modified)
		h = binary.LittleEndian.AppendUint32(h, rec.crc)
		h = binary.LittleEndian.AppendUint32(h, uint32(rec.csize))
		h = binary.LittleEndian.AppendUint32(h, uint32(rec.usize))
		h = binary.LittleEndian.AppendUint16(h, uint16(len(rec.name)))
		h = binary.LittleEndian.AppendUint16(h, uint16(len(rec.extra)))
		h = binary.LittleEndian.AppendUint16(h, 0) // comment
		h = binary.LittleEndian.AppendUint16(h, 0) // disk
		h = binary.LittleEndian.AppendUint16(h, 0) // internal attributes
		external := rec.mode << 16
		if rec.dir {
			external |= 0x10
		}
		h = binary.LittleEndian.AppendUint32(h, external)
		h = binary.LittleEndian.AppendUint32(h, uint32(rec.offset))
		h = append(h, rec.name...)
		h = append(h, rec.extra...)
		if _, err := w.out.Write(h); err != nil {
			return writeError(err)
		}
	}
	size := w.out.n - start
	if start > uint32Max || size > uint32Max {
		return errors.New(errors.CodeLimitExceeded, "zip: central directory is beyond 4 GiB")
	}

	end := make([]byte, 0, endOfCentralLen)
	end = binary.LittleEndian.AppendUint32(end, sigEndOfCentral)
	end = binary.LittleEndian.AppendUint16(end, 0)
	end = binary.LittleEndian.AppendUint16(end, 0)
	end = binary.LittleEndian.AppendUint16(end, uint16(len(w.entries)))
	end = binary.LittleEndian.AppendUint16(end, uint16(len(w.entries)))
	end = binary.LittleEndian.AppendUint32(end, uint32(size))
	end = binary.LittleEndian.AppendUint32(end, uint32(start))
	end = binary.LittleEndian.AppendUint16(end, 0)
	if _, err := w.out.Write(end); err != nil {
		return writeError(err)
	}
	w.out = nil
	return warn
}

func versionNeeded(method uint16, dir bool) uint16 {
	switch method {
	case MethodStore:
		if dir {
			return 20
		}
		return 10
	case MethodBzip2:
		return 46
	case MethodLzma, MethodXz, MethodZstd:
		return 63
	}
	return 20
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func writeError(err error) error {
	var ae errors.ArchiveError
	if errors.As(err, &ae) && errors.IsFatal(err) {
		return err
	}
	return errors.WithSeverity(errors.Wrap(err, errors.CodeIO, "zip: write failed"), errors.SeverityFatal)
}

// lzmaHeaderWriter replaces the 13-byte .lzma header written by the
// encoder with the ZIP LZMA header: SDK version, properties size and the
// five property bytes.
type lzmaHeaderWriter struct {
	w    io.Writer
	hdr  []byte
	done bool
}

func (l *lzmaHeaderWriter) Write(p []byte) (int, error) {
	n := len(p)
	if !l.done {
		take := 13 - len(l.hdr)
		if take > len(p) {
			take = len(p)
		}
		l.hdr = append(l.hdr, p[:take]...)
		p = p[take:]
		if len(l.hdr) < 13 {
			return n, nil
		}
		l.done = true
		out := append([]byte{9, 20, 5, 0}, l.hdr[:5]...)
		if _, err := l.w.Write(out); err != nil {
			return 0, err
		}
	}
	if len(p) > 0 {
		if _, err := l.w.Write(p); err != nil {
			return 0, err
		}
	}
	return n, nil
}
