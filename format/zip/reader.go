package zip

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"io"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"

	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/format"
	"github.com/jmgilman/go/archive/internal/logging"
	"github.com/jmgilman/go/archive/stream"
)

const (
	// sfxWindow bounds the search for the first local header in a
	// self-extracting archive.
	sfxWindow = 128 * 1024

	// outputBufferSize is the size of the decompression output buffer.
	outputBufferSize = 256 * 1024
)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderLogger sets the logger used for diagnostics.
func WithReaderLogger(l *logging.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = l
	}
}

// Reader decodes ZIP archives front to back.
type Reader struct {
	logger  *logging.Logger
	entries int
	atEnd   bool
	buf     []byte
	flate   io.ReadCloser

	// Per-entry state.
	e           *entry.Entry
	pathname    string
	flags       uint16
	method      uint16
	zip64       bool
	lengthAtEnd bool
	encrypted   bool
	crc         uint32
	csize       int64
	usize       int64

	src        *source
	dec        io.Reader
	decClose   func()
	decErr     error
	decEOF     bool
	runningCRC uint32
	produced   int64
	endOfEntry bool
}

// NewReader returns a ZIP reader.
func NewReader(opts ...ReaderOption) *Reader {
	r := &Reader{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) Name() string {
	return "zip"
}

// Bid recognizes a local file header or an empty archive at the start of
// the stream, and self-extracting archives that carry a local header
// within the first 128 KiB.
func (r *Reader) Bid(c *stream.Cursor) (int, error) {
	p, err := format.Peek(c, 4)
	if err != nil {
		return 0, err
	}
	if len(p) < 4 {
		return 0, nil
	}
	if p[0] == 'P' && p[1] == 'K' {
		switch {
		case p[2] == 3 && p[3] == 4, p[2] == 5 && p[3] == 6:
			return 30, nil
		case p[2] == '0' && p[3] == '0':
			return 29, nil
		}
		return 0, nil
	}
	if p[0] == 'M' && p[1] == 'Z' {
		p, err = format.Peek(c, sfxWindow)
		if err != nil {
			return 0, err
		}
		if bytes.Contains(p[2:], []byte("PK\x03\x04")) {
			return 20, nil
		}
	}
	return 0, nil
}

// ReadHeader reads the next local file header.
func (r *Reader) ReadHeader(c *stream.Cursor, e *entry.Entry) error {
	if r.atEnd {
		return io.EOF
	}
	for {
		p, err := format.Peek(c, 4)
		if err != nil {
			return err
		}
		if len(p) < 4 {
			return io.EOF
		}
		if p[0] == 'M' && p[1] == 'Z' && r.entries == 0 {
			if err := r.skipSFX(c); err != nil {
				return err
			}
			continue
		}
		if p[0] != 'P' || p[1] != 'K' {
			return errors.New(errors.CodeMalformed, "Bad ZIP file signature")
		}
		switch binary.LittleEndian.Uint32(p) {
		case sigLocalFile:
			return r.readLocalHeader(c, e)
		case sigCentralDir, sigEndOfCentral, sigZip64End:
			r.atEnd = true
			return io.EOF
		case sigDescriptor:
			return errors.New(errors.CodeMalformed, "Unexpected ZIP data descriptor")
		case 0x30304b50:
			// Spanning marker written before the first header.
			if err := c.Consume(4); err != nil {
				return err
			}
		default:
			return errors.New(errors.CodeMalformed, "Damaged ZIP archive: unknown signature")
		}
	}
}

func (r *Reader) skipSFX(c *stream.Cursor) error {
	p, err := format.Peek(c, sfxWindow)
	if err != nil {
		return err
	}
	i := bytes.Index(p, []byte("PK\x03\x04"))
	if i < 0 {
		return errors.New(errors.CodeMalformed, "Couldn't find PK\\003\\004 in self-extracting archive")
	}
	r.logger.Debug(context.Background(), "skipping self-extracting stub", "bytes", i)
	return c.Consume(i)
}

func (r *Reader) readLocalHeader(c *stream.Cursor, e *entry.Entry) error {
	r.resetEntry(e)

	h, err := format.ReadFull(c, localHeaderLen, "ZIP file header")
	if err != nil {
		return err
	}
	r.flags = binary.LittleEndian.Uint16(h[6:])
	r.method = binary.LittleEndian.Uint16(h[8:])
	modified := binary.LittleEndian.Uint32(h[10:])
	r.crc = binary.LittleEndian.Uint32(h[14:])
	fields := localFields{
		compressedSize:   int64(binary.LittleEndian.Uint32(h[18:])),
		uncompressedSize: int64(binary.LittleEndian.Uint32(h[22:])),
	}
	nameLen := int(binary.LittleEndian.Uint16(h[26:]))
	extraLen := int(binary.LittleEndian.Uint16(h[28:]))

	raw, err := format.ReadFull(c, nameLen, "ZIP file name")
	if err != nil {
		return err
	}
	rawName := bytes.Clone(raw)
	extraRaw, err := format.ReadFull(c, extraLen, "ZIP extra data")
	if err != nil {
		return err
	}
	extra := bytes.Clone(extraRaw)

	r.entries++
	r.lengthAtEnd = r.flags&flagLengthAtEnd != 0
	r.encrypted = r.flags&(flagEncrypted|flagStrongCrypt) != 0 || r.method == MethodAES

	name := string(rawName)
	e.SetPathname(name)
	if strings.HasSuffix(name, "/") {
		e.SetMode(entry.TypeDir | 0o755)
	} else {
		e.SetMode(entry.TypeReg | 0o644)
	}
	e.SetMtime(dosTime(modified))

	warn := parseExtra(extra, rawName, e, &fields)
	r.zip64 = fields.zip64
	r.csize = fields.compressedSize
	r.usize = fields.uncompressedSize

	if e.Filetype() == 0 {
		e.SetFiletype(entry.TypeReg)
	}
	if strings.HasSuffix(name, "/") && e.IsRegular() {
		e.SetFiletype(entry.TypeDir)
	}
	if !r.lengthAtEnd || r.usize > 0 {
		e.SetSize(r.usize)
	}
	if e.IsDir() {
		e.SetSize(0)
	}
	e.SetEncrypted(r.encrypted)
	r.pathname = e.Pathname()

	sizeKnown := !r.lengthAtEnd || r.csize > 0
	switch {
	case sizeKnown:
		r.src = newBoundedSource(c, r.csize)
	case r.method == MethodDeflate && !r.encrypted:
		r.src = newOpenSource(c)
	default:
		r.src = newScanSource(c, r.zip64, r.method == MethodStore && !r.encrypted)
	}

	if e.IsSymlink() && !r.encrypted {
		target, err := r.readAll(c)
		if err != nil && !errors.IsWarning(err) {
			return err
		}
		warn = errors.Combine(warn, err)
		e.SetSymlink(string(target))
		e.SetSize(0)
	}
	r.logger.WithEntry(r.pathname).Debug(context.Background(), "zip entry",
		"method", methodName(r.method),
		"sized", r.src.limit >= 0,
		"encrypted", r.encrypted)
	return warn
}

func (r *Reader) resetEntry(e *entry.Entry) {
	r.closeDecoder()
	e.Clear()
	r.e = e
	r.pathname = ""
	r.flags, r.method = 0, 0
	r.zip64, r.lengthAtEnd, r.encrypted = false, false, false
	r.crc, r.csize, r.usize = 0, 0, 0
	r.src = nil
	r.decErr = nil
	r.decEOF = false
	r.runningCRC = 0
	r.produced = 0
	r.endOfEntry = false
}

// readAll reads the rest of the entry body. Used for symlink targets.
func (r *Reader) readAll(c *stream.Cursor) ([]byte, error) {
	var out []byte
	for {
		p, err := r.ReadData(c)
		out = append(out, p...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			if errors.IsWarning(err) {
				return out, err
			}
			return nil, err
		}
	}
}

// ReadData returns the next block of entry data. After the last block it
// checks the sizes and the CRC and reports a mismatch once as a warning.
func (r *Reader) ReadData(c *stream.Cursor) ([]byte, error) {
	if r.src == nil || r.endOfEntry {
		return nil, io.EOF
	}
	if r.encrypted {
		return nil, errors.New(errors.CodeUnsupported, "Encrypted file is unsupported")
	}
	if r.buf == nil {
		r.buf = make([]byte, outputBufferSize)
	}

	var n int
	var err error
	switch r.method {
	case MethodStore:
		n, err = r.src.Read(r.buf)
	case MethodDeflate, MethodBzip2, MethodLzma, MethodZstd, MethodXz:
		n, err = r.readDecoded()
	default:
		return nil, errors.Newf(errors.CodeUnsupported,
			"Unsupported ZIP compression method (%d: %s)", r.method, methodName(r.method))
	}

	if n > 0 {
		r.runningCRC = crc32.Update(r.runningCRC, crc32.IEEETable, r.buf[:n])
		r.produced += int64(n)
		if err != nil && err != io.EOF {
			r.decErr = err
		}
		return r.buf[:n], nil
	}
	if err == io.EOF {
		if err := r.finish(c); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return nil, dataError(err)
}

func (r *Reader) readDecoded() (int, error) {
	if r.decErr != nil {
		return 0, r.decErr
	}
	if r.decEOF {
		return 0, io.EOF
	}
	if r.dec == nil {
		if err := r.openDecoder(); err != nil {
			return 0, err
		}
	}
	n, err := r.dec.Read(r.buf)
	if err == io.EOF {
		r.decEOF = true
		if n > 0 {
			err = nil
		}
	}
	return n, err
}

func (r *Reader) openDecoder() error {
	switch r.method {
	case MethodDeflate:
		if r.flate == nil {
			r.flate = flate.NewReader(r.src)
		} else if err := r.flate.(flate.Resetter).Reset(r.src, nil); err != nil {
			return err
		}
		r.dec = r.flate
		r.decClose = nil
	case MethodBzip2:
		zr, err := bzip2.NewReader(r.src, nil)
		if err != nil {
			return err
		}
		r.dec = zr
		r.decClose = func() { _ = zr.Close() }
	case MethodLzma:
		zr, err := r.lzmaReader()
		if err != nil {
			return err
		}
		r.dec = zr
		r.decClose = nil
	case MethodZstd:
		zr, err := zstd.NewReader(r.src, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return err
		}
		r.dec = zr
		r.decClose = zr.Close
	case MethodXz:
		zr, err := xz.NewReader(r.src)
		if err != nil {
			return err
		}
		r.dec = zr
		r.decClose = nil
	}
	return nil
}

// lzmaReader converts the ZIP LZMA header (version, properties size and
// properties) to the .lzma header the decoder expects.
func (r *Reader) lzmaReader() (io.Reader, error) {
	var h [4]byte
	if _, err := io.ReadFull(r.src, h[:]); err != nil {
		return nil, err
	}
	propsLen := int(binary.LittleEndian.Uint16(h[2:]))
	if propsLen != 5 {
		return nil, errors.Newf(errors.CodeMalformed, "Invalid ZIP LZMA properties size %d", propsLen)
	}
	hdr := make([]byte, 13)
	if _, err := io.ReadFull(r.src, hdr[:5]); err != nil {
		return nil, err
	}
	size := uint64(r.usize)
	if r.flags&flagLzmaEOS != 0 || (r.lengthAtEnd && r.usize == 0) {
		size = ^uint64(0)
	}
	binary.LittleEndian.PutUint64(hdr[5:], size)
	return lzma.NewReader(io.MultiReader(bytes.NewReader(hdr), r.src))
}

func (r *Reader) closeDecoder() {
	if r.decClose != nil {
		r.decClose()
	}
	r.dec = nil
	r.decClose = nil
}

// finish consumes what is left of the entry, reads the data descriptor
// and verifies the entry.
func (r *Reader) finish(c *stream.Cursor) error {
	r.endOfEntry = true
	r.closeDecoder()

	consumed := r.src.n
	if err := r.drain(c); err != nil {
		return err
	}
	if err := r.readDescriptor(c); err != nil {
		return err
	}

	var warn error
	if consumed != r.csize {
		warn = errors.Combine(warn, errors.Newf(errors.CodeSizeMismatch,
			"ZIP compressed data is wrong size (read %d, expected %d)", consumed, r.csize))
	}
	produced, declared := r.produced, r.usize
	if !r.zip64 {
		produced &= uint32Max
		declared &= uint32Max
	}
	if produced != declared {
		warn = errors.Combine(warn, errors.Newf(errors.CodeSizeMismatch,
			"ZIP uncompressed data is wrong size (read %d, expected %d)", r.produced, r.usize))
	}
	if r.runningCRC != r.crc {
		warn = errors.Combine(warn, errors.Newf(errors.CodeChecksum,
			"ZIP bad CRC: 0x%08x should be 0x%08x", r.runningCRC, r.crc))
	}
	return warn
}

// drain moves the cursor to the end of the compressed data.
func (r *Reader) drain(c *stream.Cursor) error {
	switch {
	case r.src.scan:
		if _, err := io.Copy(io.Discard, r.src); err != nil {
			return dataError(err)
		}
	case r.src.limit >= 0:
		if rest := r.src.limit - r.src.n; rest > 0 {
			if err := format.SkipFull(c, rest, "ZIP file data"); err != nil {
				return err
			}
			r.src.n = r.src.limit
		}
	}
	r.src.done = true
	return nil
}

// readDescriptor reads the data descriptor that follows the data of a
// length-at-end entry. The signature is optional.
func (r *Reader) readDescriptor(c *stream.Cursor) error {
	if !r.lengthAtEnd {
		return nil
	}
	d := r.src.desc
	if d == nil {
		p, err := format.Peek(c, 4)
		if err != nil {
			return err
		}
		n := descriptorLen
		if r.zip64 {
			n = descriptor64Len
		}
		withSig := bytes.HasPrefix(p, descriptorMagic)
		if !withSig {
			n -= 4
		}
		b, err := format.ReadFull(c, n, "ZIP data descriptor")
		if err != nil {
			return err
		}
		if !withSig {
			b = append(append([]byte{}, descriptorMagic...), b...)
		}
		d = parseDescriptor(b, r.zip64)
	}
	r.crc = d.crc
	r.csize = d.compressedSize
	r.usize = d.uncompressedSize
	if r.e != nil && !r.e.IsDir() && !r.e.IsSymlink() {
		r.e.SetSize(r.usize)
	}
	return nil
}

// SkipData discards the rest of the entry. Entries of known size are
// skipped without decoding. Integrity warnings are not reported.
func (r *Reader) SkipData(c *stream.Cursor) error {
	if r.src == nil || r.endOfEntry {
		return nil
	}
	if r.src.limit < 0 && !r.src.scan {
		// Deflate of unknown length: only the decoder knows where it ends.
		for {
			_, err := r.ReadData(c)
			if err == io.EOF || errors.IsWarning(err) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}
	r.endOfEntry = true
	r.closeDecoder()
	if err := r.drain(c); err != nil {
		return err
	}
	return r.readDescriptor(c)
}

func (r *Reader) Close() error {
	r.closeDecoder()
	if r.flate != nil {
		_ = r.flate.Close()
		r.flate = nil
	}
	r.buf = nil
	return nil
}

// dataError maps a decoding failure to a fatal archive error.
func dataError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return errors.Wrap(err, errors.CodeTruncated, "Truncated ZIP file data")
	}
	var ae errors.ArchiveError
	if errors.As(err, &ae) {
		return err
	}
	return errors.Wrap(err, errors.CodeMalformed, "ZIP decompression failed")
}
