package cpio

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/format"
	"github.com/jmgilman/go/archive/internal/logging"
	"github.com/jmgilman/go/archive/stream"
)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderLogger sets the logger used for diagnostics.
func WithReaderLogger(l *logging.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = l
	}
}

type linkKey struct {
	devMajor, devMinor uint32
	ino                uint64
}

// Reader decodes odc, newc and newc-crc archives.
type Reader struct {
	logger *logging.Logger
	links  map[linkKey]string
	done   bool

	pathname  string
	remaining int64
	padding   int64
	checkSum  bool
	sum       uint32
	expected  uint32
	finished  bool
}

// NewReader returns a cpio reader.
func NewReader(opts ...ReaderOption) *Reader {
	r := &Reader{links: make(map[linkKey]string)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) Name() string {
	return "cpio"
}

// Bid recognizes the three ASCII magic numbers.
func (r *Reader) Bid(c *stream.Cursor) (int, error) {
	p, err := format.Peek(c, 6)
	if err != nil {
		return 0, err
	}
	switch string(p[:min(len(p), 6)]) {
	case magicODC, magicNewc, magicNewcCRC:
		return 48, nil
	}
	return 0, nil
}

func (r *Reader) ReadHeader(c *stream.Cursor, e *entry.Entry) error {
	if r.done {
		return io.EOF
	}
	e.Clear()
	r.pathname = ""
	r.remaining, r.padding = 0, 0
	r.checkSum, r.sum, r.expected = false, 0, 0
	r.finished = false

	p, err := format.Peek(c, 6)
	if err != nil {
		return err
	}
	if len(p) == 0 {
		return io.EOF
	}
	if len(p) < 6 {
		return errors.New(errors.CodeTruncated, "truncated cpio header")
	}

	var name string
	switch string(p[:6]) {
	case magicODC:
		name, err = r.readODC(c, e)
	case magicNewc, magicNewcCRC:
		name, err = r.readNewc(c, e, string(p[:6]) == magicNewcCRC)
	default:
		return errors.New(errors.CodeMalformed, "Bad cpio header magic")
	}
	if err != nil {
		return err
	}

	if name == trailerName {
		r.done = true
		return io.EOF
	}
	e.SetPathname(name)
	r.pathname = name

	if e.IsSymlink() {
		target, err := format.ReadFull(c, int(r.remaining), "cpio symlink target")
		if err != nil {
			return err
		}
		e.SetSymlink(string(target))
		e.SetSize(0)
		r.remaining = 0
	}

	if e.Nlink() > 1 && !e.IsDir() {
		major, minor := e.Dev()
		key := linkKey{major, minor, e.Ino()}
		if first, ok := r.links[key]; ok {
			e.SetHardlink(first)
			r.logger.WithEntry(name).Debug(context.Background(), "cpio hardlink", "target", first)
		} else {
			r.links[key] = name
		}
	}
	return nil
}

func (r *Reader) readODC(c *stream.Cursor, e *entry.Entry) (string, error) {
	h, err := format.ReadFull(c, odcHeaderLen, "cpio header")
	if err != nil {
		return "", err
	}
	p := parser{h: h, base: 8}
	dev := p.get(odcDev)
	e.SetIno(uint64(p.get(odcIno)))
	e.SetMode(uint32(p.get(odcMode)))
	e.SetUID(p.get(odcUID))
	e.SetGID(p.get(odcGID))
	e.SetNlink(uint32(p.get(odcNlink)))
	rdev := p.get(odcRdev)
	e.SetMtime(time.Unix(p.get(odcMtime), 0))
	namesize := p.get(odcNamesize)
	filesize := p.get(odcFilesize)
	if p.err != nil {
		return "", p.err
	}
	e.SetDev(uint32(dev>>8), uint32(dev&0xff))
	e.SetRdev(uint32(rdev>>8), uint32(rdev&0xff))
	e.SetSize(filesize)

	name, err := readName(c, namesize)
	if err != nil {
		return "", err
	}
	r.remaining = filesize
	return name, nil
}

func (r *Reader) readNewc(c *stream.Cursor, e *entry.Entry, withSum bool) (string, error) {
	h, err := format.ReadFull(c, newcHeaderLen, "cpio header")
	if err != nil {
		return "", err
	}
	p := parser{h: h, base: 16}
	e.SetIno(uint64(p.get(newcIno)))
	e.SetMode(uint32(p.get(newcMode)))
	e.SetUID(p.get(newcUID))
	e.SetGID(p.get(newcGID))
	e.SetNlink(uint32(p.get(newcNlink)))
	e.SetMtime(time.Unix(p.get(newcMtime), 0))
	filesize := p.get(newcFilesize)
	e.SetDev(uint32(p.get(newcDevMajor)), uint32(p.get(newcDevMinor)))
	e.SetRdev(uint32(p.get(newcRdevMajor)), uint32(p.get(newcRdevMinor)))
	namesize := p.get(newcNamesize)
	check := p.get(newcCheck)
	if p.err != nil {
		return "", p.err
	}
	e.SetSize(filesize)

	name, err := readName(c, namesize)
	if err != nil {
		return "", err
	}
	if err := format.SkipFull(c, pad4(newcHeaderLen+namesize), "cpio header padding"); err != nil {
		return "", err
	}
	r.remaining = filesize
	r.padding = pad4(filesize)
	r.checkSum = withSum
	r.expected = uint32(check)
	return name, nil
}

// readName reads a NUL terminated name of namesize bytes.
func readName(c *stream.Cursor, namesize int64) (string, error) {
	if namesize <= 0 || namesize > 1<<20 {
		return "", errors.Newf(errors.CodeMalformed, "Damaged cpio header: name size %d", namesize)
	}
	b, err := format.ReadFull(c, int(namesize), "cpio file name")
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}

// ReadData returns the entry body. A newc-crc checksum mismatch is
// reported once, after the last block.
func (r *Reader) ReadData(c *stream.Cursor) ([]byte, error) {
	if r.remaining == 0 {
		if r.finished {
			return nil, io.EOF
		}
		if err := r.finish(c); err != nil {
			return nil, err
		}
		if r.checkSum && r.sum != r.expected {
			err := errors.Newf(errors.CodeChecksum,
				"cpio checksum mismatch: 0x%08x should be 0x%08x", r.sum, r.expected)
			return nil, err
		}
		return nil, io.EOF
	}

	p, err := c.Peek(1)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(p) == 0 {
		return nil, errors.New(errors.CodeTruncated, "truncated cpio file data")
	}
	n := len(p)
	if int64(n) > r.remaining {
		n = int(r.remaining)
	}
	data := p[:n]
	if err := c.Consume(n); err != nil {
		return nil, err
	}
	r.remaining -= int64(n)
	if r.checkSum {
		for _, b := range data {
			r.sum += uint32(b)
		}
	}
	return data, nil
}

func (r *Reader) finish(c *stream.Cursor) error {
	r.finished = true
	return format.SkipFull(c, r.padding, "cpio padding")
}

func (r *Reader) SkipData(c *stream.Cursor) error {
	if r.finished {
		return nil
	}
	if err := format.SkipFull(c, r.remaining, "cpio file data"); err != nil {
		return err
	}
	r.remaining = 0
	return r.finish(c)
}

func (r *Reader) Close() error {
	r.links = nil
	return nil
}
