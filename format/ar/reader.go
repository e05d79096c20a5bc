package ar

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/format"
	"github.com/jmgilman/go/archive/stream"
)

// Reader decodes BSD and GNU ar archives.
type Reader struct {
	started   bool
	strtab    []byte
	remaining int64
	padding   int64
	finished  bool
}

// NewReader returns an ar reader.
func NewReader() *Reader {
	return &Reader{}
}

func (r *Reader) Name() string {
	return "ar"
}

func (r *Reader) Bid(c *stream.Cursor) (int, error) {
	p, err := format.Peek(c, len(globalHeader))
	if err != nil {
		return 0, err
	}
	if bytes.HasPrefix(p, []byte(globalHeader)) {
		return 64, nil
	}
	return 0, nil
}

func (r *Reader) ReadHeader(c *stream.Cursor, e *entry.Entry) error {
	if !r.started {
		g, err := format.ReadFull(c, len(globalHeader), "ar global header")
		if err != nil {
			return err
		}
		if string(g) != globalHeader {
			return errors.New(errors.CodeMalformed, "Not an ar archive")
		}
		r.started = true
	}
	if !r.finished {
		if err := r.SkipData(c); err != nil {
			return err
		}
	}
	e.Clear()
	r.remaining, r.padding, r.finished = 0, 0, false

	p, err := format.Peek(c, headerLen)
	if err != nil {
		return err
	}
	// ar has no trailer; zero block padding also ends the archive.
	if len(p) == 0 || allZero(p) {
		r.finished = true
		return io.EOF
	}
	h, err := format.ReadFull(c, headerLen, "ar header")
	if err != nil {
		return err
	}
	if string(h[58:60]) != headerMagic {
		return errors.New(errors.CodeMalformed, "Incorrect file header signature")
	}
	rawName := strings.TrimRight(slice(h, fieldName), " ")

	size, err := parseNumber(slice(h, fieldSize), 10)
	if err != nil {
		return err
	}
	mtime, err := parseNumber(slice(h, fieldMtime), 10)
	if err != nil {
		return err
	}
	uid, err := parseNumber(slice(h, fieldUID), 10)
	if err != nil {
		return err
	}
	gid, err := parseNumber(slice(h, fieldGID), 10)
	if err != nil {
		return err
	}
	mode, err := parseNumber(slice(h, fieldMode), 8)
	if err != nil {
		return err
	}

	e.SetMtime(time.Unix(mtime, 0))
	e.SetUID(uid)
	e.SetGID(gid)
	e.SetMode(uint32(mode))
	if e.Filetype() == 0 {
		e.SetFiletype(entry.TypeReg)
	}
	r.padding = size % 2

	switch {
	case rawName == gnuStringTab:
		table, err := format.ReadFull(c, int(size), "ar filename table")
		if err != nil {
			return err
		}
		r.strtab = bytes.Clone(table)
		e.SetPathname(gnuStringTab)
		e.SetSize(0)
		return r.SkipData(c)

	case rawName == gnuSymbolTab || rawName == gnuSymbol64:
		e.SetPathname(rawName)

	case strings.HasPrefix(rawName, bsdLongPrefix):
		n, err := strconv.Atoi(rawName[len(bsdLongPrefix):])
		if err != nil || n < 0 || int64(n) > size {
			return errors.New(errors.CodeMalformed, "Bad input file size")
		}
		name, err := format.ReadFull(c, n, "ar long file name")
		if err != nil {
			return err
		}
		e.SetPathname(string(bytes.TrimRight(name, "\x00")))
		size -= int64(n)

	case strings.HasPrefix(rawName, "/"):
		off, err := strconv.Atoi(rawName[1:])
		if err != nil {
			return errors.Newf(errors.CodeMalformed, "Invalid ar member name %q", rawName)
		}
		name, err := r.lookup(off)
		if err != nil {
			return err
		}
		e.SetPathname(name)

	default:
		e.SetPathname(strings.TrimSuffix(rawName, "/"))
	}
	e.SetSize(size)
	r.remaining = size
	return nil
}

// lookup returns the GNU long name at off in the string table.
func (r *Reader) lookup(off int) (string, error) {
	if r.strtab == nil || off < 0 || off >= len(r.strtab) {
		return "", errors.New(errors.CodeMalformed, "Can't find long filename for GNU/SVR4 archive entry")
	}
	name := r.strtab[off:]
	if i := bytes.IndexByte(name, '\n'); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSuffix(string(name), "/"), nil
}

func (r *Reader) ReadData(c *stream.Cursor) ([]byte, error) {
	if r.remaining == 0 {
		if !r.finished {
			r.finished = true
			if err := format.SkipFull(c, r.padding, "ar padding"); err != nil {
				return nil, err
			}
		}
		return nil, io.EOF
	}
	p, err := c.Peek(1)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(p) == 0 {
		return nil, errors.New(errors.CodeTruncated, "truncated ar member data")
	}
	n := int64(len(p))
	if n > r.remaining {
		n = r.remaining
	}
	data := p[:n]
	if err := c.Consume(int(n)); err != nil {
		return nil, err
	}
	r.remaining -= n
	return data, nil
}

func (r *Reader) SkipData(c *stream.Cursor) error {
	if r.finished {
		return nil
	}
	if err := format.SkipFull(c, r.remaining+r.padding, "ar member data"); err != nil {
		return err
	}
	r.remaining = 0
	r.finished = true
	return nil
}

func (r *Reader) Close() error {
	r.strtab = nil
	return nil
}

func allZero(p []byte) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}
