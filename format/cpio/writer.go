package cpio

import (
	"fmt"
	"io"

	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
)

const (
	odcMaxIno  = 0o777777
	odcMaxSize = 0o77777777777
	odcMax6    = 0o777777
	newcMax    = 0xffffffff
)

// Writer encodes odc or newc archives.
type Writer struct {
	variant   Variant
	out       io.Writer
	remaining int64
	padding   int64
	name      string
	inEntry   bool
}

// NewWriter returns a writer for the given header variant.
func NewWriter(v Variant) *Writer {
	return &Writer{variant: v}
}

func (w *Writer) Name() string {
	return w.variant.String()
}

// SetOption recognizes no options.
func (w *Writer) SetOption(key, value string) error {
	return errors.ErrOptionUnknown
}

func (w *Writer) Open(out io.Writer) error {
	w.out = out
	return nil
}

// WriteHeader writes the header and name of e. Symbolic link targets are
// written as the body.
func (w *Writer) WriteHeader(e *entry.Entry) error {
	if w.inEntry {
		if err := w.FinishEntry(); err != nil && !errors.IsWarning(err) {
			return err
		}
	}
	name := e.Pathname()
	if name == "" {
		return errors.New(errors.CodeInvalidInput, "Invalid empty pathname")
	}
	if e.Filetype() == 0 {
		return errors.Newf(errors.CodeInvalidInput, "Filetype missing for %s", name)
	}

	var body []byte
	size := e.Size()
	switch {
	case e.IsSymlink():
		body = []byte(e.Symlink())
		size = int64(len(body))
	case !e.IsRegular():
		size = 0
	}
	if e.Hardlink() != "" && !e.IsRegular() {
		size = 0
	}

	var err error
	switch w.variant {
	case Newc:
		err = w.writeNewc(e, name, size)
	default:
		err = w.writeODC(e, name, size)
	}
	if err != nil {
		return err
	}
	w.name = name
	w.remaining = size
	w.inEntry = true
	if w.variant == Newc {
		w.padding = pad4(size)
	} else {
		w.padding = 0
	}
	if len(body) > 0 {
		if _, err := w.WriteData(body); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeODC(e *entry.Entry, name string, size int64) error {
	if size > odcMaxSize {
		return errors.Newf(errors.CodeUnsupported, "File is too large for cpio format: %s", name)
	}
	devMajor, devMinor := e.Dev()
	rdevMajor, rdevMinor := e.Rdev()
	for _, v := range []int64{e.UID(), e.GID(), int64(e.Nlink())} {
		if v > odcMax6 || v < 0 {
			return errors.Newf(errors.CodeUnsupported, "Numeric value too large for odc header: %s", name)
		}
	}
	mtime := e.Mtime().Unix()
	if !e.HasMtime() || mtime < 0 {
		mtime = 0
	}
	h := fmt.Sprintf("%s%06o%06o%06o%06o%06o%06o%06o%011o%06o%011o",
		magicODC,
		(devMajor<<8|devMinor)&odcMax6,
		e.Ino()&odcMaxIno,
		e.Mode()&odcMax6,
		e.UID(),
		e.GID(),
		e.Nlink(),
		(rdevMajor<<8|rdevMinor)&odcMax6,
		mtime,
		len(name)+1,
		size,
	)
	return w.write([]byte(h + name + "\x00"))
}

func (w *Writer) writeNewc(e *entry.Entry, name string, size int64) error {
	if size > newcMax {
		return errors.Newf(errors.CodeUnsupported, "File is too large for newc format: %s", name)
	}
	devMajor, devMinor := e.Dev()
	rdevMajor, rdevMinor := e.Rdev()
	mtime := e.Mtime().Unix()
	if !e.HasMtime() || mtime < 0 {
		mtime = 0
	}
	h := fmt.Sprintf("%s%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x",
		magicNewc,
		uint32(e.Ino()),
		e.Mode(),
		uint32(e.UID()),
		uint32(e.GID()),
		e.Nlink(),
		uint32(mtime),
		uint32(size),
		devMajor,
		devMinor,
		rdevMajor,
		rdevMinor,
		len(name)+1,
		0,
	)
	b := []byte(h + name + "\x00")
	b = append(b, make([]byte, pad4(int64(len(b))))...)
	return w.write(b)
}

// WriteData writes entry data up to the size in the header.
func (w *Writer) WriteData(p []byte) (int, error) {
	if !w.inEntry {
		return 0, errors.New(errors.CodeMisuse, "cpio: WriteData called without an entry")
	}
	var overflow error
	if int64(len(p)) > w.remaining {
		p = p[:w.remaining]
		overflow = errors.Newf(errors.CodeInvalidInput, "cpio: write exceeds the size of %s", w.name)
	}
	if len(p) == 0 {
		return 0, overflow
	}
	if err := w.write(p); err != nil {
		return 0, err
	}
	w.remaining -= int64(len(p))
	return len(p), overflow
}

// FinishEntry pads a short body with zeros and aligns newc data.
func (w *Writer) FinishEntry() error {
	if !w.inEntry {
		return nil
	}
	w.inEntry = false
	var warn error
	if w.remaining > 0 {
		warn = errors.Newf(errors.CodeSizeMismatch, "cpio: %s is shorter than its header size, padded with zeros", w.name)
	}
	if err := w.write(make([]byte, w.remaining+w.padding)); err != nil {
		return err
	}
	w.remaining, w.padding = 0, 0
	return warn
}

// Close writes the trailer entry.
func (w *Writer) Close() error {
	if w.out == nil {
		return nil
	}
	warn := w.FinishEntry()
	if warn != nil && !errors.IsWarning(warn) {
		return warn
	}
	trailer := entry.New()
	trailer.SetPathname(trailerName)
	trailer.SetNlink(1)
	var err error
	if w.variant == Newc {
		err = w.writeNewc(trailer, trailerName, 0)
	} else {
		err = w.writeODC(trailer, trailerName, 0)
	}
	w.out = nil
	if err != nil {
		return err
	}
	return warn
}

func (w *Writer) write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if _, err := w.out.Write(p); err != nil {
		var ae errors.ArchiveError
		if errors.As(err, &ae) {
			return err
		}
		return errors.WithSeverity(errors.Wrap(err, errors.CodeIO, "cpio: write failed"), errors.SeverityFatal)
	}
	return nil
}
