package ar

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
)

// Writer encodes BSD or GNU ar archives.
type Writer struct {
	variant      Variant
	out          io.Writer
	wroteGlobal  bool
	strtab       string
	collectTable bool
	table        strings.Builder

	name      string
	remaining int64
	odd       bool
	inEntry   bool
}

// NewWriter returns a writer for the given dialect.
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

// SuggestedBytesInLastBlock asks for an unpadded final block.
func (w *Writer) SuggestedBytesInLastBlock() int {
	return 1
}

func (w *Writer) Open(out io.Writer) error {
	w.out = out
	return nil
}

// WriteHeader writes the member header for e. Only regular files can be
// stored. With the GNU dialect a member named "//" supplies the long name
// table, which must come before members that use it.
func (w *Writer) WriteHeader(e *entry.Entry) error {
	if w.inEntry {
		if err := w.FinishEntry(); err != nil && !errors.IsWarning(err) {
			return err
		}
	}
	pathname := e.Pathname()
	if pathname == "" {
		return errors.New(errors.CodeInvalidInput, "Invalid empty pathname")
	}

	size := e.Size()
	special := pathname == gnuStringTab || pathname == gnuSymbolTab || pathname == "__.SYMDEF"
	if !special && e.Filetype() != entry.TypeReg {
		return errors.Newf(errors.CodeUnsupported, "ar supports regular files only: %s", pathname)
	}

	var field, prefix string
	switch {
	case special:
		field = pathname
	case w.variant == BSD:
		name := path.Base(pathname)
		if len(name) > 16 || strings.Contains(name, " ") {
			field = fmt.Sprintf("%s%d", bsdLongPrefix, len(name))
			prefix = name
			size += int64(len(name))
		} else {
			field = name
		}
	default:
		name := path.Base(pathname)
		if len(name) <= 15 {
			field = name + "/"
		} else {
			i := strings.Index(w.strtab, name+"/\n")
			if i < 0 || (i > 0 && w.strtab[i-1] != '\n') {
				return errors.Newf(errors.CodeInvalidInput,
					"Can't find long filename for GNU/SVR4 archive entry: %s", name)
			}
			field = fmt.Sprintf("/%d", i)
		}
	}

	if !w.wroteGlobal {
		if err := w.write([]byte(globalHeader)); err != nil {
			return err
		}
		w.wroteGlobal = true
	}

	mtime := int64(0)
	if e.HasMtime() && e.Mtime().Unix() > 0 {
		mtime = e.Mtime().Unix()
	}
	h := fmt.Sprintf("%-16s%-12d%-6d%-6d%-8o%-10d%s",
		field, mtime, e.UID(), e.GID(), e.Mode(), size, headerMagic)
	if len(h) != headerLen {
		return errors.Newf(errors.CodeUnsupported, "Numeric value too large for ar header: %s", pathname)
	}
	if err := w.write([]byte(h)); err != nil {
		return err
	}
	if prefix != "" {
		if err := w.write([]byte(prefix)); err != nil {
			return err
		}
	}

	w.name = pathname
	w.remaining = e.Size()
	w.odd = size%2 == 1
	w.inEntry = true
	w.collectTable = w.variant == GNU && pathname == gnuStringTab
	w.table.Reset()
	return nil
}

func (w *Writer) WriteData(p []byte) (int, error) {
	if !w.inEntry {
		return 0, errors.New(errors.CodeMisuse, "ar: WriteData called without an entry")
	}
	var overflow error
	if int64(len(p)) > w.remaining {
		p = p[:w.remaining]
		overflow = errors.Newf(errors.CodeInvalidInput, "ar: write exceeds the size of %s", w.name)
	}
	if len(p) == 0 {
		return 0, overflow
	}
	if err := w.write(p); err != nil {
		return 0, err
	}
	if w.collectTable {
		w.table.Write(p)
	}
	w.remaining -= int64(len(p))
	return len(p), overflow
}

// FinishEntry pads a short body with zeros and an odd one with a newline.
func (w *Writer) FinishEntry() error {
	if !w.inEntry {
		return nil
	}
	w.inEntry = false
	var warn error
	if w.remaining > 0 {
		warn = errors.Newf(errors.CodeSizeMismatch, "ar: %s is shorter than its header size, padded with zeros", w.name)
		if err := w.write(make([]byte, w.remaining)); err != nil {
			return err
		}
		w.remaining = 0
	}
	if w.odd {
		if err := w.write([]byte{'\n'}); err != nil {
			return err
		}
	}
	if w.collectTable {
		w.strtab = w.table.String()
		w.collectTable = false
	}
	return warn
}

// Close writes the global header of an empty archive.
func (w *Writer) Close() error {
	if w.out == nil {
		return nil
	}
	warn := w.FinishEntry()
	if warn != nil && !errors.IsWarning(warn) {
		return warn
	}
	if !w.wroteGlobal {
		if err := w.write([]byte(globalHeader)); err != nil {
			return err
		}
		w.wroteGlobal = true
	}
	w.out = nil
	return warn
}

func (w *Writer) write(p []byte) error {
	if _, err := w.out.Write(p); err != nil {
		var ae errors.ArchiveError
		if errors.As(err, &ae) {
			return err
		}
		return errors.WithSeverity(errors.Wrap(err, errors.CodeIO, "ar: write failed"), errors.SeverityFatal)
	}
	return nil
}
