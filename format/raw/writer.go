package raw

import (
	"io"

	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
)

// Writer copies the body of a single regular entry.
type Writer struct {
	out     io.Writer
	entries int
	inEntry bool
}

// NewWriter returns a raw writer.
func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Name() string {
	return "raw"
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

func (w *Writer) WriteHeader(e *entry.Entry) error {
	if !e.IsRegular() {
		return errors.New(errors.CodeUnsupported, "Raw format only supports filetype AE_IFREG")
	}
	if w.entries > 0 {
		return errors.New(errors.CodeUnsupported, "Raw format only supports one entry per archive")
	}
	w.entries++
	w.inEntry = true
	return nil
}

// WriteData passes p through. The raw format does not track entry size.
func (w *Writer) WriteData(p []byte) (int, error) {
	if !w.inEntry {
		return 0, errors.New(errors.CodeMisuse, "raw: WriteData called without an entry")
	}
	n, err := w.out.Write(p)
	if err != nil {
		var ae errors.ArchiveError
		if errors.As(err, &ae) {
			return n, err
		}
		return n, errors.WithSeverity(errors.Wrap(err, errors.CodeIO, "raw: write failed"), errors.SeverityFatal)
	}
	return n, nil
}

func (w *Writer) FinishEntry() error {
	w.inEntry = false
	return nil
}

func (w *Writer) Close() error {
	w.inEntry = false
	w.out = nil
	return nil
}
