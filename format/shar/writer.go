package shar

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/internal/uu"
)

const (
	header     = "#!/bin/sh\n# This is a shell archive\n"
	terminator = "SHAR_END"
)

// Writer encodes shar or shardump scripts.
type Writer struct {
	dump        bool
	out         io.Writer
	wroteHeader bool
	dirs        map[string]bool

	entry     *entry.Entry
	name      string
	remaining int64
	body      io.Writer
	enc       *uu.Writer
	lastByte  byte
	wroteBody bool
	line      []byte
}

// NewWriter returns a plain shar writer.
func NewWriter() *Writer {
	return &Writer{dirs: make(map[string]bool)}
}

// NewDumpWriter returns a shardump writer.
func NewDumpWriter() *Writer {
	return &Writer{dump: true, dirs: make(map[string]bool)}
}

func (w *Writer) Name() string {
	if w.dump {
		return "shardump"
	}
	return "shar"
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

// WriteHeader emits the commands that create e. Regular file bodies
// follow through WriteData.
func (w *Writer) WriteHeader(e *entry.Entry) error {
	if w.entry != nil {
		if err := w.FinishEntry(); err != nil && !errors.IsWarning(err) {
			return err
		}
	}
	name := strings.TrimSuffix(e.Pathname(), "/")
	if name == "" {
		return errors.New(errors.CodeInvalidInput, "Invalid empty pathname")
	}

	var b strings.Builder
	if !w.wroteHeader {
		b.WriteString(header)
		w.wroteHeader = true
	}
	quoted := quote(name)
	fmt.Fprintf(&b, "echo x %s\n", quoted)

	if dir := path.Dir(name); dir != "." && dir != "/" && !w.dirs[dir] {
		fmt.Fprintf(&b, "mkdir -p %s > /dev/null 2>&1\n", quote(dir))
		w.markDirs(dir)
	}

	size := int64(0)
	switch {
	case e.Hardlink() != "":
		fmt.Fprintf(&b, "ln -f %s %s\n", quote(e.Hardlink()), quoted)
	case e.IsSymlink():
		fmt.Fprintf(&b, "ln -s %s %s\n", quote(e.Symlink()), quoted)
	case e.IsDir():
		if !w.dirs[name] {
			fmt.Fprintf(&b, "mkdir -p %s > /dev/null 2>&1\n", quoted)
			w.markDirs(name)
		}
	case e.Filetype() == entry.TypeFIFO:
		fmt.Fprintf(&b, "mkfifo %s\n", quoted)
	case e.Filetype() == entry.TypeChr, e.Filetype() == entry.TypeBlk:
		kind := "c"
		if e.Filetype() == entry.TypeBlk {
			kind = "b"
		}
		major, minor := e.Rdev()
		fmt.Fprintf(&b, "mknod %s %s %d %d\n", quoted, kind, major, minor)
	case e.IsRegular():
		size = e.Size()
		if size > 0 || w.dump {
			if w.dump {
				fmt.Fprintf(&b, "uudecode -p > %s << '%s'\n", quoted, terminator)
			} else {
				fmt.Fprintf(&b, "sed 's/^X//' > %s << '%s'\n", quoted, terminator)
			}
		} else {
			fmt.Fprintf(&b, "touch %s\n", quoted)
		}
	case e.Filetype() == entry.TypeSock:
		return errors.Newf(errors.CodeUnsupported, "shar: cannot archive socket %s", name)
	default:
		return errors.Newf(errors.CodeUnsupported, "shar: filetype of %s not supported", name)
	}
	if err := w.write([]byte(b.String())); err != nil {
		return err
	}

	w.entry = e.Clone()
	w.name = name
	w.remaining = size
	w.lastByte = '\n'
	w.wroteBody = false
	w.line = w.line[:0]
	w.enc = nil
	if e.IsRegular() && e.Hardlink() == "" && w.dump {
		w.enc = uu.NewWriter(writerFunc(w.write), uu.Begin{Mode: e.Perm(), Name: path.Base(name)})
	}
	return nil
}

func (w *Writer) markDirs(dir string) {
	for dir != "." && dir != "/" && dir != "" {
		w.dirs[dir] = true
		dir = path.Dir(dir)
	}
}

// WriteData writes body bytes, either uuencoded or as X-prefixed lines.
func (w *Writer) WriteData(p []byte) (int, error) {
	if w.entry == nil {
		return 0, errors.New(errors.CodeMisuse, "shar: WriteData called without an entry")
	}
	var overflow error
	if int64(len(p)) > w.remaining {
		p = p[:w.remaining]
		overflow = errors.Newf(errors.CodeInvalidInput, "shar: write exceeds the size of %s", w.name)
	}
	if len(p) == 0 {
		return 0, overflow
	}
	w.remaining -= int64(len(p))
	w.wroteBody = true
	if w.enc != nil {
		if _, err := w.enc.Write(p); err != nil {
			return 0, w.wrap(err)
		}
		return len(p), overflow
	}

	for _, c := range p {
		if w.lastByte == '\n' {
			w.line = append(w.line, 'X')
		}
		w.line = append(w.line, c)
		w.lastByte = c
		if c == '\n' {
			if err := w.write(w.line); err != nil {
				return 0, err
			}
			w.line = w.line[:0]
		}
	}
	return len(p), overflow
}

// FinishEntry closes the here-document and, for shardump, restores
// ownership and permissions.
func (w *Writer) FinishEntry() error {
	if w.entry == nil {
		return nil
	}
	e := w.entry
	var warn error
	if w.remaining > 0 {
		warn = errors.Newf(errors.CodeSizeMismatch, "shar: %s is shorter than its header size, padded with zeros", w.name)
		if _, err := w.WriteData(make([]byte, w.remaining)); err != nil {
			w.entry = nil
			return err
		}
	}
	w.entry = nil

	var b bytes.Buffer
	hasBody := e.IsRegular() && e.Hardlink() == "" && (w.dump || w.wroteBody)
	if hasBody {
		if w.enc != nil {
			if err := w.enc.Close(); err != nil {
				return w.wrap(err)
			}
			w.enc = nil
		} else {
			b.Write(w.line)
			w.line = w.line[:0]
			if w.lastByte != '\n' {
				b.WriteByte('\n')
			}
		}
		b.WriteString(terminator + "\n")
	}

	quoted := quote(w.name)
	if w.dump && e.Hardlink() == "" && !e.IsSymlink() {
		fmt.Fprintf(&b, "chmod %o %s\n", e.Perm(), quoted)
		if e.Uname() != "" {
			fmt.Fprintf(&b, "chown %s %s\n", quote(e.Uname()), quoted)
		}
		if e.Gname() != "" {
			fmt.Fprintf(&b, "chgrp %s %s\n", quote(e.Gname()), quoted)
		}
		if e.Fflags() != "" {
			fmt.Fprintf(&b, "chflags %s %s\n", quote(e.Fflags()), quoted)
		}
	}
	if err := w.write(b.Bytes()); err != nil {
		return err
	}
	return warn
}

// Close finishes the last entry and terminates the script.
func (w *Writer) Close() error {
	if w.out == nil {
		return nil
	}
	warn := w.FinishEntry()
	if warn != nil && !errors.IsWarning(warn) {
		return warn
	}
	var err error
	if w.wroteHeader {
		err = w.write([]byte("exit\n"))
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
		return w.wrap(err)
	}
	return nil
}

func (w *Writer) wrap(err error) error {
	var ae errors.ArchiveError
	if errors.As(err, &ae) {
		return err
	}
	return errors.WithSeverity(errors.Wrap(err, errors.CodeIO, "shar: write failed"), errors.SeverityFatal)
}

// quote returns s as a single shell word.
func quote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./+,:@%", r)
}

type writerFunc func([]byte) error

func (f writerFunc) Write(p []byte) (int, error) {
	if err := f(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
