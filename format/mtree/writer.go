package mtree

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
)

// Keyword bits.
const (
	kwDevice = 1 << iota
	kwFlags
	kwGID
	kwGname
	kwLink
	kwMode
	kwNlink
	kwSize
	kwTime
	kwType
	kwUID
	kwUname
	kwMD5
	kwSHA1
	kwSHA256
	kwSHA512

	kwDefault = kwDevice | kwFlags | kwGID | kwGname | kwLink | kwMode | kwNlink |
		kwSize | kwTime | kwType | kwUID | kwUname
	kwAll = kwDefault | kwMD5 | kwSHA1 | kwSHA256 | kwSHA512
)

var keywordBits = map[string]int{
	"all":       kwAll,
	"device":    kwDevice,
	"flags":     kwFlags,
	"gid":       kwGID,
	"gname":     kwGname,
	"link":      kwLink,
	"mode":      kwMode,
	"nlink":     kwNlink,
	"size":      kwSize,
	"time":      kwTime,
	"type":      kwType,
	"uid":       kwUID,
	"uname":     kwUname,
	"md5":       kwMD5,
	"md5digest": kwMD5,
	"sha1":      kwSHA1,
	"sha256":    kwSHA256,
	"sha512":    kwSHA512,
}

var typeNames = map[uint32]string{
	entry.TypeReg:  "file",
	entry.TypeDir:  "dir",
	entry.TypeLink: "link",
	entry.TypeBlk:  "block",
	entry.TypeChr:  "char",
	entry.TypeFIFO: "fifo",
	entry.TypeSock: "socket",
}

type digest struct {
	key string
	h   hash.Hash
}

// Writer encodes an mtree specification. Each line is emitted when its
// entry is finished so that content digests can be included.
type Writer struct {
	keys        int
	out         io.Writer
	wroteHeader bool

	line    *strings.Builder
	digests []digest
}

// NewWriter returns a writer using the default keyword set.
func NewWriter() *Writer {
	return &Writer{keys: kwDefault}
}

func (w *Writer) Name() string {
	return "mtree"
}

// SetOption turns keywords on or off. An empty value, as produced by a
// "!key" option, turns the keyword off.
func (w *Writer) SetOption(key, value string) error {
	bit, ok := keywordBits[key]
	if !ok {
		return errors.ErrOptionUnknown
	}
	if value == "" {
		w.keys &^= bit
	} else {
		w.keys |= bit
	}
	return nil
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
	if w.line != nil {
		if err := w.FinishEntry(); err != nil {
			return err
		}
	}
	name := e.Pathname()
	if name == "" {
		return errors.New(errors.CodeInvalidInput, "Invalid empty pathname")
	}
	if name != "." && !strings.HasPrefix(name, "./") && !strings.HasPrefix(name, "/") {
		name = "./" + name
	}
	name = strings.TrimSuffix(name, "/")

	b := &strings.Builder{}
	b.WriteString(escape(name))
	ftype := e.Filetype()
	if w.keys&kwType != 0 {
		if t, ok := typeNames[ftype]; ok {
			fmt.Fprintf(b, " type=%s", t)
		}
	}
	if w.keys&kwUID != 0 {
		fmt.Fprintf(b, " uid=%d", e.UID())
	}
	if w.keys&kwUname != 0 && e.Uname() != "" {
		fmt.Fprintf(b, " uname=%s", escape(e.Uname()))
	}
	if w.keys&kwGID != 0 {
		fmt.Fprintf(b, " gid=%d", e.GID())
	}
	if w.keys&kwGname != 0 && e.Gname() != "" {
		fmt.Fprintf(b, " gname=%s", escape(e.Gname()))
	}
	if w.keys&kwMode != 0 {
		fmt.Fprintf(b, " mode=%o", e.Perm())
	}
	if w.keys&kwNlink != 0 && ftype != entry.TypeDir && e.Nlink() > 1 {
		fmt.Fprintf(b, " nlink=%d", e.Nlink())
	}
	if w.keys&kwSize != 0 && ftype == entry.TypeReg && e.HasSize() {
		fmt.Fprintf(b, " size=%d", e.Size())
	}
	if w.keys&kwTime != 0 && e.HasMtime() {
		fmt.Fprintf(b, " time=%d.%09d", e.Mtime().Unix(), e.Mtime().Nanosecond())
	}
	if w.keys&kwLink != 0 {
		switch {
		case ftype == entry.TypeLink:
			fmt.Fprintf(b, " link=%s", escape(e.Symlink()))
		case e.Hardlink() != "":
			fmt.Fprintf(b, " link=%s", escape(e.Hardlink()))
		}
	}
	if w.keys&kwDevice != 0 && (ftype == entry.TypeBlk || ftype == entry.TypeChr) {
		major, minor := e.Rdev()
		fmt.Fprintf(b, " device=native,%d,%d", major, minor)
	}
	if w.keys&kwFlags != 0 && e.Fflags() != "" {
		fmt.Fprintf(b, " flags=%s", escape(e.Fflags()))
	}

	w.digests = w.digests[:0]
	if ftype == entry.TypeReg {
		if w.keys&kwMD5 != 0 {
			w.digests = append(w.digests, digest{"md5digest", md5.New()})
		}
		if w.keys&kwSHA1 != 0 {
			w.digests = append(w.digests, digest{"sha1digest", sha1.New()})
		}
		if w.keys&kwSHA256 != 0 {
			w.digests = append(w.digests, digest{"sha256digest", sha256.New()})
		}
		if w.keys&kwSHA512 != 0 {
			w.digests = append(w.digests, digest{"sha512digest", sha512.New()})
		}
	}
	w.line = b
	return nil
}

// WriteData feeds the content digests. Contents are not stored.
func (w *Writer) WriteData(p []byte) (int, error) {
	if w.line == nil {
		return 0, errors.New(errors.CodeMisuse, "mtree: WriteData called without an entry")
	}
	for _, d := range w.digests {
		d.h.Write(p)
	}
	return len(p), nil
}

func (w *Writer) FinishEntry() error {
	if w.line == nil {
		return nil
	}
	b := w.line
	w.line = nil
	for _, d := range w.digests {
		fmt.Fprintf(b, " %s=%s", d.key, hex.EncodeToString(d.h.Sum(nil)))
	}
	b.WriteByte('\n')
	if err := w.writeHeader(); err != nil {
		return err
	}
	return w.write(b.String())
}

func (w *Writer) writeHeader() error {
	if w.wroteHeader {
		return nil
	}
	w.wroteHeader = true
	return w.write(signature + "\n")
}

func (w *Writer) Close() error {
	if w.out == nil {
		return nil
	}
	if err := w.FinishEntry(); err != nil {
		return err
	}
	err := w.writeHeader()
	w.out = nil
	return err
}

func (w *Writer) write(s string) error {
	if _, err := io.WriteString(w.out, s); err != nil {
		var ae errors.ArchiveError
		if errors.As(err, &ae) {
			return err
		}
		return errors.WithSeverity(errors.Wrap(err, errors.CodeIO, "mtree: write failed"), errors.SeverityFatal)
	}
	return nil
}
