// Package uu implements the uuencode and "begin-base64" text encodings.
package uu

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"

	"github.com/jmgilman/go/archive/errors"
)

// LineBytes is the number of raw bytes carried by one uuencoded line.
const LineBytes = 45

// base64LineBytes is the number of raw bytes carried by one base64 line.
const base64LineBytes = 57

// MaxBeginLine bounds the length of a begin line accepted by ParseBegin.
const MaxBeginLine = 1024

// Begin describes the first line of an encoded body.
type Begin struct {
	Base64 bool
	Mode   uint32
	Name   string
}

// ParseBegin parses "begin <octal mode> <name>" or
// "begin-base64 <octal mode> <name>" without the line terminator.
func ParseBegin(line []byte) (Begin, bool) {
	var b Begin
	switch {
	case bytes.HasPrefix(line, []byte("begin-base64 ")):
		b.Base64 = true
		line = line[len("begin-base64 "):]
	case bytes.HasPrefix(line, []byte("begin ")):
		line = line[len("begin "):]
	default:
		return b, false
	}

	sp := bytes.IndexByte(line, ' ')
	if sp < 1 {
		return b, false
	}
	mode, err := strconv.ParseUint(string(line[:sp]), 8, 32)
	if err != nil {
		return b, false
	}
	name := bytes.TrimRight(line[sp+1:], "\r")
	if len(name) == 0 {
		return b, false
	}
	b.Mode = uint32(mode)
	b.Name = string(name)
	return b, true
}

// FormatBegin returns the begin line for an encoded body, with newline.
func FormatBegin(b Begin) string {
	if b.Base64 {
		return fmt.Sprintf("begin-base64 %o %s\n", b.Mode, b.Name)
	}
	return fmt.Sprintf("begin %o %s\n", b.Mode, b.Name)
}

func encChar(v byte) byte {
	if v == 0 {
		return '`'
	}
	return v + 0x20
}

func decChar(c byte) byte {
	return (c - 0x20) & 0x3f
}

// AppendLine appends one uuencoded line for src (at most LineBytes long),
// including the trailing newline.
func AppendLine(dst, src []byte) []byte {
	dst = append(dst, encChar(byte(len(src))))
	for i := 0; i < len(src); i += 3 {
		var g [3]byte
		copy(g[:], src[i:])
		dst = append(dst,
			encChar(g[0]>>2),
			encChar((g[0]<<4|g[1]>>4)&0x3f),
			encChar((g[1]<<2|g[2]>>6)&0x3f),
			encChar(g[2]&0x3f))
	}
	return append(dst, '\n')
}

// DecodeLine decodes one uuencoded line without its terminator.
// A zero-length line decodes to nothing.
func DecodeLine(dst, line []byte) ([]byte, error) {
	if len(line) == 0 {
		return dst, nil
	}
	n := int(decChar(line[0]))
	body := line[1:]
	if need := (n + 2) / 3 * 4; len(body) < need {
		return dst, errors.New(errors.CodeMalformed, "truncated uuencoded line")
	}
	for i := 0; n > 0; i += 4 {
		c0, c1, c2, c3 := decChar(body[i]), decChar(body[i+1]), decChar(body[i+2]), decChar(body[i+3])
		g := [3]byte{c0<<2 | c1>>4, c1<<4 | c2>>2, c2<<6 | c3}
		k := min(n, 3)
		dst = append(dst, g[:k]...)
		n -= k
	}
	return dst, nil
}

// Writer encodes a body, emitting the begin line on first use and the
// trailer on Close.
type Writer struct {
	w       io.Writer
	begin   Begin
	started bool
	pending []byte
	line    []byte
	err     error
}

// NewWriter returns a Writer that encodes to w.
func NewWriter(w io.Writer, b Begin) *Writer {
	return &Writer{w: w, begin: b}
}

func (e *Writer) lineSize() int {
	if e.begin.Base64 {
		return base64LineBytes
	}
	return LineBytes
}

func (e *Writer) start() error {
	if e.started {
		return nil
	}
	e.started = true
	_, err := io.WriteString(e.w, FormatBegin(e.begin))
	return err
}

func (e *Writer) writeLine(src []byte) error {
	e.line = e.line[:0]
	if e.begin.Base64 {
		e.line = base64.StdEncoding.AppendEncode(e.line, src)
		e.line = append(e.line, '\n')
	} else {
		e.line = AppendLine(e.line, src)
	}
	_, err := e.w.Write(e.line)
	return err
}

// Write implements io.Writer.
func (e *Writer) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	if e.err = e.start(); e.err != nil {
		return 0, e.err
	}
	size := e.lineSize()
	e.pending = append(e.pending, p...)
	for len(e.pending) >= size {
		if e.err = e.writeLine(e.pending[:size]); e.err != nil {
			return 0, e.err
		}
		e.pending = e.pending[size:]
	}
	e.pending = append([]byte(nil), e.pending...)
	return len(p), nil
}

// Close flushes the final line and writes the trailer.
func (e *Writer) Close() error {
	if e.err != nil {
		return e.err
	}
	if e.err = e.start(); e.err != nil {
		return e.err
	}
	if len(e.pending) > 0 {
		if e.err = e.writeLine(e.pending); e.err != nil {
			return e.err
		}
		e.pending = nil
	}
	trailer := "`\nend\n"
	if e.begin.Base64 {
		trailer = "====\n"
	}
	_, e.err = io.WriteString(e.w, trailer)
	return e.err
}

// Reader decodes a body that starts at a begin line. Lines before the
// begin line are skipped.
type Reader struct {
	br    *bufio.Reader
	begin Begin
	buf   []byte
	pos   int
	done  bool
	err   error
}

// NewReader scans r for a begin line and returns a decoder positioned after it.
func NewReader(r io.Reader) (*Reader, error) {
	d := &Reader{br: bufio.NewReader(r)}
	for {
		line, err := d.readLine()
		if err != nil {
			if err == io.EOF {
				return nil, errors.New(errors.CodeMalformed, "missing uuencode begin line")
			}
			return nil, err
		}
		if b, ok := ParseBegin(line); ok {
			d.begin = b
			return d, nil
		}
	}
}

// Begin returns the parsed begin line.
func (d *Reader) Begin() Begin {
	return d.begin
}

func (d *Reader) readLine() ([]byte, error) {
	line, err := d.br.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		return nil, errors.New(errors.CodeMalformed, "uuencoded line too long")
	}
	if err == io.EOF && len(line) > 0 {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	line = bytes.TrimRight(line, "\r\n")
	return line, nil
}

func (d *Reader) decodeNext() error {
	line, err := d.readLine()
	if err == io.EOF {
		return errors.New(errors.CodeTruncated, "uuencoded data ended before trailer")
	}
	if err != nil {
		return err
	}

	d.buf, d.pos = d.buf[:0], 0
	if d.begin.Base64 {
		if string(line) == "====" {
			d.done = true
			return nil
		}
		d.buf, err = base64.StdEncoding.AppendDecode(d.buf, line)
		if err != nil {
			return errors.Wrap(err, errors.CodeMalformed, "invalid base64 line")
		}
		return nil
	}

	if string(line) == "end" {
		d.done = true
		return nil
	}
	d.buf, err = DecodeLine(d.buf, line)
	return err
}

// Read implements io.Reader.
func (d *Reader) Read(p []byte) (int, error) {
	for d.pos == len(d.buf) {
		if d.err != nil {
			return 0, d.err
		}
		if d.done {
			return 0, io.EOF
		}
		d.err = d.decodeNext()
	}
	n := copy(p, d.buf[d.pos:])
	d.pos += n
	return n, nil
}
