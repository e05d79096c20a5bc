package mtree

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

const (
	signature   = "#mtree"
	maxLineSize = 1 << 20
)

var typeByName = map[string]uint32{
	"file":   entry.TypeReg,
	"dir":    entry.TypeDir,
	"link":   entry.TypeLink,
	"block":  entry.TypeBlk,
	"char":   entry.TypeChr,
	"fifo":   entry.TypeFIFO,
	"socket": entry.TypeSock,
}

// Reader decodes mtree specifications.
type Reader struct {
	defaults map[string]string
	cwd      []string
}

// NewReader returns an mtree reader.
func NewReader() *Reader {
	return &Reader{defaults: make(map[string]string)}
}

func (r *Reader) Name() string {
	return "mtree"
}

// Bid recognizes the "#mtree" signature line.
func (r *Reader) Bid(c *stream.Cursor) (int, error) {
	p, err := format.Peek(c, len(signature)+1)
	if err != nil {
		return 0, err
	}
	if !bytes.HasPrefix(p, []byte(signature)) {
		return 0, nil
	}
	if len(p) > len(signature) {
		switch p[len(signature)] {
		case ' ', '\t', '\r', '\n':
		default:
			return 0, nil
		}
	}
	return 8 * len(signature), nil
}

// ReadHeader parses lines until the next entry. Unknown keywords and bad
// values are reported as a warning with the entry.
func (r *Reader) ReadHeader(c *stream.Cursor, e *entry.Entry) error {
	for {
		line, err := readLine(c)
		if err != nil {
			return err
		}
		line = strings.TrimLeft(line, " \t")
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "/set":
			for k, v := range keywords(fields[1:]) {
				r.defaults[k] = v
			}
			continue
		case "/unset":
			for _, k := range fields[1:] {
				if k == "all" {
					r.defaults = make(map[string]string)
					break
				}
				delete(r.defaults, k)
			}
			continue
		case "..":
			if len(r.cwd) > 0 {
				r.cwd = r.cwd[:len(r.cwd)-1]
			}
			continue
		}

		kv := make(map[string]string, len(r.defaults)+len(fields))
		for k, v := range r.defaults {
			kv[k] = v
		}
		for k, v := range keywords(fields[1:]) {
			kv[k] = v
		}
		return r.fill(e, unescape(fields[0]), kv)
	}
}

// fill builds the entry for one line. A name without a slash is relative
// to the current directory; relative directories become the new current
// directory.
func (r *Reader) fill(e *entry.Entry, name string, kv map[string]string) error {
	e.Clear()
	relative := !strings.Contains(name, "/")
	pathname := name
	if relative && len(r.cwd) > 0 {
		pathname = strings.Join(r.cwd, "/") + "/" + name
	}
	e.SetPathname(pathname)

	ftype := entry.TypeReg
	if t, ok := kv["type"]; ok {
		v, known := typeByName[t]
		if !known {
			return errors.Newf(errors.CodeMetadata, "Unrecognized file type %q for %s", t, pathname)
		}
		ftype = v
	}
	e.SetMode(ftype | 0o644)
	if ftype == entry.TypeDir {
		e.SetPerm(0o755)
		if relative {
			r.cwd = append(r.cwd, name)
		}
	}

	var warn error
	bad := func(k, v string) {
		warn = errors.Combine(warn, errors.Newf(errors.CodeMetadata, "Invalid %s=%s for %s", k, v, pathname))
	}
	for k, v := range kv {
		switch k {
		case "type":
		case "mode":
			m, err := strconv.ParseUint(v, 8, 32)
			if err != nil {
				bad(k, v)
				continue
			}
			e.SetPerm(uint32(m))
		case "uid":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				bad(k, v)
				continue
			}
			e.SetUID(n)
		case "gid":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				bad(k, v)
				continue
			}
			e.SetGID(n)
		case "uname":
			e.SetUname(unescape(v))
		case "gname":
			e.SetGname(unescape(v))
		case "size":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				bad(k, v)
				continue
			}
			e.SetSize(n)
		case "time":
			t, err := parseTime(v)
			if err != nil {
				bad(k, v)
				continue
			}
			e.SetMtime(t)
		case "link":
			if ftype == entry.TypeLink {
				e.SetSymlink(unescape(v))
			} else {
				e.SetHardlink(unescape(v))
			}
		case "nlink":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				bad(k, v)
				continue
			}
			e.SetNlink(uint32(n))
		case "inode":
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				bad(k, v)
				continue
			}
			e.SetIno(n)
		case "flags":
			e.SetFflags(v)
		case "device", "resdevice":
			major, minor, err := parseDevice(v)
			if err != nil {
				bad(k, v)
				continue
			}
			if k == "device" {
				e.SetRdev(major, minor)
			} else {
				e.SetDev(major, minor)
			}
		case "cksum", "md5", "md5digest", "rmd160", "rmd160digest", "sha1", "sha1digest",
			"sha256", "sha256digest", "sha384", "sha384digest", "sha512", "sha512digest",
			"ignore", "nochange", "optional", "contents", "tags":
		default:
			warn = errors.Combine(warn, errors.Newf(errors.CodeMetadata, "Unrecognized key %s=%s", k, v))
		}
	}
	return warn
}

// keywords splits key=value words. A bare word maps to "".
func keywords(words []string) map[string]string {
	kv := make(map[string]string, len(words))
	for _, w := range words {
		k, v, _ := strings.Cut(w, "=")
		kv[k] = v
	}
	return kv
}

// parseTime accepts seconds with an optional nanosecond fraction.
func parseTime(v string) (time.Time, error) {
	sec, frac, _ := strings.Cut(v, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	var ns int64
	if frac != "" {
		ns, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || ns >= 1e9 {
			return time.Time{}, errors.New(errors.CodeMetadata, "bad nanoseconds")
		}
	}
	return time.Unix(s, ns), nil
}

// parseDevice accepts "format,major,minor" or a single device number.
func parseDevice(v string) (major, minor uint32, err error) {
	parts := strings.Split(v, ",")
	switch len(parts) {
	case 1:
		n, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return 0, 0, err
		}
		return uint32(n >> 8), uint32(n & 0xff), nil
	case 3:
		ma, err := strconv.ParseUint(parts[1], 0, 32)
		if err != nil {
			return 0, 0, err
		}
		mi, err := strconv.ParseUint(parts[2], 0, 32)
		if err != nil {
			return 0, 0, err
		}
		return uint32(ma), uint32(mi), nil
	}
	return 0, 0, errors.Newf(errors.CodeMetadata, "bad device %q", v)
}

// readLine returns the next logical line, joining lines that end in a
// backslash. It returns io.EOF at the end of input.
func readLine(c *stream.Cursor) (string, error) {
	var out strings.Builder
	for {
		part, err := physicalLine(c)
		if err != nil {
			if err == io.EOF && out.Len() > 0 {
				return out.String(), nil
			}
			return "", err
		}
		if strings.HasSuffix(part, `\`) && !strings.HasSuffix(part, `\\`) {
			out.WriteString(part[:len(part)-1])
			out.WriteByte(' ')
			continue
		}
		out.WriteString(part)
		return out.String(), nil
	}
}

func physicalLine(c *stream.Cursor) (string, error) {
	n := 256
	for {
		p, err := c.Peek(n)
		if err != nil && err != io.EOF {
			return "", err
		}
		if i := bytes.IndexByte(p, '\n'); i >= 0 {
			line := strings.TrimSuffix(string(p[:i]), "\r")
			return line, c.Consume(i + 1)
		}
		if err == io.EOF {
			if len(p) == 0 {
				return "", io.EOF
			}
			line := string(p)
			return line, c.Consume(len(p))
		}
		if len(p) >= maxLineSize {
			return "", errors.New(errors.CodeMalformed, "mtree line too long")
		}
		n = len(p) * 2
	}
}

// ReadData returns io.EOF: mtree entries have no contents.
func (r *Reader) ReadData(*stream.Cursor) ([]byte, error) {
	return nil, io.EOF
}

func (r *Reader) SkipData(*stream.Cursor) error {
	return nil
}

func (r *Reader) Close() error {
	return nil
}
