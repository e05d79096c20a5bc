package filter

import (
	"bytes"

	"github.com/jmgilman/go/archive/internal/uu"
	"github.com/jmgilman/go/archive/stream"
)

// uuBidWindow bounds how far into the stream the begin line is searched.
const uuBidWindow = 128 * 1024

// UuBidder recognizes uuencoded and begin-base64 bodies. The begin line
// may be preceded by other text, as in mail messages.
type UuBidder struct{}

func (UuBidder) Name() string {
	return "uu"
}

// Bid looks for a begin line at the start of a line and checks that the
// following line is a plausible encoded line.
func (UuBidder) Bid(upstream *stream.Cursor) (int, error) {
	p, err := peek(upstream, uuBidWindow)
	if err != nil {
		return 0, err
	}
	if len(p) > uuBidWindow {
		p = p[:uuBidWindow]
	}

	for len(p) > 0 {
		nl := bytes.IndexByte(p, '\n')
		if nl < 0 {
			return 0, nil
		}
		line := bytes.TrimRight(p[:nl], "\r")
		p = p[nl+1:]
		if len(line) > uu.MaxBeginLine {
			continue
		}
		b, ok := uu.ParseBegin(line)
		if !ok {
			continue
		}
		next := p
		if i := bytes.IndexByte(next, '\n'); i >= 0 {
			next = bytes.TrimRight(next[:i], "\r")
		} else {
			return 0, nil
		}
		if plausibleBody(next, b.Base64) {
			return 30 + 48, nil
		}
		return 0, nil
	}
	return 0, nil
}

func plausibleBody(line []byte, base64 bool) bool {
	if base64 {
		if string(line) == "====" {
			return true
		}
		for _, c := range line {
			switch {
			case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
				c == '+', c == '/', c == '=':
			default:
				return false
			}
		}
		return len(line)%4 == 0
	}
	if len(line) == 0 {
		return false
	}
	for _, c := range line {
		if c < 0x20 || c > 0x60 {
			return false
		}
	}
	n := int((line[0] - 0x20) & 0x3f)
	return len(line)-1 >= (n+2)/3*4
}

func (UuBidder) Init(upstream *stream.Cursor) (Filter, error) {
	r, err := uu.NewReader(upstream)
	if err != nil {
		return nil, err
	}
	return newReadFilter("uu", r, nil, upstream), nil
}
