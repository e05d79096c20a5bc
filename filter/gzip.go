package filter

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/jmgilman/go/archive/stream"
)

const (
	gzipID1      = 0x1f
	gzipID2      = 0x8b
	gzipDeflate  = 8
	gzipReserved = 0xe0
)

var gzipMagic = []byte{gzipID1, gzipID2, gzipDeflate}

// GzipBidder recognizes gzip streams.
type GzipBidder struct{}

func (GzipBidder) Name() string {
	return "gzip"
}

// Bid checks the magic, the method and the reserved flag bits.
func (GzipBidder) Bid(upstream *stream.Cursor) (int, error) {
	p, err := peek(upstream, 10)
	if err != nil {
		return 0, err
	}
	if len(p) < 10 || !bytes.HasPrefix(p, gzipMagic) || p[3]&gzipReserved != 0 {
		return 0, nil
	}
	return 27, nil
}

func (GzipBidder) Init(upstream *stream.Cursor) (Filter, error) {
	zr, err := gzip.NewReader(upstream)
	if err != nil {
		return nil, err
	}
	zr.Multistream(false)
	r := &gzipMembers{zr: zr, upstream: upstream}
	return newReadFilter("gzip", r, zr.Close, upstream), nil
}

// gzipMembers decodes concatenated gzip members. After each member it
// looks for another gzip header; anything else ends the stream so that
// trailing padding is ignored.
type gzipMembers struct {
	zr       *gzip.Reader
	upstream *stream.Cursor
	done     bool
}

func (g *gzipMembers) Read(p []byte) (int, error) {
	for {
		if g.done {
			return 0, io.EOF
		}
		n, err := g.zr.Read(p)
		if err != io.EOF {
			return n, err
		}
		next, perr := peek(g.upstream, len(gzipMagic))
		if perr != nil {
			return n, perr
		}
		if !bytes.HasPrefix(next, gzipMagic) {
			g.done = true
			return n, io.EOF
		}
		if err := g.zr.Reset(g.upstream); err != nil {
			return n, err
		}
		g.zr.Multistream(false)
		if n > 0 {
			return n, nil
		}
	}
}
