package filter

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"

	"github.com/jmgilman/go/archive/stream"
)

var (
	bzip2Block = []byte{0x31, 0x41, 0x59, 0x26, 0x53, 0x59}
	bzip2End   = []byte{0x17, 0x72, 0x45, 0x38, 0x50, 0x90}
)

const bzip2EndMagic = 0x177245385090

// Bzip2Bidder recognizes bzip2 streams.
type Bzip2Bidder struct{}

func (Bzip2Bidder) Name() string {
	return "bzip2"
}

// Bid checks "BZh", the block size digit and the first block or
// end-of-stream magic.
func (Bzip2Bidder) Bid(upstream *stream.Cursor) (int, error) {
	p, err := peek(upstream, 10)
	if err != nil {
		return 0, err
	}
	if len(p) < 10 || !bytes.HasPrefix(p, []byte("BZh")) {
		return 0, nil
	}
	if p[3] < '1' || p[3] > '9' {
		return 0, nil
	}
	if !bytes.Equal(p[4:10], bzip2Block) && !bytes.Equal(p[4:10], bzip2End) {
		return 0, nil
	}
	return 24 + 5 + 48, nil
}

func (Bzip2Bidder) Init(upstream *stream.Cursor) (Filter, error) {
	src := &bzip2Tail{c: upstream}
	zr, err := bzip2.NewReader(src, &bzip2.ReaderConfig{})
	if err != nil {
		return nil, err
	}
	r := &bzip2Streams{zr: zr, src: src}
	return newReadFilter("bzip2", r, r.Close, upstream), nil
}

// bzip2Streams decodes concatenated bzip2 streams. The decoder expects
// another stream after each footer and fails on anything else; when that
// failure comes right after a complete footer the stream simply ended and
// the trailing bytes are padding.
type bzip2Streams struct {
	zr   *bzip2.Reader
	src  *bzip2Tail
	done bool
}

func (b *bzip2Streams) Read(p []byte) (int, error) {
	if b.done {
		return 0, io.EOF
	}
	n, err := b.zr.Read(p)
	switch {
	case err == nil:
	case err == io.EOF || b.src.afterFooter():
		b.done = true
		err = io.EOF
	}
	return n, err
}

func (b *bzip2Streams) Close() error {
	if b.done {
		return nil
	}
	return b.zr.Close()
}

// bzip2Tail feeds the decoder byte by byte and remembers the last bytes it
// handed out. The decoder sees an io.ByteReader and never reads ahead.
type bzip2Tail struct {
	c    *stream.Cursor
	last [16]byte
	n    int64
}

func (t *bzip2Tail) ReadByte() (byte, error) {
	b, err := t.c.ReadByte()
	if err != nil {
		return 0, err
	}
	t.last[t.n%int64(len(t.last))] = b
	t.n++
	return b, nil
}

func (t *bzip2Tail) Read(p []byte) (int, error) {
	for i := range p {
		b, err := t.ReadByte()
		if err != nil {
			return i, err
		}
		p[i] = b
	}
	return len(p), nil
}

// afterFooter reports whether a stream footer ended one or two bytes
// before the current position. Those are the bytes the decoder consumes
// while looking for the next stream header before it gives up.
func (t *bzip2Tail) afterFooter() bool {
	for back := int64(1); back <= 2; back++ {
		end := (t.n - back) * 8
		for pad := int64(0); pad < 8; pad++ {
			start := end - pad - 32 - 48
			if start < 0 {
				continue
			}
			if t.bits(start, 48) == bzip2EndMagic {
				return true
			}
		}
	}
	return false
}

// bits returns n bits starting at absolute bit offset off, MSB first.
func (t *bzip2Tail) bits(off int64, n int) uint64 {
	if off < (t.n-int64(len(t.last)))*8 {
		return 0
	}
	var v uint64
	for i := int64(0); i < int64(n); i++ {
		bit := off + i
		b := t.last[(bit/8)%int64(len(t.last))]
		v = v<<1 | uint64(b>>(7-bit%8)&1)
	}
	return v
}
