package filter

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/jmgilman/go/archive/stream"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

const (
	zstdFrameMagic     = 0xfd2fb528
	zstdSkippableMagic = 0x184d2a50
	zstdSkippableMask  = 0xfffffff0
)

// ZstdBidder recognizes zstd frames.
type ZstdBidder struct{}

func (ZstdBidder) Name() string {
	return "zstd"
}

func (ZstdBidder) Bid(upstream *stream.Cursor) (int, error) {
	p, err := peek(upstream, len(zstdMagic))
	if err != nil {
		return 0, err
	}
	if !bytes.HasPrefix(p, zstdMagic) {
		return 0, nil
	}
	return 32, nil
}

func (ZstdBidder) Init(upstream *stream.Cursor) (Filter, error) {
	zr, err := zstd.NewReader(&zstdFrames{c: upstream}, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	closeFn := func() error {
		zr.Close()
		return nil
	}
	return newReadFilter("zstd", zr, closeFn, upstream), nil
}

type zstdState int

const (
	zstdFrameStart zstdState = iota
	zstdBlockHeader
	zstdChecksum
)

// zstdFrames passes whole zstd and skippable frames through to the
// decoder and reports io.EOF at the first byte that starts neither, so
// block padding after the last frame is never decoded. The decoder reads
// ahead, which is why the boundary is found from the frame layout rather
// than from the decoder.
type zstdFrames struct {
	c        *stream.Cursor
	state    zstdState
	remain   int64
	checksum bool
	done     bool
}

func (z *zstdFrames) Read(p []byte) (int, error) {
	for z.remain == 0 {
		if z.done {
			return 0, io.EOF
		}
		if err := z.advance(); err != nil {
			return 0, err
		}
	}
	if int64(len(p)) > z.remain {
		p = p[:z.remain]
	}
	n, err := z.c.Read(p)
	z.remain -= int64(n)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// advance sets remain to the length of the next frame segment.
func (z *zstdFrames) advance() error {
	switch z.state {
	case zstdBlockHeader:
		p, err := peek(z.c, 3)
		if err != nil {
			return err
		}
		if len(p) < 3 {
			return z.truncated(len(p))
		}
		hdr := uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16
		size := int64(hdr >> 3)
		switch (hdr >> 1) & 3 {
		case 1: // RLE
			size = 1
		case 3: // reserved, left for the decoder to reject
			z.remain, z.done = 3, true
			return nil
		}
		z.remain = 3 + size
		if hdr&1 != 0 {
			z.state = zstdFrameStart
			if z.checksum {
				z.state = zstdChecksum
			}
		}
		return nil

	case zstdChecksum:
		z.remain = 4
		z.state = zstdFrameStart
		return nil
	}

	p, err := peek(z.c, 8)
	if err != nil {
		return err
	}
	if len(p) < 4 {
		z.done = true
		return nil
	}
	magic := binary.LittleEndian.Uint32(p)
	switch {
	case magic == zstdFrameMagic:
		if len(p) < 5 {
			return z.truncated(len(p))
		}
		z.remain = int64(zstdFrameHeaderSize(p[4]))
		z.checksum = p[4]&0x04 != 0
		z.state = zstdBlockHeader
	case magic&zstdSkippableMask == zstdSkippableMagic:
		if len(p) < 8 {
			return z.truncated(len(p))
		}
		z.remain = 8 + int64(binary.LittleEndian.Uint32(p[4:]))
	default:
		z.done = true
	}
	return nil
}

// truncated hands the decoder the incomplete tail so it reports the error.
func (z *zstdFrames) truncated(n int) error {
	z.remain, z.done = int64(n), true
	if n == 0 {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// zstdFrameHeaderSize returns the size of the magic plus the frame header
// described by the frame header descriptor byte.
func zstdFrameHeaderSize(fhd byte) int {
	single := fhd&0x20 != 0
	size := 4 + 1
	if !single {
		size++ // window descriptor
	}
	size += [4]int{0, 1, 2, 4}[fhd&0x03]
	switch fhd >> 6 {
	case 0:
		if single {
			size++
		}
	case 1:
		size += 2
	case 2:
		size += 4
	case 3:
		size += 8
	}
	return size
}
