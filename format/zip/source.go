package zip

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/jmgilman/go/archive/stream"
)

var descriptorMagic = []byte("PK\x07\x08")

// descriptor holds the values of a data descriptor.
type descriptor struct {
	crc              uint32
	compressedSize   int64
	uncompressedSize int64
}

// source feeds the compressed bytes of one entry to a decoder and counts
// them. It works in one of three modes: bounded by a known size, scanning
// for the data descriptor, or unbounded for decoders that stop by
// themselves and read byte by byte.
type source struct {
	c     *stream.Cursor
	n     int64
	limit int64

	scan     bool
	checkCRC bool
	zip64    bool
	crc      uint32
	desc     *descriptor

	done bool
}

func newBoundedSource(c *stream.Cursor, size int64) *source {
	return &source{c: c, limit: size}
}

func newScanSource(c *stream.Cursor, zip64, checkCRC bool) *source {
	return &source{c: c, limit: -1, scan: true, zip64: zip64, checkCRC: checkCRC}
}

func newOpenSource(c *stream.Cursor) *source {
	return &source{c: c, limit: -1}
}

// Read implements io.Reader. Input that ends before the entry does is
// reported as io.ErrUnexpectedEOF.
func (s *source) Read(p []byte) (int, error) {
	if s.done {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.scan {
		return s.readScan(p)
	}
	if s.limit >= 0 {
		remain := s.limit - s.n
		if remain <= 0 {
			s.done = true
			return 0, io.EOF
		}
		if int64(len(p)) > remain {
			p = p[:remain]
		}
	}
	k, err := s.c.Read(p)
	s.n += int64(k)
	if err == io.EOF {
		if k > 0 {
			return k, nil
		}
		return 0, io.ErrUnexpectedEOF
	}
	return k, err
}

// ReadByte implements io.ByteReader so that flate consumes exactly the
// bytes of the deflate stream.
func (s *source) ReadByte() (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(s, b[:])
	if err == io.ErrUnexpectedEOF && s.done {
		err = io.EOF
	}
	return b[0], err
}

func (s *source) descriptorLen() int {
	if s.zip64 {
		return descriptor64Len
	}
	return descriptorLen
}

// readScan delivers bytes up to the first signature that starts a valid
// descriptor for this entry. The descriptor itself is consumed and kept.
func (s *source) readScan(p []byte) (int, error) {
	dlen := s.descriptorLen()
	buf, err := s.c.Peek(dlen)
	if err != nil && err != io.EOF {
		return 0, err
	}
	if len(buf) < dlen {
		return 0, io.ErrUnexpectedEOF
	}

	end := s.findDescriptor(buf, dlen)
	avail := len(buf) - dlen + 1
	if end >= 0 {
		avail = end
	}
	if end == 0 {
		s.desc = parseDescriptor(buf[:dlen], s.zip64)
		s.done = true
		if err := s.c.Consume(dlen); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	k := copy(p, buf[:avail])
	if s.checkCRC {
		s.crc = crc32.Update(s.crc, crc32.IEEETable, p[:k])
	}
	s.n += int64(k)
	return k, s.c.Consume(k)
}

// findDescriptor returns the offset of the first valid descriptor in buf,
// or -1.
func (s *source) findDescriptor(buf []byte, dlen int) int {
	for off := 0; off+dlen <= len(buf); {
		i := bytes.Index(buf[off:], descriptorMagic)
		if i < 0 || off+i+dlen > len(buf) {
			return -1
		}
		at := off + i
		d := parseDescriptor(buf[at:at+dlen], s.zip64)
		if d.compressedSize == s.n+int64(at) &&
			(!s.checkCRC || crc32.Update(s.crc, crc32.IEEETable, buf[:at]) == d.crc) {
			return at
		}
		off = at + 1
	}
	return -1
}

// parseDescriptor decodes a descriptor that starts with its signature.
func parseDescriptor(b []byte, zip64 bool) *descriptor {
	d := &descriptor{crc: binary.LittleEndian.Uint32(b[4:])}
	if zip64 {
		d.compressedSize = int64(binary.LittleEndian.Uint64(b[8:]))
		d.uncompressedSize = int64(binary.LittleEndian.Uint64(b[16:]))
	} else {
		d.compressedSize = int64(binary.LittleEndian.Uint32(b[8:]))
		d.uncompressedSize = int64(binary.LittleEndian.Uint32(b[12:]))
	}
	return d
}
