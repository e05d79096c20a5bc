package zip

import (
	"encoding/binary"
	"hash/crc32"
	"time"

	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
)

// localFields are the local header values an extra block may override.
type localFields struct {
	compressedSize   int64
	uncompressedSize int64
	zip64            bool
}

// parseExtra applies the extra block to e and f. Damaged fields are
// skipped and reported as a warning.
func parseExtra(extra []byte, rawName []byte, e *entry.Entry, f *localFields) error {
	var warn error
	for len(extra) > 0 {
		if len(extra) < 4 {
			return errors.Combine(warn, errors.New(errors.CodeMetadata, "Truncated ZIP extra data"))
		}
		id := binary.LittleEndian.Uint16(extra)
		size := int(binary.LittleEndian.Uint16(extra[2:]))
		if 4+size > len(extra) {
			return errors.Combine(warn, errors.Newf(errors.CodeMetadata,
				"ZIP extra field 0x%04x does not fit in extra data", id))
		}
		data := extra[4 : 4+size]
		extra = extra[4+size:]

		switch id {
		case extraZip64:
			f.zip64 = true
			if f.uncompressedSize == uint32Max {
				if len(data) < 8 {
					warn = errors.Combine(warn, errors.New(errors.CodeMetadata, "Truncated ZIP64 extra field"))
					continue
				}
				f.uncompressedSize = int64(binary.LittleEndian.Uint64(data))
				data = data[8:]
			}
			if f.compressedSize == uint32Max {
				if len(data) < 8 {
					warn = errors.Combine(warn, errors.New(errors.CodeMetadata, "Truncated ZIP64 extra field"))
					continue
				}
				f.compressedSize = int64(binary.LittleEndian.Uint64(data))
			}
		case extraTimestamp:
			if len(data) < 1 {
				continue
			}
			flags := data[0]
			data = data[1:]
			if flags&utMtime != 0 && len(data) >= 4 {
				e.SetMtime(unixTime(data))
				data = data[4:]
			}
			if flags&utAtime != 0 && len(data) >= 4 {
				e.SetAtime(unixTime(data))
				data = data[4:]
			}
			if flags&utCtime != 0 && len(data) >= 4 {
				e.SetCtime(unixTime(data))
			}
		case extraInfoZipUnix:
			if len(data) >= 8 {
				e.SetAtime(unixTime(data))
				e.SetMtime(unixTime(data[4:]))
			}
			if len(data) >= 12 {
				e.SetUID(int64(binary.LittleEndian.Uint16(data[8:])))
				e.SetGID(int64(binary.LittleEndian.Uint16(data[10:])))
			}
		case extraUnix2:
			if len(data) >= 4 {
				e.SetUID(int64(binary.LittleEndian.Uint16(data)))
				e.SetGID(int64(binary.LittleEndian.Uint16(data[2:])))
			}
		case extraUnix3:
			uid, gid, ok := parseUnix3(data)
			if !ok {
				warn = errors.Combine(warn, errors.New(errors.CodeMetadata, "Invalid ZIP Unix extra field"))
				continue
			}
			e.SetUID(uid)
			e.SetGID(gid)
		case extraASi:
			if len(data) >= 14 {
				e.SetMode(uint32(binary.LittleEndian.Uint16(data[4:])))
				e.SetUID(int64(binary.LittleEndian.Uint16(data[10:])))
				e.SetGID(int64(binary.LittleEndian.Uint16(data[12:])))
			}
		case extraUnicodePath:
			if len(data) >= 5 && data[0] == 1 &&
				binary.LittleEndian.Uint32(data[1:]) == crc32.ChecksumIEEE(rawName) {
				e.SetPathname(string(data[5:]))
			}
		}
	}
	return warn
}

// parseUnix3 decodes the variable width ids of the 0x7875 field.
func parseUnix3(data []byte) (uid, gid int64, ok bool) {
	if len(data) < 2 || data[0] != 1 {
		return 0, 0, false
	}
	data = data[1:]
	read := func() (int64, bool) {
		if len(data) < 1 {
			return 0, false
		}
		n := int(data[0])
		if n > 8 || len(data) < 1+n {
			return 0, false
		}
		var v uint64
		for i := n - 1; i >= 0; i-- {
			v = v<<8 | uint64(data[1+i])
		}
		data = data[1+n:]
		return int64(v), true
	}
	if uid, ok = read(); !ok {
		return 0, 0, false
	}
	if gid, ok = read(); !ok {
		return 0, 0, false
	}
	return uid, gid, true
}

func unixTime(b []byte) time.Time {
	return time.Unix(int64(int32(binary.LittleEndian.Uint32(b))), 0)
}

// extraBuilder accumulates extra fields.
type extraBuilder []byte

func (b *extraBuilder) field(id uint16, data []byte) {
	*b = binary.LittleEndian.AppendUint16(*b, id)
	*b = binary.LittleEndian.AppendUint16(*b, uint16(len(data)))
	*b = append(*b, data...)
}

// timestampField builds a 0x5455 payload. The central copy carries only
// the modification time.
func timestampField(e *entry.Entry, central bool) []byte {
	var flags byte
	var body []byte
	if e.HasMtime() {
		flags |= utMtime
		body = binary.LittleEndian.AppendUint32(body, uint32(int32(e.Mtime().Unix())))
	}
	if central {
		return append([]byte{flags}, body...)
	}
	if e.HasAtime() {
		flags |= utAtime
		body = binary.LittleEndian.AppendUint32(body, uint32(int32(e.Atime().Unix())))
	}
	if e.HasCtime() {
		flags |= utCtime
		body = binary.LittleEndian.AppendUint32(body, uint32(int32(e.Ctime().Unix())))
	}
	return append([]byte{flags}, body...)
}

// unix3Field builds a 0x7875 payload with 32-bit ids.
func unix3Field(e *entry.Entry) []byte {
	b := []byte{1, 4}
	b = binary.LittleEndian.AppendUint32(b, uint32(e.UID()))
	b = append(b, 4)
	return binary.LittleEndian.AppendUint32(b, uint32(e.GID()))
}

// asiField builds a 0x756e payload: crc, mode, link size, uid, gid.
func asiField(e *entry.Entry) []byte {
	var body []byte
	body = binary.LittleEndian.AppendUint16(body, uint16(e.Mode()))
	body = binary.LittleEndian.AppendUint32(body, 0)
	body = binary.LittleEndian.AppendUint16(body, uint16(e.UID()))
	body = binary.LittleEndian.AppendUint16(body, uint16(e.GID()))
	out := binary.LittleEndian.AppendUint32(nil, crc32.ChecksumIEEE(body))
	return append(out, body...)
}
