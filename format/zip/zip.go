package zip

import (
	"time"
)

const (
	sigLocalFile    = 0x04034b50
	sigCentralDir   = 0x02014b50
	sigEndOfCentral = 0x06054b50
	sigZip64End     = 0x06064b50
	sigDescriptor   = 0x08074b50

	localHeaderLen   = 30
	centralHeaderLen = 46
	endOfCentralLen  = 22
	descriptorLen    = 16
	descriptor64Len  = 24

	flagEncrypted   = 1 << 0
	flagLzmaEOS     = 1 << 1
	flagLengthAtEnd = 1 << 3
	flagStrongCrypt = 1 << 6
	flagUTF8        = 1 << 11

	versionMadeByUnix = 3 << 8

	uint32Max = 0xffffffff
	uint16Max = 0xffff
)

// Compression methods.
const (
	MethodStore   uint16 = 0
	MethodDeflate uint16 = 8
	MethodBzip2   uint16 = 12
	MethodLzma    uint16 = 14
	MethodZstd    uint16 = 93
	MethodXz      uint16 = 95
	MethodAES     uint16 = 99
)

var methodNames = map[uint16]string{
	0:  "uncompressed",
	1:  "shrinking",
	2:  "reduced-1",
	3:  "reduced-2",
	4:  "reduced-3",
	5:  "reduced-4",
	6:  "imploded",
	7:  "reserved",
	8:  "deflation",
	9:  "deflation-64-bit",
	10: "oldterse",
	11: "reserved",
	12: "bzip",
	13: "reserved",
	14: "lzma",
	15: "reserved",
	16: "reserved",
	17: "reserved",
	18: "ibmterse",
	19: "ibmlz777",
	93: "zstd",
	95: "xz",
	96: "jpeg",
	97: "wav-pack",
	98: "ppmd-1",
	99: "aes",
}

func methodName(m uint16) string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return "unknown"
}

// Extra field IDs.
const (
	extraZip64       = 0x0001
	extraTimestamp   = 0x5455
	extraInfoZipUnix = 0x5855
	extraUnix2       = 0x7855
	extraUnix3       = 0x7875
	extraASi         = 0x756e
	extraUnicodePath = 0x7075
)

// Extended timestamp flags.
const (
	utMtime = 1 << 0
	utAtime = 1 << 1
	utCtime = 1 << 2
)

// dosTime converts an MS-DOS date and time (date in the high half) to a
// time in the local zone.
func dosTime(v uint32) time.Time {
	d := v >> 16
	t := v & 0xffff
	return time.Date(
		int(d>>9)+1980,
		time.Month((d>>5)&0x0f),
		int(d&0x1f),
		int(t>>11),
		int((t>>5)&0x3f),
		int(t&0x1f)*2,
		0,
		time.Local,
	)
}

// toDOSTime converts t to MS-DOS date and time. Times before 1980 clamp
// to the DOS epoch and times after 2107 to its end.
func toDOSTime(t time.Time) uint32 {
	t = t.In(time.Local)
	year := t.Year()
	switch {
	case year < 1980:
		return (1<<5 | 1) << 16
	case year > 2107:
		return uint32((127<<9|12<<5|31))<<16 | uint32(23<<11|59<<5|29)
	}
	d := uint32((year-1980)<<9 | int(t.Month())<<5 | t.Day())
	tm := uint32(t.Hour()<<11 | t.Minute()<<5 | t.Second()/2)
	return d<<16 | tm
}
