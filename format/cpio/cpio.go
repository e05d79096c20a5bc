package cpio

import (
	"strconv"

	"github.com/jmgilman/go/archive/errors"
)

const (
	magicODC     = "070707"
	magicNewc    = "070701"
	magicNewcCRC = "070702"

	odcHeaderLen  = 76
	newcHeaderLen = 110

	trailerName = "TRAILER!!!"
)

// Variant selects the header encoding.
type Variant int

const (
	ODC Variant = iota
	Newc
)

func (v Variant) String() string {
	if v == Newc {
		return "newc"
	}
	return "odc"
}

// field describes one fixed-width numeric header field.
type field struct {
	off, width int
}

// odc fields, octal.
var (
	odcDev      = field{6, 6}
	odcIno      = field{12, 6}
	odcMode     = field{18, 6}
	odcUID      = field{24, 6}
	odcGID      = field{30, 6}
	odcNlink    = field{36, 6}
	odcRdev     = field{42, 6}
	odcMtime    = field{48, 11}
	odcNamesize = field{59, 6}
	odcFilesize = field{65, 11}
)

// newc fields, hexadecimal.
var (
	newcIno       = field{6, 8}
	newcMode      = field{14, 8}
	newcUID       = field{22, 8}
	newcGID       = field{30, 8}
	newcNlink     = field{38, 8}
	newcMtime     = field{46, 8}
	newcFilesize  = field{54, 8}
	newcDevMajor  = field{62, 8}
	newcDevMinor  = field{70, 8}
	newcRdevMajor = field{78, 8}
	newcRdevMinor = field{86, 8}
	newcNamesize  = field{94, 8}
	newcCheck     = field{102, 8}
)

// parser decodes fields from one header, keeping the first error.
type parser struct {
	h    []byte
	base int
	err  error
}

func (p *parser) get(f field) int64 {
	if p.err != nil {
		return 0
	}
	s := string(p.h[f.off : f.off+f.width])
	v, err := strconv.ParseUint(s, p.base, 64)
	if err != nil {
		p.err = errors.Newf(errors.CodeMalformed, "Damaged cpio header: bad numeric field %q", s)
		return 0
	}
	return int64(v)
}

// pad4 returns the padding that aligns n to 4 bytes.
func pad4(n int64) int64 {
	return (4 - n%4) % 4
}
