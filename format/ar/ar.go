package ar

import (
	"strconv"
	"strings"

	"github.com/jmgilman/go/archive/errors"
)

const (
	globalHeader = "!<arch>\n"
	headerLen    = 60
	headerMagic  = "`\n"

	bsdLongPrefix = "#1/"
	gnuStringTab  = "//"
	gnuSymbolTab  = "/"
	gnuSymbol64   = "/SYM64/"
)

// Variant selects the long-name convention of the writer.
type Variant int

const (
	BSD Variant = iota
	GNU
)

func (v Variant) String() string {
	if v == GNU {
		return "argnu"
	}
	return "ar"
}

// Header field offsets and widths.
var (
	fieldName  = [2]int{0, 16}
	fieldMtime = [2]int{16, 12}
	fieldUID   = [2]int{28, 6}
	fieldGID   = [2]int{34, 6}
	fieldMode  = [2]int{40, 8}
	fieldSize  = [2]int{48, 10}
)

func slice(h []byte, f [2]int) string {
	return string(h[f[0] : f[0]+f[1]])
}

// parseNumber decodes a space padded numeric field. A blank field is 0.
func parseNumber(s string, base int) (int64, error) {
	s = strings.TrimRight(s, " ")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, base, 64)
	if err != nil || v < 0 {
		return 0, errors.Newf(errors.CodeMalformed, "Damaged ar header: bad numeric field %q", s)
	}
	return v, nil
}
