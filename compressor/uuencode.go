package compressor

import (
	"io"
	"strconv"

	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/internal/uu"
)

type uuencodeBackend struct {
	begin uu.Begin
	zw    *uu.Writer
}

func newUUEncodeBackend() *uuencodeBackend {
	return &uuencodeBackend{begin: uu.Begin{Mode: 0o644, Name: "-"}}
}

func (b *uuencodeBackend) Name() string {
	return "uuencode"
}

// SetOption accepts mode (octal), name and encode-base64.
func (b *uuencodeBackend) SetOption(key, value string) error {
	switch key {
	case "mode":
		mode, err := strconv.ParseUint(value, 8, 32)
		if err != nil {
			return errors.Newf(errors.CodeInvalidConfig, "uuencode: invalid mode %q", value)
		}
		b.begin.Mode = uint32(mode)
	case "name":
		if value == "" {
			return errors.New(errors.CodeInvalidConfig, "uuencode: name must not be empty")
		}
		b.begin.Name = value
	case "encode-base64":
		b.begin.Base64 = parseBool(value)
	default:
		return errors.ErrOptionUnknown
	}
	return nil
}

func (b *uuencodeBackend) Open(sink io.Writer) error {
	b.zw = uu.NewWriter(sink, b.begin)
	return nil
}

func (b *uuencodeBackend) Write(p []byte) (int, error) {
	return b.zw.Write(p)
}

func (b *uuencodeBackend) Close() error {
	return b.zw.Close()
}
