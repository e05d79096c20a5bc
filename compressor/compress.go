package compressor

import (
	"io"

	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/internal/lzw"
)

type compressBackend struct {
	zw *lzw.Writer
}

func (b *compressBackend) Name() string {
	return "compress"
}

func (b *compressBackend) SetOption(string, string) error {
	return errors.ErrOptionUnknown
}

func (b *compressBackend) Open(sink io.Writer) error {
	zw, err := lzw.NewWriter(sink, lzw.DefaultMaxBits)
	if err != nil {
		return err
	}
	b.zw = zw
	return nil
}

func (b *compressBackend) Write(p []byte) (int, error) {
	return b.zw.Write(p)
}

func (b *compressBackend) Close() error {
	return b.zw.Close()
}
