package compressor

import (
	"io"

	"github.com/dsnet/compress/bzip2"

	"github.com/jmgilman/go/archive/errors"
)

type bzip2Backend struct {
	level int
	zw    *bzip2.Writer
}

func newBzip2Backend() *bzip2Backend {
	return &bzip2Backend{level: bzip2.BestCompression}
}

func (b *bzip2Backend) Name() string {
	return "bzip2"
}

// SetOption accepts compression-level (1-9).
func (b *bzip2Backend) SetOption(key, value string) error {
	if key != "compression-level" {
		return errors.ErrOptionUnknown
	}
	level, err := parseLevel(b.Name(), value, bzip2.BestSpeed, bzip2.BestCompression)
	if err != nil {
		return err
	}
	b.level = level
	return nil
}

func (b *bzip2Backend) Open(sink io.Writer) error {
	zw, err := bzip2.NewWriter(sink, &bzip2.WriterConfig{Level: b.level})
	if err != nil {
		return err
	}
	b.zw = zw
	return nil
}

func (b *bzip2Backend) Write(p []byte) (int, error) {
	return b.zw.Write(p)
}

func (b *bzip2Backend) Close() error {
	return b.zw.Close()
}
