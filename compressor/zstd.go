package compressor

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/jmgilman/go/archive/errors"
)

type zstdBackend struct {
	level int
	zw    *zstd.Encoder
}

func newZstdBackend() *zstdBackend {
	return &zstdBackend{level: 3}
}

func (b *zstdBackend) Name() string {
	return "zstd"
}

// SetOption accepts compression-level (1-22).
func (b *zstdBackend) SetOption(key, value string) error {
	if key != "compression-level" {
		return errors.ErrOptionUnknown
	}
	level, err := parseLevel(b.Name(), value, 1, 22)
	if err != nil {
		return err
	}
	b.level = level
	return nil
}

func (b *zstdBackend) Open(sink io.Writer) error {
	zw, err := zstd.NewWriter(sink,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(b.level)),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		return err
	}
	b.zw = zw
	return nil
}

func (b *zstdBackend) Write(p []byte) (int, error) {
	return b.zw.Write(p)
}

func (b *zstdBackend) Close() error {
	return b.zw.Close()
}
