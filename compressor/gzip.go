package compressor

import (
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/jmgilman/go/archive/errors"
)

type gzipBackend struct {
	level     int
	timestamp bool
	zw        *gzip.Writer
}

func newGzipBackend() *gzipBackend {
	return &gzipBackend{level: gzip.DefaultCompression, timestamp: true}
}

func (b *gzipBackend) Name() string {
	return "gzip"
}

// SetOption accepts compression-level (0-9) and timestamp.
func (b *gzipBackend) SetOption(key, value string) error {
	switch key {
	case "compression-level":
		level, err := parseLevel(b.Name(), value, 0, 9)
		if err != nil {
			return err
		}
		b.level = level
		return nil
	case "timestamp":
		b.timestamp = parseBool(value)
		return nil
	}
	return errors.ErrOptionUnknown
}

func (b *gzipBackend) Open(sink io.Writer) error {
	zw, err := gzip.NewWriterLevel(sink, b.level)
	if err != nil {
		return err
	}
	if b.timestamp {
		zw.ModTime = time.Now()
	}
	b.zw = zw
	return nil
}

func (b *gzipBackend) Write(p []byte) (int, error) {
	return b.zw.Write(p)
}

func (b *gzipBackend) Close() error {
	return b.zw.Close()
}
