package compressor

import (
	"io"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"

	"github.com/jmgilman/go/archive/errors"
)

// presetDictCap maps xz preset levels to dictionary sizes.
var presetDictCap = [10]int{
	256 << 10,
	1 << 20,
	2 << 20,
	4 << 20,
	4 << 20,
	8 << 20,
	8 << 20,
	16 << 20,
	32 << 20,
	64 << 20,
}

const defaultPreset = 6

type xzBackend struct {
	level int
	zw    *xz.Writer
}

func newXzBackend() *xzBackend {
	return &xzBackend{level: defaultPreset}
}

func (b *xzBackend) Name() string {
	return "xz"
}

// SetOption accepts compression-level (0-9).
func (b *xzBackend) SetOption(key, value string) error {
	if key != "compression-level" {
		return errors.ErrOptionUnknown
	}
	level, err := parseLevel(b.Name(), value, 0, 9)
	if err != nil {
		return err
	}
	b.level = level
	return nil
}

func (b *xzBackend) Open(sink io.Writer) error {
	cfg := xz.WriterConfig{DictCap: presetDictCap[b.level]}
	zw, err := cfg.NewWriter(sink)
	if err != nil {
		return err
	}
	b.zw = zw
	return nil
}

func (b *xzBackend) Write(p []byte) (int, error) {
	return b.zw.Write(p)
}

func (b *xzBackend) Close() error {
	return b.zw.Close()
}

type lzmaBackend struct {
	level int
	zw    *lzma.Writer
}

func newLzmaBackend() *lzmaBackend {
	return &lzmaBackend{level: defaultPreset}
}

func (b *lzmaBackend) Name() string {
	return "lzma"
}

// SetOption accepts compression-level (0-9).
func (b *lzmaBackend) SetOption(key, value string) error {
	if key != "compression-level" {
		return errors.ErrOptionUnknown
	}
	level, err := parseLevel(b.Name(), value, 0, 9)
	if err != nil {
		return err
	}
	b.level = level
	return nil
}

func (b *lzmaBackend) Open(sink io.Writer) error {
	cfg := lzma.WriterConfig{DictCap: presetDictCap[b.level]}
	zw, err := cfg.NewWriter(sink)
	if err != nil {
		return err
	}
	b.zw = zw
	return nil
}

func (b *lzmaBackend) Write(p []byte) (int, error) {
	return b.zw.Write(p)
}

func (b *lzmaBackend) Close() error {
	return b.zw.Close()
}
