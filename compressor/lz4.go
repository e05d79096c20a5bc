package compressor

import (
	"io"
	"strconv"

	"github.com/pierrec/lz4/v4"

	"github.com/jmgilman/go/archive/errors"
)

var lz4Levels = [10]lz4.CompressionLevel{
	lz4.Fast,
	lz4.Level1,
	lz4.Level2,
	lz4.Level3,
	lz4.Level4,
	lz4.Level5,
	lz4.Level6,
	lz4.Level7,
	lz4.Level8,
	lz4.Level9,
}

var lz4BlockSizes = map[int]lz4.BlockSize{
	4: lz4.Block64Kb,
	5: lz4.Block256Kb,
	6: lz4.Block1Mb,
	7: lz4.Block4Mb,
}

type lz4Backend struct {
	level          int
	blockSize      int
	streamChecksum bool
	blockChecksum  bool
	zw             *lz4.Writer
}

func newLz4Backend() *lz4Backend {
	return &lz4Backend{level: 1, blockSize: 7, streamChecksum: true}
}

func (b *lz4Backend) Name() string {
	return "lz4"
}

// SetOption accepts compression-level (0-9), block-size (4-7),
// stream-checksum and block-checksum.
func (b *lz4Backend) SetOption(key, value string) error {
	switch key {
	case "compression-level":
		level, err := parseLevel(b.Name(), value, 0, 9)
		if err != nil {
			return err
		}
		b.level = level
	case "block-size":
		size, err := strconv.Atoi(value)
		if _, ok := lz4BlockSizes[size]; err != nil || !ok {
			return errors.New(errors.CodeInvalidConfig, "lz4: block-size must be between 4 and 7")
		}
		b.blockSize = size
	case "stream-checksum":
		b.streamChecksum = parseBool(value)
	case "block-checksum":
		b.blockChecksum = parseBool(value)
	default:
		return errors.ErrOptionUnknown
	}
	return nil
}

func (b *lz4Backend) Open(sink io.Writer) error {
	zw := lz4.NewWriter(sink)
	err := zw.Apply(
		lz4.CompressionLevelOption(lz4Levels[b.level]),
		lz4.BlockSizeOption(lz4BlockSizes[b.blockSize]),
		lz4.ChecksumOption(b.streamChecksum),
		lz4.BlockChecksumOption(b.blockChecksum),
		lz4.ConcurrencyOption(1),
	)
	if err != nil {
		return err
	}
	b.zw = zw
	return nil
}

func (b *lz4Backend) Write(p []byte) (int, error) {
	return b.zw.Write(p)
}

func (b *lz4Backend) Close() error {
	return b.zw.Close()
}
