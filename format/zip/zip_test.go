package zip

import (
	stdzip "archive/zip"
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/stream"
)

type testFile struct {
	name        string
	body        string
	dir         bool
	link        string
	perm        uint32
	sizeUnknown bool
}

func writeZip(t *testing.T, opts map[string]string, files ...testFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter()
	for k, v := range opts {
		require.NoError(t, w.SetOption(k, v))
	}
	require.NoError(t, w.Open(&buf))

	mtime := time.Date(2024, 5, 6, 7, 8, 10, 0, time.UTC)
	for _, f := range files {
		e := entry.New()
		e.SetPathname(f.name)
		e.SetMtime(mtime)
		e.SetUID(1000)
		e.SetGID(100)
		perm := f.perm
		if perm == 0 {
			perm = 0o644
		}
		switch {
		case f.dir:
			e.SetMode(entry.TypeDir | 0o755)
		case f.link != "":
			e.SetMode(entry.TypeLink | 0o777)
			e.SetSymlink(f.link)
		default:
			e.SetMode(entry.TypeReg | perm)
			if !f.sizeUnknown {
				e.SetSize(int64(len(f.body)))
			}
		}
		require.NoError(t, w.WriteHeader(e))
		if f.body != "" {
			n, err := w.WriteData([]byte(f.body))
			require.NoError(t, err)
			require.Equal(t, len(f.body), n)
		}
		require.NoError(t, w.FinishEntry())
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

type readEntry struct {
	e         *entry.Entry
	body      []byte
	headerErr error
	dataErr   error
}

// readZip reads every entry. It stops at the first fatal error and
// returns it.
func readZip(t *testing.T, data []byte) ([]readEntry, error) {
	t.Helper()
	c := stream.NewCursor(bytes.NewReader(data))
	r := NewReader()
	defer r.Close()

	var out []readEntry
	for {
		e := entry.New()
		err := r.ReadHeader(c, e)
		if err == io.EOF {
			return out, nil
		}
		if errors.IsFatal(err) {
			return out, err
		}
		re := readEntry{e: e, headerErr: err}
		for {
			p, err := r.ReadData(c)
			re.body = append(re.body, p...)
			if err == io.EOF {
				break
			}
			if err != nil {
				if errors.IsFatal(err) {
					return out, err
				}
				re.dataErr = errors.Combine(re.dataErr, err)
				if errors.IsFailed(err) {
					require.NoError(t, r.SkipData(c))
					break
				}
			}
		}
		out = append(out, re)
	}
}

func TestStoreLocalHeader(t *testing.T) {
	data := writeZip(t, map[string]string{"compression": "store"},
		testFile{name: "data", body: "123456789\n"})

	require.Equal(t, uint32(sigLocalFile), binary.LittleEndian.Uint32(data))
	flags := binary.LittleEndian.Uint16(data[6:])
	assert.NotZero(t, flags&flagLengthAtEnd)
	assert.Equal(t, MethodStore, binary.LittleEndian.Uint16(data[8:]))
	assert.Equal(t, uint32(10), binary.LittleEndian.Uint32(data[18:]), "compressed size")
	assert.Equal(t, uint32(10), binary.LittleEndian.Uint32(data[22:]), "uncompressed size")

	entries, err := readZip(t, data)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "data", entries[0].e.Pathname())
	assert.Equal(t, "123456789\n", string(entries[0].body))
	assert.NoError(t, entries[0].dataErr)

	// The descriptor follows the body and carries the IEEE CRC-32.
	nameLen := int(binary.LittleEndian.Uint16(data[26:]))
	extraLen := int(binary.LittleEndian.Uint16(data[28:]))
	desc := data[localHeaderLen+nameLen+extraLen+10:]
	require.Equal(t, uint32(sigDescriptor), binary.LittleEndian.Uint32(desc))
	assert.Equal(t, uint32(0xe0117757), binary.LittleEndian.Uint32(desc[4:]))
	assert.Equal(t, crc32.ChecksumIEEE([]byte("123456789\n")), binary.LittleEndian.Uint32(desc[4:]))
}

func TestRoundTripMethods(t *testing.T) {
	body := strings.Repeat("the quick brown fox jumps over the lazy dog\n", 500)
	for _, method := range []string{"store", "deflate", "bzip2", "lzma", "xz", "zstd"} {
		for _, unknown := range []bool{false, true} {
			name := method
			if unknown {
				name += "/size-unknown"
			}
			t.Run(name, func(t *testing.T) {
				data := writeZip(t, map[string]string{"compression": method},
					testFile{name: "a.txt", body: body, sizeUnknown: unknown},
					testFile{name: "empty.txt", body: "", sizeUnknown: unknown},
					testFile{name: "b.txt", body: "second\n", sizeUnknown: unknown},
				)
				entries, err := readZip(t, data)
				require.NoError(t, err)
				require.Len(t, entries, 3)
				assert.Equal(t, body, string(entries[0].body))
				assert.Empty(t, entries[1].body)
				assert.Equal(t, "second\n", string(entries[2].body))
				for _, re := range entries {
					assert.NoError(t, re.headerErr, re.e.Pathname())
					assert.NoError(t, re.dataErr, re.e.Pathname())
				}
			})
		}
	}
}

func TestStdlibReadsOutput(t *testing.T) {
	for _, method := range []string{"store", "deflate"} {
		t.Run(method, func(t *testing.T) {
			data := writeZip(t, map[string]string{"compression": method},
				testFile{name: "dir", dir: true},
				testFile{name: "dir/one.txt", body: "one\n"},
				testFile{name: "dir/two.txt", body: strings.Repeat("two\n", 1000), sizeUnknown: true},
			)
			zr, err := stdzip.NewReader(bytes.NewReader(data), int64(len(data)))
			require.NoError(t, err)
			require.Len(t, zr.File, 3)
			assert.Equal(t, "dir/", zr.File[0].Name)
			assert.True(t, zr.File[0].FileInfo().IsDir())

			rc, err := zr.File[2].Open()
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, strings.Repeat("two\n", 1000), string(got))
			assert.Equal(t, "-rw-r--r--", zr.File[1].Mode().String())
		})
	}
}

func TestReadStdlibArchive(t *testing.T) {
	var buf bytes.Buffer
	zw := stdzip.NewWriter(&buf)
	fw, err := zw.CreateHeader(&stdzip.FileHeader{Name: "stored.txt", Method: stdzip.Store})
	require.NoError(t, err)
	// A descriptor signature inside the data must not end the entry.
	_, err = fw.Write([]byte("before PK\x07\x08 after"))
	require.NoError(t, err)
	fw, err = zw.Create("deflated.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte(strings.Repeat("deflate me ", 300)))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	entries, err := readZip(t, buf.Bytes())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "before PK\x07\x08 after", string(entries[0].body))
	assert.NoError(t, entries[0].dataErr)
	assert.Equal(t, strings.Repeat("deflate me ", 300), string(entries[1].body))
	assert.NoError(t, entries[1].dataErr)
	assert.Equal(t, int64(len(entries[1].body)), entries[1].e.Size())
}

func TestTruncatedDeflate(t *testing.T) {
	body := make([]byte, 200000)
	for i := range body {
		body[i] = byte(i*7 + i/13)
	}
	data := writeZip(t, nil, testFile{name: "big.bin", body: string(body), sizeUnknown: true})
	truncated := data[:len(data)/2]

	_, err := readZip(t, truncated)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, errors.CodeTruncated, errors.GetCode(err))
	assert.Contains(t, err.Error(), "Truncated ZIP file data")
}

func TestCentralDirectoryOffsets(t *testing.T) {
	data := writeZip(t, nil,
		testFile{name: "small", body: "x"},
		testFile{name: "medium", body: strings.Repeat("medium ", 100)},
		testFile{name: "large", body: strings.Repeat("large body text ", 10000)},
	)

	end := data[len(data)-endOfCentralLen:]
	require.Equal(t, uint32(sigEndOfCentral), binary.LittleEndian.Uint32(end))
	count := int(binary.LittleEndian.Uint16(end[10:]))
	cdSize := int(binary.LittleEndian.Uint32(end[12:]))
	cdStart := int(binary.LittleEndian.Uint32(end[16:]))
	require.Equal(t, 3, count)
	require.Equal(t, len(data)-endOfCentralLen, cdStart+cdSize)
	require.Equal(t, uint32(sigCentralDir), binary.LittleEndian.Uint32(data[cdStart:]))

	names := []string{"small", "medium", "large"}
	p := data[cdStart:]
	last := -1
	for i := 0; i < count; i++ {
		require.Equal(t, uint32(sigCentralDir), binary.LittleEndian.Uint32(p))
		nameLen := int(binary.LittleEndian.Uint16(p[28:]))
		extraLen := int(binary.LittleEndian.Uint16(p[30:]))
		commentLen := int(binary.LittleEndian.Uint16(p[32:]))
		offset := int(binary.LittleEndian.Uint32(p[42:]))
		name := string(p[centralHeaderLen : centralHeaderLen+nameLen])
		assert.Equal(t, names[i], name)
		assert.Greater(t, offset, last)
		last = offset

		local := data[offset:]
		require.Equal(t, uint32(sigLocalFile), binary.LittleEndian.Uint32(local))
		localNameLen := int(binary.LittleEndian.Uint16(local[26:]))
		assert.Equal(t, name, string(local[localHeaderLen:localHeaderLen+localNameLen]))
		p = p[centralHeaderLen+nameLen+extraLen+commentLen:]
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	data := writeZip(t, nil,
		testFile{name: "bin", dir: true},
		testFile{name: "bin/tool", body: "#!/bin/sh\n", perm: 0o755},
		testFile{name: "bin/link", link: "tool"},
		testFile{name: "héllo.txt", body: "utf8\n"},
	)
	entries, err := readZip(t, data)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	dir := entries[0].e
	assert.Equal(t, "bin/", dir.Pathname())
	assert.True(t, dir.IsDir())
	assert.Equal(t, uint32(0o755), dir.Perm())

	tool := entries[1].e
	assert.True(t, tool.IsRegular())
	assert.Equal(t, uint32(0o755), tool.Perm())
	assert.Equal(t, int64(1000), tool.UID())
	assert.Equal(t, int64(100), tool.GID())
	assert.Equal(t, time.Date(2024, 5, 6, 7, 8, 10, 0, time.UTC).Unix(), tool.Mtime().Unix())
	assert.Equal(t, int64(10), tool.Size())

	link := entries[2].e
	assert.True(t, link.IsSymlink())
	assert.Equal(t, "tool", link.Symlink())
	assert.Empty(t, entries[2].body)

	assert.NotZero(t, binary.LittleEndian.Uint16(data[6:])&flagLengthAtEnd)
	assert.Equal(t, "héllo.txt", entries[3].e.Pathname())
}

// localDataOffset returns the offset of the first entry's data.
func localDataOffset(data []byte) int {
	return localHeaderLen + int(binary.LittleEndian.Uint16(data[26:])) + int(binary.LittleEndian.Uint16(data[28:]))
}

func TestBadCRCIsWarning(t *testing.T) {
	data := writeZip(t, map[string]string{"compression": "store"},
		testFile{name: "a", body: "hello world\n"},
		testFile{name: "b", body: "next\n"},
	)
	data[localDataOffset(data)] ^= 0xff

	entries, err := readZip(t, data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Error(t, entries[0].dataErr)
	assert.True(t, errors.IsWarning(entries[0].dataErr))
	assert.Equal(t, errors.CodeChecksum, errors.GetCode(entries[0].dataErr))
	assert.Contains(t, entries[0].dataErr.Error(), "ZIP bad CRC")
	assert.Len(t, entries[0].body, 12)
	assert.Equal(t, "next\n", string(entries[1].body))
}

func TestWrongSizeIsWarning(t *testing.T) {
	data := writeZip(t, map[string]string{"compression": "store"}, testFile{name: "a", body: "abc"})
	// Descriptor uncompressed size.
	off := localDataOffset(data) + 3 + 12
	binary.LittleEndian.PutUint32(data[off:], 4)

	entries, err := readZip(t, data)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, errors.IsWarning(entries[0].dataErr))
	assert.Contains(t, entries[0].dataErr.Error(), "ZIP uncompressed data is wrong size")
}

func TestUnsupportedMethodFailsEntry(t *testing.T) {
	data := writeZip(t, map[string]string{"compression": "store"},
		testFile{name: "a", body: "first"},
		testFile{name: "b", body: "second"},
	)
	binary.LittleEndian.PutUint16(data[8:], 6)

	entries, err := readZip(t, data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, errors.IsFailed(entries[0].dataErr))
	assert.Equal(t, errors.CodeUnsupported, errors.GetCode(entries[0].dataErr))
	assert.Contains(t, entries[0].dataErr.Error(), "imploded")
	assert.Equal(t, "second", string(entries[1].body))
}

func TestEncryptedEntryFails(t *testing.T) {
	data := writeZip(t, nil,
		testFile{name: "secret", body: strings.Repeat("s", 100), sizeUnknown: true},
		testFile{name: "plain", body: "plain"},
	)
	flags := binary.LittleEndian.Uint16(data[6:])
	binary.LittleEndian.PutUint16(data[6:], flags|flagEncrypted)

	entries, err := readZip(t, data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].e.Encrypted())
	assert.True(t, errors.IsFailed(entries[0].dataErr))
	assert.Equal(t, "plain", string(entries[1].body))
}

func TestSkipData(t *testing.T) {
	for _, method := range []string{"store", "deflate", "zstd"} {
		t.Run(method, func(t *testing.T) {
			data := writeZip(t, map[string]string{"compression": method},
				testFile{name: "a", body: strings.Repeat("a", 5000), sizeUnknown: true},
				testFile{name: "b", body: strings.Repeat("b", 5000)},
				testFile{name: "c", body: "c"},
			)
			c := stream.NewCursor(bytes.NewReader(data))
			r := NewReader()
			var names []string
			for {
				e := entry.New()
				err := r.ReadHeader(c, e)
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				names = append(names, e.Pathname())
				if e.Pathname() == "c" {
					p, err := r.ReadData(c)
					require.NoError(t, err)
					assert.Equal(t, "c", string(p))
				}
				require.NoError(t, r.SkipData(c))
			}
			assert.Equal(t, []string{"a", "b", "c"}, names)
		})
	}
}

func TestSelfExtractingPrefix(t *testing.T) {
	archive := writeZip(t, nil, testFile{name: "a", body: "sfx"})
	data := append([]byte("MZ"), bytes.Repeat([]byte{0x90}, 1000)...)
	data = append(data, archive...)

	bid, err := NewReader().Bid(stream.NewCursor(bytes.NewReader(data)))
	require.NoError(t, err)
	assert.Equal(t, 20, bid)

	entries, err := readZip(t, data)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sfx", string(entries[0].body))
}

func TestBid(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  int
	}{
		{"local header", []byte("PK\x03\x04rest"), 30},
		{"empty archive", []byte("PK\x05\x06rest"), 30},
		{"spanning marker", []byte("PK00PK\x03\x04"), 29},
		{"central directory only", []byte("PK\x01\x02"), 0},
		{"short", []byte("PK"), 0},
		{"text", []byte("hello world"), 0},
		{"exe without archive", append([]byte("MZ"), make([]byte, 100)...), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bid, err := NewReader().Bid(stream.NewCursor(bytes.NewReader(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, bid)
		})
	}
}

func TestEmptyArchive(t *testing.T) {
	data := writeZip(t, nil)
	assert.Len(t, data, endOfCentralLen)
	entries, err := readZip(t, data)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnexpectedDescriptorIsFatal(t *testing.T) {
	_, err := readZip(t, []byte("PK\x07\x08\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestWriterOptions(t *testing.T) {
	w := NewWriter()
	assert.ErrorIs(t, w.SetOption("nonsense", "1"), errors.ErrOptionUnknown)

	err := w.SetOption("compression", "shrink")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))

	err = w.SetOption("compression-level", "12")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))

	require.NoError(t, w.SetOption("compression-level", "9"))
	assert.Equal(t, 1, w.SuggestedBytesInLastBlock())
}

func TestWriterDeclaredSize(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter()
	require.NoError(t, w.SetOption("compression", "store"))
	require.NoError(t, w.Open(&buf))

	e := entry.New()
	e.SetPathname("limited")
	e.SetMode(entry.TypeReg | 0o644)
	e.SetSize(4)
	require.NoError(t, w.WriteHeader(e))
	n, err := w.WriteData([]byte("abcdef"))
	assert.Equal(t, 4, n)
	require.Error(t, err)
	assert.True(t, errors.IsFailed(err))
	require.NoError(t, w.FinishEntry())

	e = entry.New()
	e.SetPathname("short")
	e.SetMode(entry.TypeReg | 0o644)
	e.SetSize(8)
	require.NoError(t, w.WriteHeader(e))
	_, err = w.WriteData([]byte("ab"))
	require.NoError(t, err)
	err = w.FinishEntry()
	require.Error(t, err)
	assert.True(t, errors.IsWarning(err))
	require.NoError(t, w.Close())

	entries, err := readZip(t, buf.Bytes())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "abcd", string(entries[0].body))
	assert.Equal(t, "ab\x00\x00\x00\x00\x00\x00", string(entries[1].body))
	assert.NoError(t, entries[1].dataErr)
}

func TestWriterRejectsSpecialFiles(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.Open(io.Discard))
	e := entry.New()
	e.SetPathname("fifo")
	e.SetMode(entry.TypeFIFO | 0o644)
	err := w.WriteHeader(e)
	require.Error(t, err)
	assert.True(t, errors.IsFailed(err))

	e = entry.New()
	e.SetMode(entry.TypeReg | 0o644)
	err = w.WriteHeader(e)
	require.Error(t, err)
	assert.True(t, errors.IsFailed(err))
}

func TestDOSTime(t *testing.T) {
	tm := time.Date(2001, 2, 3, 4, 5, 6, 0, time.Local)
	assert.Equal(t, tm, dosTime(toDOSTime(tm)))
	assert.Equal(t, time.Date(1980, 1, 1, 0, 0, 0, 0, time.Local), dosTime(toDOSTime(time.Unix(0, 0).AddDate(-20, 0, 0))))
}

func TestWriterRejectsLongNames(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter()
	require.NoError(t, w.Open(&buf))

	e := entry.New()
	e.SetPathname(strings.Repeat("n", 70000))
	e.SetMode(entry.TypeReg | 0o644)
	e.SetSize(0)
	err := w.WriteHeader(e)
	require.Error(t, err)
	assert.True(t, errors.IsFailed(err))
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	assert.Zero(t, buf.Len())

	ok := entry.New()
	ok.SetPathname("short.txt")
	ok.SetMode(entry.TypeReg | 0o644)
	ok.SetSize(0)
	require.NoError(t, w.WriteHeader(ok))
	require.NoError(t, w.FinishEntry())
	require.NoError(t, w.Close())

	zr, err := stdzip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "short.txt", zr.File[0].Name)
}
