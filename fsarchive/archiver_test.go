package fsarchive

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/archive"
	"github.com/jmgilman/go/archive/compressor"
	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/format"
)

var sourceFiles = map[string]string{
	"README.md":           "# project\n",
	"config.json":         `{"name":"demo"}`,
	"data/file1.json":     `[1,2,3]`,
	"data/file2.txt":      strings.Repeat("line of text\n", 500),
	"data/sub/file3.json": `{}`,
	"data/sub/deep/a.bin": string(bytes.Repeat([]byte{0, 1, 2, 3}, 4096)),
}

func newSource(t *testing.T) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	for name, body := range sourceFiles {
		require.NoError(t, util.WriteFile(fs, filepath.Join("src", name), []byte(body), 0o644))
	}
	require.NoError(t, fs.MkdirAll("src/docs/empty", 0o755))
	return fs
}

func archiveTree(t *testing.T, a *Archiver) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, a.Archive(context.Background(), "src", &buf))
	return buf.Bytes()
}

func readFile(t *testing.T, fs billy.Filesystem, name string) string {
	t.Helper()
	data, err := util.ReadFile(fs, name)
	require.NoError(t, err, name)
	return string(data)
}

func TestArchiveExtract_RoundTrip(t *testing.T) {
	tests := []struct {
		format      format.Code
		compression compressor.Code
	}{
		{format.Zip, compressor.None},
		{format.Zip, compressor.Gzip},
		{format.CpioNewc, compressor.Zstd},
		{format.CpioODC, compressor.Xz},
		{format.CpioNewc, compressor.Bzip2},
		{format.Zip, compressor.Lz4},
	}

	for _, tt := range tests {
		t.Run(tt.format.String()+"+"+tt.compression.String(), func(t *testing.T) {
			fs := newSource(t)
			require.NoError(t, fs.Symlink("config.json", "src/link.json"))

			a := New(fs, WithFormat(tt.format), WithCompression(tt.compression), WithWorkers(3))
			data := archiveTree(t, a)

			require.NoError(t, a.Extract(context.Background(), bytes.NewReader(data), "out", DefaultExtractOptions))

			for name, body := range sourceFiles {
				assert.Equal(t, body, readFile(t, fs, filepath.Join("out", name)), name)
			}

			info, err := fs.Stat("out/docs/empty")
			require.NoError(t, err)
			assert.True(t, info.IsDir())

			target, err := fs.Readlink("out/link.json")
			require.NoError(t, err)
			assert.Equal(t, "config.json", target)
		})
	}
}

func TestArchive_EntryOrderIsDeterministic(t *testing.T) {
	fs := newSource(t)
	a := New(fs, WithFormat(format.CpioNewc), WithWorkers(8))

	first := archiveTree(t, a)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, archiveTree(t, a))
	}

	r, err := archive.NewReader(bytes.NewReader(first))
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, e.Pathname())
	}
	assert.Equal(t, []string{
		"README.md",
		"config.json",
		"data",
		"data/file1.json",
		"data/file2.txt",
		"data/sub",
		"data/sub/deep",
		"data/sub/deep/a.bin",
		"data/sub/file3.json",
		"docs",
		"docs/empty",
	}, names)
}

func TestArchiveWithProgress(t *testing.T) {
	fs := newSource(t)
	a := New(fs)

	var want int64
	for _, body := range sourceFiles {
		want += int64(len(body))
	}

	var calls int
	var last, total int64
	var buf bytes.Buffer
	err := a.ArchiveWithProgress(context.Background(), "src", &buf, func(current, tot int64) {
		assert.GreaterOrEqual(t, current, last)
		calls++
		last, total = current, tot
	})
	require.NoError(t, err)

	assert.Positive(t, calls)
	assert.Equal(t, want, total)
	assert.Equal(t, want, last)
}

func TestArchive_ArSkipsDirectories(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "src/a.txt", []byte("a"), 0o644))
	require.NoError(t, util.WriteFile(fs, "src/b.txt", []byte("bb"), 0o644))
	require.NoError(t, fs.MkdirAll("src/nested", 0o755))

	a := New(fs, WithFormat(format.ArBSD))
	data := archiveTree(t, a)

	require.NoError(t, a.Extract(context.Background(), bytes.NewReader(data), "out", DefaultExtractOptions))
	assert.Equal(t, "a", readFile(t, fs, "out/a.txt"))
	assert.Equal(t, "bb", readFile(t, fs, "out/b.txt"))
	_, err := fs.Stat("out/nested")
	assert.True(t, os.IsNotExist(err))
}

func TestArchive_InvalidArguments(t *testing.T) {
	a := New(memfs.New())
	ctx := context.Background()

	err := a.Archive(ctx, "", io.Discard)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))

	err = a.Archive(ctx, "src", nil)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))

	err = a.Archive(ctx, "missing", io.Discard)
	require.Error(t, err)

	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "file", []byte("x"), 0o644))
	err = New(fs).Archive(ctx, "file", io.Discard)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
}

func TestArchive_Canceled(t *testing.T) {
	fs := newSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(fs).Archive(ctx, "src", io.Discard)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestArchive_WriterOptions(t *testing.T) {
	fs := newSource(t)
	a := New(fs, WithWriterOptions(archive.WithOptions("zip:compression=store")))
	data := archiveTree(t, a)

	// Stored bodies appear verbatim in the archive.
	assert.True(t, bytes.Contains(data, []byte(sourceFiles["data/file2.txt"])))
}

func TestNewLocal(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "dir", "f.txt"), []byte("local"), 0o600))

	a := NewLocal(root, WithFormat(format.CpioNewc), WithCompression(compressor.Gzip))
	var buf bytes.Buffer
	require.NoError(t, a.Archive(context.Background(), "src", &buf))

	opts := DefaultExtractOptions
	opts.PreservePerms = true
	require.NoError(t, a.Extract(context.Background(), &buf, "out", opts))

	got, err := os.ReadFile(filepath.Join(root, "out", "dir", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "local", string(got))

	info, err := os.Stat(filepath.Join(root, "out", "dir", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

// writeRaw builds a cpio archive from hand-made entries.
func writeRaw(t *testing.T, entries ...*entry.Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := archive.NewWriter(&buf, archive.WithFormat(format.CpioNewc))
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, w.WriteHeader(e))
		if e.IsRegular() && e.Size() > 0 {
			_, err := w.Write(bytes.Repeat([]byte("x"), int(e.Size())))
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func regular(name string, size int64, perm uint32) *entry.Entry {
	e := entry.New()
	e.SetPathname(name)
	e.SetMode(entry.TypeReg | perm)
	e.SetSize(size)
	return e
}

func symlink(name, target string) *entry.Entry {
	e := entry.New()
	e.SetPathname(name)
	e.SetMode(entry.TypeLink | 0o777)
	e.SetSymlink(target)
	e.SetSize(int64(len(target)))
	return e
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	fs := newSource(t)
	a := New(fs, WithLogger(logger))
	data := archiveTree(t, a)

	opts := DefaultExtractOptions
	opts.FilesToExtract = []string{"*.md"}
	require.NoError(t, a.Extract(context.Background(), bytes.NewReader(data), "out", opts))

	out := buf.String()
	assert.Contains(t, out, "archive created")
	assert.Contains(t, out, "archive extracted")
	assert.Contains(t, out, "component=fsarchive")
	assert.Contains(t, out, "entry=config.json")
	assert.Contains(t, out, "entry not selected")
}
