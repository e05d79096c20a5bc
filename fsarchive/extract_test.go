package fsarchive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/archive"
	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
)

func TestExtract_FilesToExtract(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		want     []string
		absent   []string
	}{
		{
			name:     "recursive json",
			patterns: []string{"**/*.json"},
			want:     []string{"config.json", "data/file1.json", "data/sub/file3.json"},
			absent:   []string{"README.md", "data/file2.txt", "data/sub/deep/a.bin"},
		},
		{
			name:     "single directory",
			patterns: []string{"data/*"},
			want:     []string{"data/file1.json", "data/file2.txt"},
			absent:   []string{"config.json", "data/sub/file3.json"},
		},
		{
			name:     "several patterns",
			patterns: []string{"*.md", "data/**/*.bin"},
			want:     []string{"README.md", "data/sub/deep/a.bin"},
			absent:   []string{"config.json", "data/file2.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newSource(t)
			a := New(fs)
			data := archiveTree(t, a)

			opts := DefaultExtractOptions
			opts.FilesToExtract = tt.patterns
			require.NoError(t, a.Extract(context.Background(), bytes.NewReader(data), "out", opts))

			for _, name := range tt.want {
				assert.Equal(t, sourceFiles[name], readFile(t, fs, "out/"+name))
			}
			for _, name := range tt.absent {
				_, err := fs.Stat("out/" + name)
				assert.True(t, os.IsNotExist(err), name)
			}
		})
	}
}

func TestExtract_InvalidPattern(t *testing.T) {
	opts := DefaultExtractOptions
	opts.FilesToExtract = []string{"data/[a-"}

	err := New(memfs.New()).Extract(context.Background(), bytes.NewReader(nil), "out", opts)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
}

func TestExtract_StripPrefix(t *testing.T) {
	fs := newSource(t)
	a := New(fs)
	data := archiveTree(t, a)

	opts := DefaultExtractOptions
	opts.StripPrefix = "data/"
	require.NoError(t, a.Extract(context.Background(), bytes.NewReader(data), "out", opts))

	assert.Equal(t, sourceFiles["data/file1.json"], readFile(t, fs, "out/file1.json"))
	assert.Equal(t, sourceFiles["data/sub/file3.json"], readFile(t, fs, "out/sub/file3.json"))
	assert.Equal(t, sourceFiles["config.json"], readFile(t, fs, "out/config.json"))
}

func TestExtract_Limits(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ExtractOptions)
	}{
		{"max files", func(o *ExtractOptions) { o.MaxFiles = 3 }},
		{"max file size", func(o *ExtractOptions) { o.MaxFileSize = 1024 }},
		{"max total size", func(o *ExtractOptions) { o.MaxSize = 8 * 1024 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newSource(t)
			a := New(fs)
			data := archiveTree(t, a)

			opts := DefaultExtractOptions
			tt.modify(&opts)
			err := a.Extract(context.Background(), bytes.NewReader(data), "out", opts)
			require.Error(t, err)
			assert.Equal(t, errors.CodeSecurity, errors.GetCode(err))
		})
	}
}

func TestExtract_UnsizedEntriesAreBounded(t *testing.T) {
	// The raw format reports no size, so the limit is checked while copying.
	data := bytes.Repeat([]byte("z"), 4096)
	fs := memfs.New()
	a := New(fs, WithReaderOptions(archive.WithRawFormat()))

	opts := DefaultExtractOptions
	opts.MaxFileSize = 1000
	err := a.Extract(context.Background(), bytes.NewReader(data), "out", opts)
	require.Error(t, err)
	assert.Equal(t, errors.CodeSecurity, errors.GetCode(err))

	opts.MaxFileSize = 0
	require.NoError(t, a.Extract(context.Background(), bytes.NewReader(data), "out", opts))
	assert.Equal(t, string(data), readFile(t, fs, "out/data"))
}

func TestExtract_RejectsUnsafeEntries(t *testing.T) {
	setuid := regular("tool", 4, 0o4755)
	setgid := regular("tool", 4, 0o2755)

	tests := []struct {
		name    string
		entries []*entry.Entry
	}{
		{"parent traversal", []*entry.Entry{regular("../evil.txt", 4, 0o644)}},
		{"nested traversal", []*entry.Entry{regular("a/../../evil.txt", 4, 0o644)}},
		{"absolute", []*entry.Entry{regular("/etc/evil", 4, 0o644)}},
		{"hidden", []*entry.Entry{regular(".bashrc", 4, 0o644)}},
		{"setuid", []*entry.Entry{setuid}},
		{"setgid", []*entry.Entry{setgid}},
		{"escaping symlink", []*entry.Entry{symlink("dir/link", "../../etc/passwd")}},
		{"absolute symlink", []*entry.Entry{symlink("link", "/etc/passwd")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := writeRaw(t, tt.entries...)
			fs := memfs.New()

			err := New(fs).Extract(context.Background(), bytes.NewReader(data), "out", DefaultExtractOptions)
			require.Error(t, err)
			assert.Equal(t, errors.CodeSecurity, errors.GetCode(err))

			_, statErr := fs.Stat("evil.txt")
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestExtract_HiddenAllowed(t *testing.T) {
	data := writeRaw(t, regular(".config/app.yaml", 3, 0o644))
	fs := memfs.New()

	opts := DefaultExtractOptions
	opts.AllowHiddenFiles = true
	require.NoError(t, New(fs).Extract(context.Background(), bytes.NewReader(data), "out", opts))
	assert.Equal(t, "xxx", readFile(t, fs, "out/.config/app.yaml"))
}

func TestExtract_InternalSymlink(t *testing.T) {
	data := writeRaw(t,
		regular("dir/sub/target.txt", 2, 0o644),
		symlink("dir/link", "sub/target.txt"),
	)
	fs := memfs.New()

	require.NoError(t, New(fs).Extract(context.Background(), bytes.NewReader(data), "out", DefaultExtractOptions))
	target, err := fs.Readlink("out/dir/link")
	require.NoError(t, err)
	assert.Equal(t, "sub/target.txt", target)
}

func TestExtract_SymlinkChains(t *testing.T) {
	tests := []struct {
		name    string
		entries []*entry.Entry
	}{
		{"parent of linked directory", []*entry.Entry{
			symlink("a", "."),
			symlink("a/b", ".."),
			regular("a/b/escaped.txt", 4, 0o644),
		}},
		{"file below linked directory", []*entry.Entry{
			symlink("a", "."),
			regular("a/escaped.txt", 4, 0o644),
		}},
		{"relative escape", []*entry.Entry{
			symlink("dir/up", "../.."),
			regular("dir/up/escaped.txt", 4, 0o644),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := t.TempDir()
			root := filepath.Join(tmp, "root")
			require.NoError(t, os.MkdirAll(root, 0o755))
			data := writeRaw(t, tt.entries...)

			err := NewLocal(root).Extract(context.Background(), bytes.NewReader(data), "out", DefaultExtractOptions)
			require.Error(t, err)
			assert.Equal(t, errors.CodeSecurity, errors.GetCode(err))

			for _, dir := range []string{tmp, root, filepath.Join(root, "out")} {
				_, statErr := os.Lstat(filepath.Join(dir, "escaped.txt"))
				assert.True(t, os.IsNotExist(statErr), dir)
			}
		})
	}
}

func TestExtract_FileReplacesSymlink(t *testing.T) {
	data := writeRaw(t,
		regular("real.txt", 3, 0o644),
		symlink("name.txt", "real.txt"),
		regular("name.txt", 5, 0o644),
	)
	fs := memfs.New()

	require.NoError(t, New(fs).Extract(context.Background(), bytes.NewReader(data), "out", DefaultExtractOptions))
	assert.Equal(t, "xxx", readFile(t, fs, "out/real.txt"))
	assert.Equal(t, "xxxxx", readFile(t, fs, "out/name.txt"))

	info, err := fs.Lstat("out/name.txt")
	require.NoError(t, err)
	assert.Zero(t, info.Mode()&os.ModeSymlink)
}

func TestExtract_Permissions(t *testing.T) {
	data := writeRaw(t, regular("bin/run.sh", 5, 0o750))

	t.Run("sanitized", func(t *testing.T) {
		fs := memfs.New()
		require.NoError(t, New(fs).Extract(context.Background(), bytes.NewReader(data), "out", DefaultExtractOptions))
		info, err := fs.Stat("out/bin/run.sh")
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	})

	t.Run("preserved", func(t *testing.T) {
		fs := memfs.New()
		opts := DefaultExtractOptions
		opts.PreservePerms = true
		require.NoError(t, New(fs).Extract(context.Background(), bytes.NewReader(data), "out", opts))
		info, err := fs.Stat("out/bin/run.sh")
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())
	})
}

func TestExtract_Hardlink(t *testing.T) {
	orig := regular("orig.txt", 6, 0o644)
	link := regular("copy.txt", 0, 0o644)
	for _, e := range []*entry.Entry{orig, link} {
		e.SetIno(42)
		e.SetNlink(2)
	}
	data := writeRaw(t, orig, link)
	fs := memfs.New()

	require.NoError(t, New(fs).Extract(context.Background(), bytes.NewReader(data), "out", DefaultExtractOptions))
	assert.Equal(t, "xxxxxx", readFile(t, fs, "out/orig.txt"))
	assert.Equal(t, "xxxxxx", readFile(t, fs, "out/copy.txt"))
}

func TestExtract_Canceled(t *testing.T) {
	fs := newSource(t)
	a := New(fs)
	data := archiveTree(t, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.Extract(ctx, bytes.NewReader(data), "out", DefaultExtractOptions)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtract_InvalidArguments(t *testing.T) {
	a := New(memfs.New())

	err := a.Extract(context.Background(), nil, "out", DefaultExtractOptions)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))

	err = a.Extract(context.Background(), bytes.NewReader(nil), "", DefaultExtractOptions)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
}

func TestExtract_Unrecognized(t *testing.T) {
	err := New(memfs.New()).Extract(context.Background(),
		bytes.NewReader([]byte("definitely not an archive at all")), "out", DefaultExtractOptions)
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnrecognized, errors.GetCode(err))
}
