package entry

import (
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntry_Size(t *testing.T) {
	e := New()
	assert.False(t, e.HasSize())

	e.SetSize(10)
	assert.True(t, e.HasSize())
	assert.Equal(t, int64(10), e.Size())

	e.UnsetSize()
	assert.False(t, e.HasSize())
	assert.Zero(t, e.Size())
}

func TestEntry_ModeBits(t *testing.T) {
	e := New()
	e.SetMode(TypeReg | 0o644)

	assert.True(t, e.IsRegular())
	assert.Equal(t, uint32(0o644), e.Perm())

	e.SetFiletype(TypeDir)
	assert.True(t, e.IsDir())
	assert.Equal(t, uint32(0o644), e.Perm())

	e.SetPerm(0o755)
	assert.Equal(t, TypeDir|0o755, e.Mode())
}

func TestEntry_SetSymlink(t *testing.T) {
	e := New()
	e.SetPerm(0o777)
	e.SetSymlink("target")

	assert.True(t, e.IsSymlink())
	assert.Equal(t, "target", e.Symlink())
	assert.Equal(t, uint32(0o777), e.Perm())
}

func TestEntry_Times(t *testing.T) {
	e := New()
	now := time.Unix(1700000000, 0)

	assert.False(t, e.HasMtime())
	e.SetMtime(now)
	assert.True(t, e.HasMtime())
	assert.True(t, now.Equal(e.Mtime()))

	e.UnsetMtime()
	assert.False(t, e.HasMtime())
}

func TestEntry_CloneIsIndependent(t *testing.T) {
	e := New()
	e.SetPathname("a")
	e.SetSize(1)

	c := e.Clone()
	c.SetPathname("b")

	assert.Equal(t, "a", e.Pathname())
	assert.Equal(t, "b", c.Pathname())
	assert.Equal(t, int64(1), c.Size())
}

func TestEntry_Clear(t *testing.T) {
	e := New()
	e.SetPathname("a")
	e.SetSize(5)
	e.Clear()

	assert.Equal(t, "", e.Pathname())
	assert.False(t, e.HasSize())
}

func TestFileModeConversion(t *testing.T) {
	tests := []struct {
		name  string
		posix uint32
		fm    fs.FileMode
	}{
		{"regular", TypeReg | 0o644, 0o644},
		{"dir", TypeDir | 0o755, fs.ModeDir | 0o755},
		{"symlink", TypeLink | 0o777, fs.ModeSymlink | 0o777},
		{"setuid", TypeReg | 0o4755, fs.ModeSetuid | 0o755},
		{"fifo", TypeFIFO | 0o600, fs.ModeNamedPipe | 0o600},
		{"char", TypeChr | 0o600, fs.ModeDevice | fs.ModeCharDevice | 0o600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New()
			e.SetMode(tt.posix)
			require.Equal(t, tt.fm, e.FileMode())
			require.Equal(t, tt.posix, ModeFromFileMode(tt.fm))
		})
	}
}
