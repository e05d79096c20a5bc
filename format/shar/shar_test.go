package shar

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
)

type member struct {
	name   string
	mode   uint32
	body   string
	target string
}

func (m member) entry() *entry.Entry {
	e := entry.New()
	e.SetPathname(m.name)
	e.SetMode(m.mode)
	if m.target != "" {
		e.SetSymlink(m.target)
	}
	if m.mode&entry.TypeMask == entry.TypeReg {
		e.SetSize(int64(len(m.body)))
	}
	return e
}

func writeScript(t *testing.T, w *Writer, members ...member) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, w.Open(&buf))
	for _, m := range members {
		require.NoError(t, w.WriteHeader(m.entry()))
		if m.body != "" {
			_, err := w.WriteData([]byte(m.body))
			require.NoError(t, err)
		}
		require.NoError(t, w.FinishEntry())
	}
	require.NoError(t, w.Close())
	return buf.String()
}

func TestSharOutput(t *testing.T) {
	got := writeScript(t, NewWriter(),
		member{name: "a/", mode: entry.TypeDir | 0o755},
		member{name: "a/b.txt", mode: entry.TypeReg | 0o644, body: "hi\nyo"},
	)

	want := "#!/bin/sh\n# This is a shell archive\n" +
		"echo x a\n" +
		"mkdir -p a > /dev/null 2>&1\n" +
		"echo x a/b.txt\n" +
		"sed 's/^X//' > a/b.txt << 'SHAR_END'\n" +
		"Xhi\n" +
		"Xyo\n" +
		"SHAR_END\n" +
		"exit\n"
	assert.Equal(t, want, got)
}

func TestSharSpecialFiles(t *testing.T) {
	dev := member{name: "dev/null", mode: entry.TypeChr | 0o666}
	devEntry := dev.entry()
	devEntry.SetRdev(1, 3)

	var buf bytes.Buffer
	w := NewWriter()
	require.NoError(t, w.Open(&buf))
	require.NoError(t, w.WriteHeader(member{name: "it's here", mode: entry.TypeReg | 0o644}.entry()))
	require.NoError(t, w.WriteHeader(member{name: "link", mode: entry.TypeLink | 0o777, target: "it's here"}.entry()))
	require.NoError(t, w.WriteHeader(member{name: "pipe", mode: entry.TypeFIFO | 0o644}.entry()))
	require.NoError(t, w.WriteHeader(devEntry))
	hard := member{name: "hard", mode: entry.TypeReg | 0o644}.entry()
	hard.SetHardlink("it's here")
	require.NoError(t, w.WriteHeader(hard))
	require.NoError(t, w.Close())

	out := buf.String()
	assert.Contains(t, out, `touch 'it'\''s here'`+"\n")
	assert.Contains(t, out, `ln -s 'it'\''s here' link`+"\n")
	assert.Contains(t, out, "mkfifo pipe\n")
	assert.Contains(t, out, "mkdir -p dev > /dev/null 2>&1\nmknod dev/null c 1 3\n")
	assert.Contains(t, out, `ln -f 'it'\''s here' hard`+"\n")
}

func TestSharDumpOutput(t *testing.T) {
	m := member{name: "bin.dat", mode: entry.TypeReg | 0o755, body: "\x00\x01\x02binary"}
	e := m.entry()
	e.SetUname("root")
	e.SetGname("wheel")

	var buf bytes.Buffer
	w := NewDumpWriter()
	assert.Equal(t, "shardump", w.Name())
	require.NoError(t, w.Open(&buf))
	require.NoError(t, w.WriteHeader(e))
	_, err := w.WriteData([]byte(m.body))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	out := buf.String()
	assert.Contains(t, out, "uudecode -p > bin.dat << 'SHAR_END'\nbegin 755 bin.dat\n")
	assert.Contains(t, out, "`\nend\nSHAR_END\n")
	assert.Contains(t, out, "chmod 755 bin.dat\nchown root bin.dat\nchgrp wheel bin.dat\nexit\n")
}

func TestSharShortBodyIsPadded(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter()
	require.NoError(t, w.Open(&buf))
	e := member{name: "f", mode: entry.TypeReg | 0o644}.entry()
	e.SetSize(4)
	require.NoError(t, w.WriteHeader(e))
	n, err := w.WriteData([]byte("abcdef"))
	assert.Equal(t, 4, n)
	require.Error(t, err)
	assert.True(t, errors.IsFailed(err))

	e2 := member{name: "g", mode: entry.TypeReg | 0o644}.entry()
	e2.SetSize(3)
	require.NoError(t, w.WriteHeader(e2))
	_, err = w.WriteData([]byte("x"))
	require.NoError(t, err)
	err = w.FinishEntry()
	require.Error(t, err)
	assert.True(t, errors.IsWarning(err))
	assert.Equal(t, errors.CodeSizeMismatch, errors.GetCode(err))
}

func TestSharRejectsSockets(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.Open(&bytes.Buffer{}))
	err := w.WriteHeader(member{name: "sock", mode: entry.TypeSock | 0o644}.entry())
	require.Error(t, err)
	assert.True(t, errors.IsFailed(err))
}

func TestEmptyArchiveWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter()
	require.NoError(t, w.Open(&buf))
	require.NoError(t, w.Close())
	assert.Zero(t, buf.Len())
}

func TestSharScriptRuns(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	if _, err := exec.LookPath("sed"); err != nil {
		t.Skip("sed not available")
	}

	script := writeScript(t, NewWriter(),
		member{name: "top/nested/file.txt", mode: entry.TypeReg | 0o644, body: "X marks\nthe spot\n"},
		member{name: "top/other", mode: entry.TypeReg | 0o644, body: "no newline"},
	)

	dir := t.TempDir()
	cmd := exec.Command(sh)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewBufferString(script)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))

	got, err := os.ReadFile(filepath.Join(dir, "top", "nested", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "X marks\nthe spot\n", string(got))

	got, err = os.ReadFile(filepath.Join(dir, "top", "other"))
	require.NoError(t, err)
	assert.Equal(t, "no newline\n", string(got))
}
