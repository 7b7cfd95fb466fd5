package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), make([]byte, 100), 0o644))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.bin"), make([]byte, 250), 0o644))

	got, err := DirSize(dir)
	require.NoError(t, err)
	assert.EqualValues(t, 350, got)
}

func TestDirSizeMissing(t *testing.T) {
	got, err := DirSize(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestExistsAndIsDir(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, Exists(dir))
	assert.True(t, IsDir(dir))

	f := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	assert.True(t, Exists(f))
	assert.False(t, IsDir(f))

	assert.False(t, Exists(filepath.Join(dir, "nope")))
}

func TestStatfsOnTempDir(t *testing.T) {
	status, err := Statfs(t.TempDir())
	require.NoError(t, err)
	assert.True(t, status.Mounted)
	assert.Greater(t, status.TotalBytes, int64(0))
}

func TestStatfsMissing(t *testing.T) {
	status, err := Statfs(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.False(t, status.Mounted)
}
