package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samestrin/diskbalancer/internal/diskinv"
	"github.com/samestrin/diskbalancer/internal/logging"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func collect(seq func(func(Unit) bool)) []Unit {
	var out []Unit
	seq(func(u Unit) bool {
		out = append(out, u)
		return true
	})
	return out
}

func TestScanDepth0WholeShareIsOneUnit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "movies", "a", "f1.mkv"), 100)
	writeFile(t, filepath.Join(root, "movies", "b", "f2.mkv"), 50)
	disk := diskinv.Disk{Name: "disk1", MountPath: root}

	units := collect(Scan(disk, Options{UnitDepth: 0}, logging.Nop()))
	require.Len(t, units, 1)
	assert.Equal(t, "movies", units[0].Share)
	assert.Equal(t, "", units[0].RelPath)
	assert.EqualValues(t, 150, units[0].SizeBytes)
}

func TestScanDepth1NoRelPathSeparator(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "movies", "Inception", "f.mkv"), 100)
	writeFile(t, filepath.Join(root, "movies", "top.txt"), 10)
	disk := diskinv.Disk{Name: "disk1", MountPath: root}

	units := collect(Scan(disk, Options{UnitDepth: 1}, logging.Nop()))
	require.Len(t, units, 2)
	for _, u := range units {
		assert.NotContains(t, u.RelPath, string(filepath.Separator))
	}
}

func TestScanDepth2FilesAtLevelAreUnits(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "movies", "Inception", "f.mkv"), 100)
	// a file directly under the share root is skipped at depth=2, per the
	// reference generator's behavior.
	writeFile(t, filepath.Join(root, "movies", "top.txt"), 10)
	disk := diskinv.Disk{Name: "disk1", MountPath: root}

	units := collect(Scan(disk, Options{UnitDepth: 2}, logging.Nop()))
	require.Len(t, units, 1)
	assert.Equal(t, filepath.Join("Inception", "f.mkv"), units[0].RelPath)
}

func TestScanMinUnitSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "movies", "small", "f.mkv"), 10)
	writeFile(t, filepath.Join(root, "movies", "big", "f.mkv"), 1000)
	disk := diskinv.Disk{Name: "disk1", MountPath: root}

	units := collect(Scan(disk, Options{UnitDepth: 1, MinUnitSize: 100}, logging.Nop()))
	require.Len(t, units, 1)
	assert.Equal(t, "big", units[0].RelPath)
}

func TestScanExcludeGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "movies", "keep", "f.mkv"), 10)
	writeFile(t, filepath.Join(root, "movies", "Downloads", "f.mkv"), 10)
	disk := diskinv.Disk{Name: "disk1", MountPath: root}

	units := collect(Scan(disk, Options{UnitDepth: 1, ExcludeGlobs: []string{"Downloads"}}, logging.Nop()))
	require.Len(t, units, 1)
	assert.Equal(t, "keep", units[0].RelPath)
}

func TestScanIncludeExcludeShares(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "movies", "a", "f.mkv"), 10)
	writeFile(t, filepath.Join(root, "tv", "b", "f.mkv"), 10)
	disk := diskinv.Disk{Name: "disk1", MountPath: root}

	units := collect(Scan(disk, Options{UnitDepth: 1, ExcludeShares: map[string]bool{"tv": true}}, logging.Nop()))
	require.Len(t, units, 1)
	assert.Equal(t, "movies", units[0].Share)
}

func TestUnitAbsPathAndKey(t *testing.T) {
	u := Unit{Share: "movies", RelPath: "Inception", SourceDisk: "disk1", SizeBytes: 5}
	assert.Equal(t, filepath.Join("/mnt", "disk1", "movies", "Inception"), u.AbsPath("/mnt"))

	src, path := u.Key()
	assert.Equal(t, "disk1", src)
	assert.Equal(t, "movies/Inception", path)

	whole := Unit{Share: "movies", SourceDisk: "disk1"}
	src, path = whole.Key()
	assert.Equal(t, "disk1", src)
	assert.Equal(t, "movies", path)
}
