package diskinv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samestrin/diskbalancer/internal/logging"
)

func mkDisks(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, n), 0o755))
	}
	return root
}

func TestDiscoverOrdersNaturally(t *testing.T) {
	root := mkDisks(t, "disk2", "disk10", "disk1", "notadisk")

	disks, err := Discover(Options{DisksRoot: root}, logging.Nop())
	require.NoError(t, err)
	require.Len(t, disks, 3)
	assert.Equal(t, []string{"disk1", "disk2", "disk10"},
		[]string{disks[0].Name, disks[1].Name, disks[2].Name})
}

func TestDiscoverIncludeExclude(t *testing.T) {
	root := mkDisks(t, "disk1", "disk2", "disk3")

	disks, err := Discover(Options{
		DisksRoot: root,
		Exclude:   map[string]bool{"disk2": true},
	}, logging.Nop())
	require.NoError(t, err)
	names := []string{disks[0].Name, disks[1].Name}
	assert.Equal(t, []string{"disk1", "disk3"}, names)

	disks, err = Discover(Options{
		DisksRoot: root,
		Include:   map[string]bool{"disk3": true},
	}, logging.Nop())
	require.NoError(t, err)
	require.Len(t, disks, 1)
	assert.Equal(t, "disk3", disks[0].Name)
}

func TestDiscoverEmptyRoot(t *testing.T) {
	root := t.TempDir()
	disks, err := Discover(Options{DisksRoot: root}, logging.Nop())
	require.NoError(t, err)
	assert.Empty(t, disks)
}

func TestFillPercentZeroCapacity(t *testing.T) {
	d := Disk{}
	assert.Zero(t, d.FillPercent())
}
