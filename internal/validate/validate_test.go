package validate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreTransferPassesHappyPath(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	destParent := t.TempDir()

	report := PreTransfer(PreTransferInput{
		SourcePath:      src,
		DestParentPath:  destParent,
		SourceSizeBytes: 5,
		BufferPercent:   10,
	})
	assert.Equal(t, ResultPassed, report.Overall)
}

func TestPreTransferFailsOnMissingSource(t *testing.T) {
	report := PreTransfer(PreTransferInput{
		SourcePath:     "/nonexistent/path",
		DestParentPath: t.TempDir(),
	})
	assert.Equal(t, ResultFailed, report.Overall)
}

func TestPreTransferFailsOnInsufficientFreeSpace(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	report := PreTransfer(PreTransferInput{
		SourcePath:      src,
		DestParentPath:  t.TempDir(),
		SourceSizeBytes: 1 << 62,
		BufferPercent:   10,
	})
	assert.Equal(t, ResultFailed, report.Overall)
}

func TestPreTransferModeIncompatibilityFails(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	report := PreTransfer(PreTransferInput{
		SourcePath:                 src,
		DestParentPath:             t.TempDir(),
		SourceSizeBytes:            5,
		ModePreservesHardLinksACLs: false,
		RequiresHardLinksOrACLs:    true,
	})
	assert.Equal(t, ResultFailed, report.Overall)
}

func TestPostTransferHappyPath(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "dest.txt")
	require.NoError(t, os.WriteFile(dest, []byte("hello"), 0o644))

	report := PostTransfer(PostTransferInput{
		SourcePath:      filepath.Join(root, "gone.txt"),
		DestPath:        dest,
		SourceSizeBytes: 5,
		CheckSizeMatch:  true,
	})
	assert.Equal(t, ResultPassed, report.Overall)
}

func TestPostTransferWarnsOnSizeMismatchNotFail(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "dest.txt")
	require.NoError(t, os.WriteFile(dest, []byte("hello"), 0o644))

	report := PostTransfer(PostTransferInput{
		SourcePath:      filepath.Join(root, "gone.txt"),
		DestPath:        dest,
		SourceSizeBytes: 999,
		CheckSizeMatch:  true,
	})
	assert.Equal(t, ResultWarning, report.Overall)
}

func TestPostTransferFailsWhenSourceStillPresent(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	dest := filepath.Join(root, "dest.txt")
	require.NoError(t, os.WriteFile(dest, []byte("hello"), 0o644))

	report := PostTransfer(PostTransferInput{SourcePath: src, DestPath: dest})
	assert.Equal(t, ResultFailed, report.Overall)
}
