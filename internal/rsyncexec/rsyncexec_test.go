package rsyncexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samestrin/diskbalancer/internal/logging"
)

func TestBuildArgsFastModeNoCompress(t *testing.T) {
	args := BuildArgs(Request{Mode: ModeFast, SourcePath: "/mnt/disk1/movies/a", DestPath: "/mnt/disk2/movies/a"})
	assert.Contains(t, args, "--no-compress")
	assert.Contains(t, args, "--info=progress2")
	assert.NotContains(t, args, "--remove-source-files")
	assert.Equal(t, "/mnt/disk1/movies/a", args[len(args)-2])
	assert.Equal(t, "/mnt/disk2/movies/a", args[len(args)-1])
}

func TestBuildArgsAtomicMoveAppendsRemoveSourceFiles(t *testing.T) {
	args := BuildArgs(Request{Mode: ModeIntegrity, AtomicMove: true, SourcePath: "/src", DestPath: "/dst"})
	assert.Contains(t, args, "--remove-source-files")
	assert.Contains(t, args, "--checksum")
}

func TestBuildArgsSourceNeverRewrittenWithTrailingSlash(t *testing.T) {
	args := BuildArgs(Request{Mode: ModeBalanced, SourcePath: "/mnt/disk1/movies/a", SourceIsDir: true, DestPath: "/mnt/disk2/movies/a"})
	assert.Contains(t, args, "/mnt/disk1/movies/a")
	assert.NotContains(t, args, "/mnt/disk1/movies/a/")
}

func TestProfileUnknownModeFallsBackToBalanced(t *testing.T) {
	assert.Equal(t, Profile(ModeBalanced), Profile(Mode("bogus")))
}

func TestRunDryRunNeverExecutes(t *testing.T) {
	result, err := Run(context.Background(), Request{
		Mode: ModeFast, SourcePath: "/does/not/exist", DestPath: "/also/missing", DryRun: true,
	}, nil, logging.Nop())
	assert.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
}
