package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samestrin/diskbalancer/internal/logging"
	"github.com/samestrin/diskbalancer/internal/planner"
	"github.com/samestrin/diskbalancer/internal/rsyncexec"
	"github.com/samestrin/diskbalancer/internal/scanner"
)

func setupDisks(t *testing.T) (root string) {
	t.Helper()
	root = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "disk1", "movies", "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "disk1", "movies", "a", "f.mkv"), []byte("hello"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "disk2"), 0o755))
	return root
}

func TestPerformDryRunSucceedsAndLeavesSourceInPlace(t *testing.T) {
	root := setupDisks(t)
	plan := planner.Plan{Moves: []planner.Move{
		{Unit: scanner.Unit{Share: "movies", RelPath: "a", SourceDisk: "disk1", SizeBytes: 5}, DestinationDisk: "disk2"},
	}}

	ex := New(Config{DisksRoot: root, Mode: rsyncexec.ModeBalanced, DryRun: true}, nil, nil, nil, logging.Nop())
	summary := ex.Perform(context.Background(), "op1", plan)

	assert.Equal(t, 1, summary.Attempted)
	assert.Equal(t, 1, summary.Succeeded)
	assert.True(t, pathStillExists(t, filepath.Join(root, "disk1", "movies", "a", "f.mkv")))
}

func TestPerformSkipsWhenDestExistsAndMergeDisallowed(t *testing.T) {
	root := setupDisks(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "disk2", "movies", "a"), 0o755))

	plan := planner.Plan{Moves: []planner.Move{
		{Unit: scanner.Unit{Share: "movies", RelPath: "a", SourceDisk: "disk1", SizeBytes: 5}, DestinationDisk: "disk2"},
	}}

	ex := New(Config{DisksRoot: root, Mode: rsyncexec.ModeBalanced, DryRun: true, AllowMerge: false}, nil, nil, nil, logging.Nop())
	summary := ex.Perform(context.Background(), "op1", plan)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
}

type fakeMonitor struct {
	called bool
}

func (f *fakeMonitor) RecordTransferCompletion(rateBps float64, transferredBytes int64, finished time.Time) {
	f.called = true
}

func TestPerformNotifiesMonitorOnSuccess(t *testing.T) {
	root := setupDisks(t)
	plan := planner.Plan{Moves: []planner.Move{
		{Unit: scanner.Unit{Share: "movies", RelPath: "a", SourceDisk: "disk1", SizeBytes: 5}, DestinationDisk: "disk2"},
	}}

	mon := &fakeMonitor{}
	ex := New(Config{DisksRoot: root, Mode: rsyncexec.ModeBalanced, DryRun: true}, nil, mon, nil, logging.Nop())
	ex.Perform(context.Background(), "op1", plan)

	assert.True(t, mon.called)
}

func pathStillExists(t *testing.T, p string) bool {
	t.Helper()
	_, err := os.Stat(p)
	return err == nil
}
