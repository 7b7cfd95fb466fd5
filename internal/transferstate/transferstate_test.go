package transferstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samestrin/diskbalancer/internal/logging"
)

type fakeStore struct {
	started   []Record
	completed []Record
	preload   []Record
	failStart bool
}

func (f *fakeStore) PersistStart(_ context.Context, r Record) error {
	if f.failStart {
		return assert.AnError
	}
	f.started = append(f.started, r)
	return nil
}

func (f *fakeStore) PersistComplete(_ context.Context, r Record) error {
	f.completed = append(f.completed, r)
	return nil
}

func (f *fakeStore) LoadActive(_ context.Context, _ string) ([]Record, error) {
	return f.preload, nil
}

func TestStartAndCompleteLifecycle(t *testing.T) {
	store := &fakeStore{}
	tr := New(context.Background(), "op1", store, logging.Nop())

	rec := tr.Start(context.Background(), "movies/a", "disk1", "disk2", 100, 1000)
	require.Len(t, tr.Active(), 1)

	tr.Complete(context.Background(), rec, true, "")
	assert.Empty(t, tr.Active())
	require.Len(t, store.completed, 1)
	assert.True(t, store.completed[0].Success)
}

func TestPersistFailureDoesNotCorruptInMemoryState(t *testing.T) {
	store := &fakeStore{failStart: true}
	tr := New(context.Background(), "op1", store, logging.Nop())

	tr.Start(context.Background(), "movies/a", "disk1", "disk2", 100, 1000)
	assert.Len(t, tr.Active(), 1)
}

func TestOrphansAndCleanup(t *testing.T) {
	store := &fakeStore{}
	tr := New(context.Background(), "op1", store, logging.Nop())

	tr.Start(context.Background(), "movies/a", "disk1", "disk2", 100, 1000)
	tr.Start(context.Background(), "movies/b", "disk1", "disk2", 200, 1000)

	currentPlan := map[[2]string]bool{{"disk1", "movies/a"}: true}
	orphans := tr.Orphans(currentPlan)
	require.Len(t, orphans, 1)
	assert.Equal(t, [2]string{"disk1", "movies/b"}, orphans[0])

	var orphanRecords []Record
	for _, r := range tr.Active() {
		if r.UnitPath == "movies/b" {
			orphanRecords = append(orphanRecords, r)
		}
	}
	tr.CleanupOrphans(context.Background(), orphanRecords)

	assert.Len(t, tr.Active(), 1)
	require.Len(t, store.completed, 1)
	assert.Equal(t, "orphaned transfer cleaned up", store.completed[0].ErrorMessage)
}

func TestLoadExistingHydratesActiveSet(t *testing.T) {
	store := &fakeStore{preload: []Record{
		{OperationID: "op1", SrcDisk: "disk1", UnitPath: "movies/a", SizeBytes: 5},
	}}
	tr := New(context.Background(), "op1", store, logging.Nop())
	assert.Len(t, tr.Active(), 1)
}
