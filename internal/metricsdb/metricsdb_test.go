package metricsdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samestrin/diskbalancer/internal/logging"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.db")
	s, err := Open(path, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesSchemaVersion(t *testing.T) {
	s := openTestStore(t)
	report, err := s.CheckIntegrity(context.Background())
	require.NoError(t, err)
	assert.True(t, report.IntegrityOK)
	assert.True(t, report.SchemaVersionOK)
}

func TestOperationAndTransferRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	op := Operation{OperationID: "op1", StartTime: time.Now(), Mode: "balanced"}
	require.NoError(t, s.StoreOperation(ctx, op))

	got, err := s.GetOperation(ctx, "op1")
	require.NoError(t, err)
	assert.Equal(t, "op1", got.OperationID)
	assert.Equal(t, "balanced", got.Mode)

	id, err := s.StoreTransfer(ctx, Transfer{
		OperationID: "op1", UnitPath: "movies/a", SrcDisk: "disk1", DstDisk: "disk2",
		SizeBytes: 100, StartTime: time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, s.UpdateTransfer(ctx, id, time.Now(), true, "", 1000, 0.1))

	transfers, err := s.GetTransfers(ctx, "op1")
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.True(t, transfers[0].Success.Bool)
}

func TestGetIncompleteTransfers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StoreOperation(ctx, Operation{OperationID: "op1", StartTime: time.Now()}))
	_, err := s.StoreTransfer(ctx, Transfer{OperationID: "op1", UnitPath: "a", SrcDisk: "disk1", DstDisk: "disk2", SizeBytes: 1, StartTime: time.Now()})
	require.NoError(t, err)

	incomplete, err := s.GetIncompleteTransfers(ctx, "op1")
	require.NoError(t, err)
	assert.Len(t, incomplete, 1)
}

func TestApplyRetentionCascadesDeletes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -100)
	require.NoError(t, s.StoreOperation(ctx, Operation{OperationID: "old-op", StartTime: old}))
	_, err := s.StoreTransfer(ctx, Transfer{OperationID: "old-op", UnitPath: "a", SrcDisk: "disk1", DstDisk: "disk2", SizeBytes: 1, StartTime: old})
	require.NoError(t, err)

	require.NoError(t, s.ApplyRetention(ctx, time.Now(), RetentionPolicy{OperationsDays: 30, SystemMetricsDays: 30, ErrorsDays: 30}))

	_, err = s.GetOperation(ctx, "old-op")
	assert.Error(t, err)
}

func TestStoreAndGetOperationErrors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.StoreOperation(ctx, Operation{OperationID: "op1", StartTime: time.Now()}))
	require.NoError(t, s.StoreError(ctx, OperationError{OperationID: "op1", ErrorMessage: "boom", ErrorType: "copy_tool", Timestamp: time.Now()}))

	errs, err := s.GetOperationErrors(ctx, "op1")
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "boom", errs[0].ErrorMessage)
}

func TestBackupProducesCompressedSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.StoreOperation(ctx, Operation{OperationID: "op1", StartTime: time.Now()}))

	dest := filepath.Join(t.TempDir(), "backup.db.zst")
	require.NoError(t, s.Backup(ctx, dest))
	assert.FileExists(t, dest)
}

func TestPerDiskRollups(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.StoreOperation(ctx, Operation{OperationID: "op1", StartTime: time.Now()}))
	id, err := s.StoreTransfer(ctx, Transfer{OperationID: "op1", UnitPath: "a", SrcDisk: "disk1", DstDisk: "disk2", SizeBytes: 100, StartTime: time.Now()})
	require.NoError(t, err)
	require.NoError(t, s.UpdateTransfer(ctx, id, time.Now(), true, "", 500, 0.2))

	rollups, err := s.PerDiskRollups(ctx, "op1")
	require.NoError(t, err)
	require.Len(t, rollups, 1)
	assert.Equal(t, "disk1", rollups[0].Disk)
}
