package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/samestrin/diskbalancer/internal/metricsdb"
	"github.com/samestrin/diskbalancer/internal/scheduler"
	"github.com/samestrin/diskbalancer/internal/sysmonitor"
	"github.com/samestrin/diskbalancer/internal/transferstate"
)

// metricsErrorSink adapts metricsdb.Store to executor.ErrorSink.
type metricsErrorSink struct{ store *metricsdb.Store }

func (s metricsErrorSink) StoreError(ctx context.Context, operationID, message, errType string, at time.Time) {
	_ = s.store.StoreError(ctx, metricsdb.OperationError{
		OperationID:  operationID,
		ErrorMessage: message,
		ErrorType:    errType,
		Timestamp:    at,
	})
}

// metricsTransferStateStore adapts metricsdb.Store to transferstate.Store,
// representing each tracked unit as one transfers-table row.
type metricsTransferStateStore struct{ store *metricsdb.Store }

func (s metricsTransferStateStore) PersistStart(ctx context.Context, r transferstate.Record) error {
	_, err := s.store.StoreTransfer(ctx, metricsdb.Transfer{
		OperationID: r.OperationID,
		UnitPath:    r.UnitPath,
		SrcDisk:     r.SrcDisk,
		DstDisk:     r.DstDisk,
		SizeBytes:   r.SizeBytes,
		StartTime:   time.Unix(r.StartTimeUnix, 0),
	})
	return err
}

func (s metricsTransferStateStore) PersistComplete(ctx context.Context, r transferstate.Record) error {
	transfers, err := s.store.GetTransfers(ctx, r.OperationID)
	if err != nil {
		return err
	}
	for _, t := range transfers {
		if t.UnitPath == r.UnitPath && t.SrcDisk == r.SrcDisk && !t.EndTime.Valid {
			return s.store.UpdateTransfer(ctx, t.ID, time.Now(), r.Success, r.ErrorMessage, 0, 0)
		}
	}
	return nil
}

func (s metricsTransferStateStore) LoadActive(ctx context.Context, operationID string) ([]transferstate.Record, error) {
	transfers, err := s.store.GetIncompleteTransfers(ctx, operationID)
	if err != nil {
		return nil, err
	}
	records := make([]transferstate.Record, 0, len(transfers))
	for _, t := range transfers {
		records = append(records, transferstate.Record{
			OperationID:   t.OperationID,
			UnitPath:      t.UnitPath,
			SrcDisk:       t.SrcDisk,
			DstDisk:       t.DstDisk,
			SizeBytes:     t.SizeBytes,
			StartTimeUnix: t.StartTime.Unix(),
		})
	}
	return records, nil
}

// metricsSampleSink adapts metricsdb.Store to sysmonitor.SampleSink.
type metricsSampleSink struct{ store *metricsdb.Store }

func (s metricsSampleSink) StoreSample(ctx context.Context, sample sysmonitor.Sample) {
	_ = s.store.StoreSystemMetric(ctx, metricsdb.SystemMetric{
		OperationID: sample.OperationID,
		Timestamp:   sample.Timestamp,
		CPUPercent:  sample.CPUPercent,
		MemPercent:  sample.MemPercent,
		ReadBps:     sample.ReadBps,
		WriteBps:    sample.WriteBps,
		NetSendBps:  sample.NetSendBps,
		NetRecvBps:  sample.NetRecvBps,
	})
}

// metricsExecutionStore adapts metricsdb.Store to scheduler.ExecutionStore,
// representing each ScheduleExecution as one operations-table row keyed by
// the execution id.
type metricsExecutionStore struct{ store *metricsdb.Store }

func (s metricsExecutionStore) StoreExecution(ctx context.Context, e scheduler.ScheduleExecution) error {
	return s.store.StoreOperation(ctx, metricsdb.Operation{
		OperationID: e.ID,
		StartTime:   e.StartedAt,
		Mode:        e.ScheduleID,
	})
}

func (s metricsExecutionStore) UpdateExecution(ctx context.Context, e scheduler.ScheduleExecution) error {
	op := metricsdb.Operation{
		OperationID: e.ID,
		StartTime:   e.StartedAt,
		Mode:        e.ScheduleID,
	}
	if e.CompletedAt != nil {
		op.EndTime = sql.NullTime{Time: *e.CompletedAt, Valid: true}
	}
	if e.Status == scheduler.StatusSuccess {
		op.SuccessRate = 1
	}
	return s.store.UpdateOperation(ctx, op)
}

func (s metricsExecutionStore) ListRunning(ctx context.Context) ([]scheduler.ScheduleExecution, error) {
	ops, err := s.store.ListRunningOperations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]scheduler.ScheduleExecution, 0, len(ops))
	for _, op := range ops {
		out = append(out, scheduler.ScheduleExecution{
			ID:         op.OperationID,
			ScheduleID: op.Mode,
			StartedAt:  op.StartTime,
			Status:     scheduler.StatusRunning,
		})
	}
	return out, nil
}

func (s metricsExecutionStore) DeleteExecutionsOlderThan(ctx context.Context, cutoff time.Time) error {
	days := int(time.Since(cutoff).Hours() / 24)
	return s.store.ApplyRetention(ctx, time.Now(), metricsdb.RetentionPolicy{
		OperationsDays:    days,
		SystemMetricsDays: days,
		ErrorsDays:        days,
	})
}
