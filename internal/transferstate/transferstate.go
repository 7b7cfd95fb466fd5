// Package transferstate tracks in-flight unit transfers for one operation,
// so an interrupted run can detect orphaned work and resume cleanly.
package transferstate

import (
	"context"
	"log/slog"

	"github.com/samestrin/diskbalancer/internal/chainlock"
	"github.com/samestrin/diskbalancer/internal/logging"
)

// Record is a single transfer's lifecycle state. It is keyed by
// (OperationID, SrcDisk, UnitPath) and, once Completed, is never mutated
// again.
type Record struct {
	OperationID  string
	UnitPath     string
	SrcDisk      string
	DstDisk      string
	SizeBytes    int64
	StartTimeUnix int64
	Completed    bool
	Success      bool
	ErrorMessage string
}

// Key returns the record's identity tuple.
func (r Record) Key() (operationID, srcDisk, unitPath string) {
	return r.OperationID, r.SrcDisk, r.UnitPath
}

// Store is the persistence boundary the tracker degrades gracefully
// against: persistence failures never corrupt the in-memory view. A
// metrics-store implementation of this interface is supplied by callers;
// the tracker has no compile-time dependency on any particular backend.
type Store interface {
	PersistStart(ctx context.Context, r Record) error
	PersistComplete(ctx context.Context, r Record) error
	LoadActive(ctx context.Context, operationID string) ([]Record, error)
}

// Tracker is the in-memory active set for one operation, backed by a
// best-effort Store.
type Tracker struct {
	operationID string
	store       Store
	logger      *slog.Logger

	mu     *chainlock.L
	active map[string]Record // key: src_disk + "\x00" + unit_path
}

// New constructs a Tracker for operationID. If store is non-nil, LoadActive
// is used to hydrate the active set for resume.
func New(ctx context.Context, operationID string, store Store, logger *slog.Logger) *Tracker {
	logger = logging.Subsys(logger, logging.SubsysTransferLog)
	t := &Tracker{
		operationID: operationID,
		store:       store,
		logger:      logger,
		mu:          chainlock.NewL(),
		active:      make(map[string]Record),
	}
	t.loadExisting(ctx)
	return t
}

func mapKey(srcDisk, unitPath string) string {
	return srcDisk + "\x00" + unitPath
}

func (t *Tracker) loadExisting(ctx context.Context) {
	if t.store == nil {
		return
	}
	records, err := t.store.LoadActive(ctx, t.operationID)
	if err != nil {
		t.logger.Warn("failed to hydrate active transfer records", "operation_id", t.operationID, "error", err)
		return
	}
	defer t.mu.Lock().Unlock()
	for _, r := range records {
		t.active[mapKey(r.SrcDisk, r.UnitPath)] = r
	}
}

// Start creates or replaces an in-progress record and persists it
// best-effort.
func (t *Tracker) Start(ctx context.Context, unitPath, srcDisk, dstDisk string, sizeBytes, startTimeUnix int64) Record {
	r := Record{
		OperationID:   t.operationID,
		UnitPath:      unitPath,
		SrcDisk:       srcDisk,
		DstDisk:       dstDisk,
		SizeBytes:     sizeBytes,
		StartTimeUnix: startTimeUnix,
	}
	defer t.mu.Lock().Unlock()
	t.active[mapKey(srcDisk, unitPath)] = r

	if t.store != nil {
		if err := t.store.PersistStart(ctx, r); err != nil {
			t.logger.Warn("failed to persist transfer start", "unit_path", unitPath, "error", err)
		}
	}
	return r
}

// Complete marks record completed with an optional error and persists it
// best-effort, then removes it from the active set.
func (t *Tracker) Complete(ctx context.Context, record Record, success bool, errMsg string) {
	record.Completed = true
	record.Success = success
	record.ErrorMessage = errMsg

	defer t.mu.Lock().Unlock()
	delete(t.active, mapKey(record.SrcDisk, record.UnitPath))

	if t.store != nil {
		if err := t.store.PersistComplete(ctx, record); err != nil {
			t.logger.Warn("failed to persist transfer completion", "unit_path", record.UnitPath, "error", err)
		}
	}
}

// Active lists current in-progress records.
func (t *Tracker) Active() []Record {
	defer t.mu.Lock().Unlock()
	out := make([]Record, 0, len(t.active))
	for _, r := range t.active {
		out = append(out, r)
	}
	return out
}

// Orphans returns active records whose (src_disk, unit_path) key is not
// present in currentPlanKeys.
func (t *Tracker) Orphans(currentPlanKeys map[[2]string]bool) [][2]string {
	defer t.mu.Lock().Unlock()
	var out [][2]string
	for _, r := range t.active {
		key := [2]string{r.SrcDisk, r.UnitPath}
		if !currentPlanKeys[key] {
			out = append(out, key)
		}
	}
	return out
}

// ResolveOrphans maps orphan keys, as returned by Orphans, back to the
// full active records CleanupOrphans needs.
func (t *Tracker) ResolveOrphans(keys [][2]string) []Record {
	defer t.mu.Lock().Unlock()
	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		if r, ok := t.active[mapKey(k[0], k[1])]; ok {
			out = append(out, r)
		}
	}
	return out
}

// CleanupOrphans completes every given record as a failed, orphaned
// transfer.
func (t *Tracker) CleanupOrphans(ctx context.Context, records []Record) {
	for _, r := range records {
		t.Complete(ctx, r, false, "orphaned transfer cleaned up")
	}
}
