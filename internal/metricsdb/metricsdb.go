// Package metricsdb is the relational metrics store: operations,
// transfers, system samples and errors, persisted to a local sqlite
// database with forward-only schema migrations.
package metricsdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/klauspost/compress/zstd"
	"github.com/montanaflynn/stats"

	"github.com/samestrin/diskbalancer/internal/logging"
)

// Store wraps the sqlite connection pool backing the metrics schema.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,

	`CREATE TABLE IF NOT EXISTS operations (
		operation_id TEXT PRIMARY KEY,
		start_time   INTEGER NOT NULL,
		end_time     INTEGER,
		counters     TEXT,
		rates        TEXT,
		mode         TEXT,
		success_rate REAL,
		duration_sec REAL
	)`,

	`CREATE TABLE IF NOT EXISTS transfers (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		operation_id  TEXT NOT NULL REFERENCES operations(operation_id),
		unit_path     TEXT NOT NULL,
		src_disk      TEXT NOT NULL,
		dst_disk      TEXT NOT NULL,
		size_bytes    INTEGER NOT NULL,
		start_time    INTEGER NOT NULL,
		end_time      INTEGER,
		success       BOOLEAN,
		error_message TEXT,
		rate_bps      REAL,
		duration_sec  REAL
	)`,

	`CREATE TABLE IF NOT EXISTS system_metrics (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		operation_id  TEXT NOT NULL REFERENCES operations(operation_id),
		timestamp     INTEGER NOT NULL,
		cpu_percent   REAL,
		mem_percent   REAL,
		read_bps      REAL,
		write_bps     REAL,
		net_send_bps  REAL,
		net_recv_bps  REAL
	)`,

	`CREATE TABLE IF NOT EXISTS operation_errors (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		operation_id TEXT NOT NULL REFERENCES operations(operation_id),
		error_message TEXT NOT NULL,
		error_type    TEXT NOT NULL,
		timestamp     INTEGER NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_transfers_operation ON transfers(operation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_system_metrics_operation ON system_metrics(operation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_system_metrics_timestamp ON system_metrics(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_operation_errors_operation ON operation_errors(operation_id)`,
}

const schemaVersion = 1

// Open creates (if needed) and opens the sqlite database at path, applying
// any pending forward-only migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	logger = logging.Subsys(logger, logging.SubsysMetrics)

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("metricsdb: open: %w", err)
	}
	db.SetMaxOpenConns(1) // serialize writes per process via a single pooled connection

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("metricsdb: ping: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	for _, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("metricsdb: migration failed: %w", err)
		}
	}

	var current int
	row := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`)
	if err := row.Scan(&current); err == sql.ErrNoRows {
		_, err := s.db.Exec(`INSERT INTO schema_version(version) VALUES (?)`, schemaVersion)
		return err
	} else if err != nil {
		return fmt.Errorf("metricsdb: read schema version: %w", err)
	}
	if current < schemaVersion {
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, schemaVersion); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Operation mirrors the operations table.
type Operation struct {
	OperationID string
	StartTime   time.Time
	EndTime     sql.NullTime
	CountersRaw string
	RatesRaw    string
	Mode        string
	SuccessRate float64
	DurationSec float64
}

// Transfer mirrors the transfers table.
type Transfer struct {
	ID           int64
	OperationID  string
	UnitPath     string
	SrcDisk      string
	DstDisk      string
	SizeBytes    int64
	StartTime    time.Time
	EndTime      sql.NullTime
	Success      sql.NullBool
	ErrorMessage string
	RateBps      float64
	DurationSec  float64
}

// SystemMetric mirrors the system_metrics table.
type SystemMetric struct {
	ID          int64
	OperationID string
	Timestamp   time.Time
	CPUPercent  float64
	MemPercent  float64
	ReadBps     float64
	WriteBps    float64
	NetSendBps  float64
	NetRecvBps  float64
}

// OperationError mirrors the operation_errors table.
type OperationError struct {
	ID           int64
	OperationID  string
	ErrorMessage string
	ErrorType    string
	Timestamp    time.Time
}

// StoreOperation inserts a new operation row.
func (s *Store) StoreOperation(ctx context.Context, op Operation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO operations(operation_id, start_time, mode, counters, rates, success_rate, duration_sec)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		op.OperationID, op.StartTime.Unix(), op.Mode, op.CountersRaw, op.RatesRaw, op.SuccessRate, op.DurationSec)
	return err
}

// UpdateOperation updates an existing operation's terminal fields.
func (s *Store) UpdateOperation(ctx context.Context, op Operation) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE operations SET end_time=?, counters=?, rates=?, success_rate=?, duration_sec=? WHERE operation_id=?`,
		op.EndTime.Time.Unix(), op.CountersRaw, op.RatesRaw, op.SuccessRate, op.DurationSec, op.OperationID)
	return err
}

// StoreTransfer inserts a new transfer row and returns its id.
func (s *Store) StoreTransfer(ctx context.Context, t Transfer) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transfers(operation_id, unit_path, src_disk, dst_disk, size_bytes, start_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.OperationID, t.UnitPath, t.SrcDisk, t.DstDisk, t.SizeBytes, t.StartTime.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateTransfer sets a transfer's terminal fields.
func (s *Store) UpdateTransfer(ctx context.Context, id int64, endTime time.Time, success bool, errMsg string, rateBps, durationSec float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transfers SET end_time=?, success=?, error_message=?, rate_bps=?, duration_sec=? WHERE id=?`,
		endTime.Unix(), success, errMsg, rateBps, durationSec, id)
	return err
}

// StoreSystemMetric inserts a sample row.
func (s *Store) StoreSystemMetric(ctx context.Context, m SystemMetric) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_metrics(operation_id, timestamp, cpu_percent, mem_percent, read_bps, write_bps, net_send_bps, net_recv_bps)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.OperationID, m.Timestamp.Unix(), m.CPUPercent, m.MemPercent, m.ReadBps, m.WriteBps, m.NetSendBps, m.NetRecvBps)
	return err
}

// StoreError inserts an operation-level error row.
func (s *Store) StoreError(ctx context.Context, e OperationError) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO operation_errors(operation_id, error_message, error_type, timestamp) VALUES (?, ?, ?, ?)`,
		e.OperationID, e.ErrorMessage, e.ErrorType, e.Timestamp.Unix())
	return err
}

// GetOperation reads one operation by id.
func (s *Store) GetOperation(ctx context.Context, id string) (Operation, error) {
	var op Operation
	var start int64
	var end sql.NullInt64
	row := s.db.QueryRowContext(ctx,
		`SELECT operation_id, start_time, end_time, counters, rates, mode, success_rate, duration_sec FROM operations WHERE operation_id=?`, id)
	if err := row.Scan(&op.OperationID, &start, &end, &op.CountersRaw, &op.RatesRaw, &op.Mode, &op.SuccessRate, &op.DurationSec); err != nil {
		return Operation{}, err
	}
	op.StartTime = time.Unix(start, 0)
	if end.Valid {
		op.EndTime = sql.NullTime{Time: time.Unix(end.Int64, 0), Valid: true}
	}
	return op, nil
}

// ListRunningOperations returns every operation row with no end_time,
// i.e. one still in flight or abandoned by a process that died without
// closing it out.
func (s *Store) ListRunningOperations(ctx context.Context) ([]Operation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT operation_id, start_time, mode, counters, rates, success_rate, duration_sec
		 FROM operations WHERE end_time IS NULL ORDER BY start_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Operation
	for rows.Next() {
		var op Operation
		var start int64
		if err := rows.Scan(&op.OperationID, &start, &op.Mode, &op.CountersRaw, &op.RatesRaw, &op.SuccessRate, &op.DurationSec); err != nil {
			return nil, err
		}
		op.StartTime = time.Unix(start, 0)
		out = append(out, op)
	}
	return out, rows.Err()
}

// GetTransfers lists every transfer for an operation.
func (s *Store) GetTransfers(ctx context.Context, operationID string) ([]Transfer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, operation_id, unit_path, src_disk, dst_disk, size_bytes, start_time, end_time, success, error_message, rate_bps, duration_sec
		 FROM transfers WHERE operation_id=? ORDER BY id`, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		var t Transfer
		var start int64
		var end sql.NullInt64
		if err := rows.Scan(&t.ID, &t.OperationID, &t.UnitPath, &t.SrcDisk, &t.DstDisk, &t.SizeBytes,
			&start, &end, &t.Success, &t.ErrorMessage, &t.RateBps, &t.DurationSec); err != nil {
			return nil, err
		}
		t.StartTime = time.Unix(start, 0)
		if end.Valid {
			t.EndTime = sql.NullTime{Time: time.Unix(end.Int64, 0), Valid: true}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetIncompleteTransfers returns transfers with end_time IS NULL, for
// resume hydration.
func (s *Store) GetIncompleteTransfers(ctx context.Context, operationID string) ([]Transfer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, operation_id, unit_path, src_disk, dst_disk, size_bytes, start_time
		 FROM transfers WHERE operation_id=? AND end_time IS NULL ORDER BY id`, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		var t Transfer
		var start int64
		if err := rows.Scan(&t.ID, &t.OperationID, &t.UnitPath, &t.SrcDisk, &t.DstDisk, &t.SizeBytes, &start); err != nil {
			return nil, err
		}
		t.StartTime = time.Unix(start, 0)
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetSystemMetrics lists every sample for an operation, ordered by time.
func (s *Store) GetSystemMetrics(ctx context.Context, operationID string) ([]SystemMetric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, operation_id, timestamp, cpu_percent, mem_percent, read_bps, write_bps, net_send_bps, net_recv_bps
		 FROM system_metrics WHERE operation_id=? ORDER BY timestamp`, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SystemMetric
	for rows.Next() {
		var m SystemMetric
		var ts int64
		if err := rows.Scan(&m.ID, &m.OperationID, &ts, &m.CPUPercent, &m.MemPercent, &m.ReadBps, &m.WriteBps, &m.NetSendBps, &m.NetRecvBps); err != nil {
			return nil, err
		}
		m.Timestamp = time.Unix(ts, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetOperationErrors lists every error row for an operation.
func (s *Store) GetOperationErrors(ctx context.Context, operationID string) ([]OperationError, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, operation_id, error_message, error_type, timestamp FROM operation_errors WHERE operation_id=? ORDER BY id`, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OperationError
	for rows.Next() {
		var e OperationError
		var ts int64
		if err := rows.Scan(&e.ID, &e.OperationID, &e.ErrorMessage, &e.ErrorType, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RetentionPolicy bounds how many days of history each table retains.
type RetentionPolicy struct {
	OperationsDays    int
	SystemMetricsDays int
	ErrorsDays        int
}

// ApplyRetention deletes rows older than each table's cutoff. Deleting an
// operation cascades to its transfers, samples and errors.
func (s *Store) ApplyRetention(ctx context.Context, now time.Time, p RetentionPolicy) error {
	opCutoff := now.AddDate(0, 0, -p.OperationsDays).Unix()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transfers WHERE operation_id IN (SELECT operation_id FROM operations WHERE start_time < ?)`, opCutoff); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM system_metrics WHERE operation_id IN (SELECT operation_id FROM operations WHERE start_time < ?)`, opCutoff); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM operation_errors WHERE operation_id IN (SELECT operation_id FROM operations WHERE start_time < ?)`, opCutoff); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM operations WHERE start_time < ?`, opCutoff); err != nil {
		return err
	}

	metricsCutoff := now.AddDate(0, 0, -p.SystemMetricsDays).Unix()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM system_metrics WHERE timestamp < ?`, metricsCutoff); err != nil {
		return err
	}

	errCutoff := now.AddDate(0, 0, -p.ErrorsDays).Unix()
	_, err := s.db.ExecContext(ctx, `DELETE FROM operation_errors WHERE timestamp < ?`, errCutoff)
	return err
}

// CompressOldSystemMetrics keeps every Nth sample (sampleRate) for
// operations whose samples are older than thresholdDays, deleting the
// rest.
func (s *Store) CompressOldSystemMetrics(ctx context.Context, now time.Time, thresholdDays int, sampleRate int) error {
	if sampleRate < 1 {
		sampleRate = 1
	}
	cutoff := now.AddDate(0, 0, -thresholdDays).Unix()
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM system_metrics
		WHERE timestamp < ?
		AND id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY operation_id ORDER BY timestamp) AS rn
				FROM system_metrics WHERE timestamp < ?
			) WHERE (rn - 1) % ? = 0
		)`, cutoff, cutoff, sampleRate)
	return err
}

// IntegrityReport summarizes the store's health.
type IntegrityReport struct {
	IntegrityOK      bool
	ForeignKeysOK    bool
	SchemaVersionOK  bool
	Details          string
}

// CheckIntegrity runs sqlite's built-in integrity and foreign-key checks
// plus a schema-version sanity check.
func (s *Store) CheckIntegrity(ctx context.Context) (IntegrityReport, error) {
	var report IntegrityReport

	var integrityResult string
	if err := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&integrityResult); err != nil {
		return report, err
	}
	report.IntegrityOK = integrityResult == "ok"
	report.Details = integrityResult

	rows, err := s.db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return report, err
	}
	report.ForeignKeysOK = !rows.Next()
	rows.Close()

	var version int
	if err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version); err != nil {
		return report, err
	}
	report.SchemaVersionOK = version == schemaVersion

	return report, nil
}

// Repair rebuilds indexes and statistics, then re-checks integrity.
func (s *Store) Repair(ctx context.Context) (IntegrityReport, error) {
	if _, err := s.db.ExecContext(ctx, `REINDEX`); err != nil {
		return IntegrityReport{}, err
	}
	if _, err := s.db.ExecContext(ctx, `ANALYZE`); err != nil {
		return IntegrityReport{}, err
	}
	return s.CheckIntegrity(ctx)
}

// Vacuum reclaims free space and refreshes the query planner's statistics.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `ANALYZE`)
	return err
}

// Backup writes a point-in-time snapshot to destPath using sqlite's
// VACUUM INTO as the underlying copy mechanism, zstd-compressed so the
// on-disk artifact is practical to retain and transfer; destPath should
// carry a .zst suffix by convention. The snapshot's logical contents are
// point-in-time identical to the live store — the compression only
// affects the artifact's bytes, not what it represents.
func (s *Store) Backup(ctx context.Context, destPath string) error {
	tmp := destPath + ".snapshot.tmp"
	os.Remove(tmp)
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, tmp); err != nil {
		return fmt.Errorf("metricsdb: backup snapshot: %w", err)
	}
	defer os.Remove(tmp)

	raw, err := os.ReadFile(tmp)
	if err != nil {
		return fmt.Errorf("metricsdb: read snapshot: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("metricsdb: zstd writer: %w", err)
	}
	defer enc.Close()

	compressed := enc.EncodeAll(raw, nil)
	return os.WriteFile(destPath, compressed, 0o644)
}

// DailyTrend is one calendar day's transfer and resource rollup.
type DailyTrend struct {
	Day              string
	TotalBytes       int64
	TransferCount    int
	AvgCPUPercent    float64
	AvgRateBps       float64
}

// TransferAndResourceTrends rolls up transfers and system samples by
// calendar day.
func (s *Store) TransferAndResourceTrends(ctx context.Context, operationID string) ([]DailyTrend, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date(t.start_time, 'unixepoch') AS day,
		       SUM(t.size_bytes), COUNT(*), AVG(t.rate_bps)
		FROM transfers t WHERE t.operation_id = ? GROUP BY day ORDER BY day`, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyTrend
	for rows.Next() {
		var d DailyTrend
		if err := rows.Scan(&d.Day, &d.TotalBytes, &d.TransferCount, &d.AvgRateBps); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, d := range out {
		var cpu sql.NullFloat64
		row := s.db.QueryRowContext(ctx, `
			SELECT AVG(cpu_percent) FROM system_metrics
			WHERE operation_id = ? AND date(timestamp, 'unixepoch') = ?`, operationID, d.Day)
		if err := row.Scan(&cpu); err != nil {
			return nil, err
		}
		out[i].AvgCPUPercent = cpu.Float64
	}
	return out, nil
}

// DiskRollup is a per-disk performance summary.
type DiskRollup struct {
	Disk          string
	TransferCount int
	TotalBytes    int64
	AvgRateBps    float64
}

// PerDiskRollups summarizes throughput grouped by source disk.
func (s *Store) PerDiskRollups(ctx context.Context, operationID string) ([]DiskRollup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT src_disk, COUNT(*), SUM(size_bytes), AVG(rate_bps)
		FROM transfers WHERE operation_id = ? GROUP BY src_disk ORDER BY src_disk`, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DiskRollup
	for rows.Next() {
		var d DiskRollup
		if err := rows.Scan(&d.Disk, &d.TransferCount, &d.TotalBytes, &d.AvgRateBps); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ModeRollup is a per-performance-mode summary across operations.
type ModeRollup struct {
	Mode          string
	OperationCount int
	AvgSuccessRate float64
	AvgDurationSec float64
}

// PerModeRollups summarizes outcomes grouped by performance mode.
func (s *Store) PerModeRollups(ctx context.Context) ([]ModeRollup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mode, COUNT(*), AVG(success_rate), AVG(duration_sec)
		FROM operations GROUP BY mode ORDER BY mode`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModeRollup
	for rows.Next() {
		var m ModeRollup
		if err := rows.Scan(&m.Mode, &m.OperationCount, &m.AvgSuccessRate, &m.AvgDurationSec); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RateResourceCorrelation computes the Pearson correlation between
// transfer rate and cpu_percent. Each completed transfer with a positive
// rate is paired with the first sample taken within windowSec of its
// midpoint; fewer than two pairs yields 0.
func (s *Store) RateResourceCorrelation(ctx context.Context, operationID string, windowSec int) (float64, error) {
	transfers, err := s.GetTransfers(ctx, operationID)
	if err != nil {
		return 0, err
	}
	samples, err := s.GetSystemMetrics(ctx, operationID)
	if err != nil {
		return 0, err
	}

	var rates, cpuPercents stats.Float64Data
	for _, t := range transfers {
		if !t.EndTime.Valid || t.RateBps <= 0 {
			continue
		}
		mid := t.StartTime.Add(t.EndTime.Time.Sub(t.StartTime) / 2)
		for _, m := range samples {
			if abs(m.Timestamp.Sub(mid)) <= time.Duration(windowSec)*time.Second {
				rates = append(rates, t.RateBps)
				cpuPercents = append(cpuPercents, m.CPUPercent)
				break
			}
		}
	}
	if len(rates) < 2 {
		return 0, nil
	}
	return stats.Correlation(rates, cpuPercents)
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
