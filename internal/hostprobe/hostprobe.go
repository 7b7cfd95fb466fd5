// Package hostprobe defines the capability contract the scheduler consults
// before launching a rebalance and after finishing one. Implementations
// live outside this module — they depend on host-specific facilities
// (array state, parity status, temperature sensors, notification
// transports) that are out of scope here.
package hostprobe

import "time"

// Probe is consulted immediately before a scheduled or on-demand rebalance
// is launched.
type Probe interface {
	// IsSafeToRun reports whether conditions allow a rebalance to start: the
	// storage array is started, no parity operation is in progress, no
	// missing/disabled disks, no per-disk error flags, temperatures within
	// limit. ok is false iff reasons is non-empty.
	IsSafeToRun() (ok bool, reasons []string)

	// InMaintenanceWindow reports whether now falls inside a configured
	// maintenance window during which rebalances are permitted to run
	// without further gating.
	InMaintenanceWindow(now time.Time) bool

	// Notify delivers a message at the given severity level through
	// whatever transport the host integration provides (email, webhook,
	// local notification system). Returns whether delivery succeeded.
	Notify(subject, message string, level Level) bool
}

// Level is a notification severity.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelWarning  Level = "warning"
	LevelAlert    Level = "alert"
	LevelCritical Level = "critical"
)

// Nop is a Probe that always reports safe-to-run, never in a maintenance
// window, and silently drops notifications — a harmless default for tests
// and environments with no host integration configured.
type Nop struct{}

func (Nop) IsSafeToRun() (bool, []string)            { return true, nil }
func (Nop) InMaintenanceWindow(time.Time) bool        { return false }
func (Nop) Notify(_, _ string, _ Level) bool          { return false }
