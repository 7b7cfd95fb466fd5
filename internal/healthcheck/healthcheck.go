// Package healthcheck exposes a Nagios-style pollable check over disk fill
// levels and stalled rebalance executions, built on the same response/
// status-code plugin library the teacher uses for its own monitoring
// checks.
package healthcheck

import (
	"fmt"
	"time"

	"github.com/dsh2dsh/go-monitoringplugin/v2"

	"github.com/samestrin/diskbalancer/internal/diskinv"
)

// DiskUsageCheck evaluates per-disk fill percentage against warning and
// critical thresholds, fluent-built the way SnapCheck is in the teacher's
// monitor package.
type DiskUsageCheck struct {
	warnPercent float64
	critPercent float64
	resp        *monitoringplugin.Response

	worst     float64
	worstDisk string
	failed    bool
}

// NewDiskUsageCheck returns a DiskUsageCheck reporting into resp.
func NewDiskUsageCheck(resp *monitoringplugin.Response) *DiskUsageCheck {
	return &DiskUsageCheck{resp: resp, warnPercent: 85, critPercent: 95}
}

func (c *DiskUsageCheck) WithThresholds(warnPercent, critPercent float64) *DiskUsageCheck {
	c.warnPercent = warnPercent
	c.critPercent = critPercent
	return c
}

// Run evaluates every disk in disks and updates the response.
func (c *DiskUsageCheck) Run(disks []diskinv.Disk) {
	for _, d := range disks {
		fill := d.FillPercent()
		if fill > c.worst {
			c.worst = fill
			c.worstDisk = d.Name
		}

		switch {
		case fill >= c.critPercent:
			c.updateStatus(monitoringplugin.CRITICAL, "disk %q at %.1f%% full (>= %.1f%%)", d.Name, fill, c.critPercent)
		case fill >= c.warnPercent:
			c.updateStatus(monitoringplugin.WARNING, "disk %q at %.1f%% full (>= %.1f%%)", d.Name, fill, c.warnPercent)
		}
	}

	if !c.failed {
		c.resp.UpdateStatus(monitoringplugin.OK, fmt.Sprintf("all disks below %.1f%% full, worst: %q at %.1f%%", c.warnPercent, c.worstDisk, c.worst))
	}
}

func (c *DiskUsageCheck) updateStatus(statusCode int, format string, a ...any) {
	c.failed = c.failed || statusCode != monitoringplugin.OK
	c.resp.UpdateStatus(statusCode, fmt.Sprintf(format, a...))
}

// StalledExecution is the minimal shape this check needs from a running
// scheduler execution record.
type StalledExecution struct {
	ScheduleID string
	StartedAt  time.Time
}

// StalledExecutionCheck flags executions that have been "running" for
// longer than a configured ceiling — almost always a process that died
// without closing its execution record (treated elsewhere as orphaned).
type StalledExecutionCheck struct {
	maxAge time.Duration
	resp   *monitoringplugin.Response
	failed bool
}

func NewStalledExecutionCheck(resp *monitoringplugin.Response) *StalledExecutionCheck {
	return &StalledExecutionCheck{resp: resp, maxAge: 6 * time.Hour}
}

func (c *StalledExecutionCheck) WithMaxAge(d time.Duration) *StalledExecutionCheck {
	c.maxAge = d
	return c
}

// Run evaluates running executions against now.
func (c *StalledExecutionCheck) Run(running []StalledExecution, now time.Time) {
	for _, e := range running {
		age := now.Sub(e.StartedAt)
		if age >= c.maxAge {
			c.failed = true
			c.resp.UpdateStatus(monitoringplugin.CRITICAL, fmt.Sprintf(
				"schedule %q execution running for %v, exceeds %v — likely orphaned", e.ScheduleID, age.Truncate(time.Second), c.maxAge))
		}
	}
	if !c.failed {
		c.resp.UpdateStatus(monitoringplugin.OK, fmt.Sprintf("no stalled executions (%d running)", len(running)))
	}
}
