package scheduler

import "github.com/samestrin/diskbalancer/internal/cronexpr"

// cronparseFor parses cfg's cron-form expression.
func cronparseFor(cfg ScheduleConfig) (*cronexpr.Expression, error) {
	return cronexpr.Parse(cfg.CronExpr)
}

// evaluateTrigger applies the conditional-trigger rules of §4.12: a
// time-based trigger is always permitted (cron already gated it); resource,
// idle and disk-usage triggers consult the Probe.
func (s *Scheduler) evaluateTrigger(t ConditionalTrigger) bool {
	switch t.Type {
	case "", TriggerTime:
		return true
	case TriggerResource:
		return s.resourceOK(t)
	case TriggerIdle:
		return s.idleOK(t)
	case TriggerDiskUsage:
		return s.diskUsageOK(t)
	default:
		return true
	}
}

func (s *Scheduler) resourceOK(t ConditionalTrigger) bool {
	if s.probe == nil {
		return true
	}
	if t.CPUPercentMax > 0 && s.probe.CPUPercent() > t.CPUPercentMax {
		return false
	}
	if t.MemPercentMax > 0 && s.probe.MemPercent() > t.MemPercentMax {
		return false
	}
	if t.DiskIOBpsMax > 0 && s.probe.DiskIOBps() > t.DiskIOBpsMax {
		return false
	}
	return true
}

func (s *Scheduler) idleOK(t ConditionalTrigger) bool {
	if s.probe == nil {
		return true
	}
	if t.MinIdleMinutes > 0 && s.probe.IdleMinutes() < t.MinIdleMinutes {
		return false
	}
	return s.resourceOK(t)
}

func (s *Scheduler) diskUsageOK(t ConditionalTrigger) bool {
	if s.probe == nil {
		return true
	}
	if t.DiskUsagePercent <= 0 {
		return true
	}
	// permitted when any tracked disk exceeds the threshold; each disk the
	// probe lists is checked here via DiskUsagePercent.
	disks := probedDisks(s.probe)
	if disks == nil {
		// no diskLister: degrade to always-permitted rather than blocking the
		// schedule on a signal it has no way to obtain.
		return true
	}
	for _, disk := range disks {
		if usage, ok := s.probe.DiskUsagePercent(disk); ok && usage > t.DiskUsagePercent {
			return true
		}
	}
	return false
}

// diskLister is an optional Probe extension exposing which disks it can
// report on; without it, disk-usage triggers degrade to always-permitted.
type diskLister interface {
	Disks() []string
}

func probedDisks(p Probe) []string {
	if dl, ok := p.(diskLister); ok {
		return dl.Disks()
	}
	return nil
}
