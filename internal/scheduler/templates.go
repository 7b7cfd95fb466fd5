package scheduler

import (
	"fmt"
	"time"

	"github.com/sahilm/fuzzy"
)

// Template is a named, pure ScheduleConfig constructor. Instantiating a
// template with rebalance-param overrides always revalidates the result.
type Template struct {
	Name        string
	Description string
	build       func(id string, overrides RebalanceParams) ScheduleConfig
}

// Instantiate builds and validates a ScheduleConfig for id from the
// template, applying overrides on top of the template's own rebalance
// defaults.
func (t Template) Instantiate(id string, overrides RebalanceParams) (ScheduleConfig, error) {
	cfg := t.build(id, overrides)
	now := nowFunc()
	cfg.CreatedAt, cfg.UpdatedAt = now, now
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("scheduler: template %q produced invalid config: %w", t.Name, err)
	}
	return cfg, nil
}

// Templates is the fixed catalog of named ScheduleConfig templates.
var Templates = []Template{
	{
		Name:        "nightly-light",
		Description: "Low-impact balanced-mode rebalance every night at 02:30",
		build: func(id string, overrides RebalanceParams) ScheduleConfig {
			return ScheduleConfig{
				ID: id, Name: "Nightly light rebalance", Kind: KindRecurring, CronExpr: "30 2 * * *", Enabled: true,
				Rebalance: mergeRebalanceParams(RebalanceParams{Mode: "balanced"}, overrides),
				Retry:     RetryPolicy{Strategy: RetryFixed, BaseDelay: 30 * time.Second, MaxAttempts: 2, Jitter: true},
			}
		},
	},
	{
		Name:        "weekly-full",
		Description: "Full-depth integrity-mode rebalance every Sunday at 03:00",
		build: func(id string, overrides RebalanceParams) ScheduleConfig {
			return ScheduleConfig{
				ID: id, Name: "Weekly full rebalance", Kind: KindRecurring, CronExpr: "0 3 * * 0", Enabled: true,
				Rebalance: mergeRebalanceParams(RebalanceParams{Mode: "integrity"}, overrides),
				Retry:     RetryPolicy{Strategy: RetryLinear, BaseDelay: 60 * time.Second, MaxAttempts: 3, Jitter: true},
			}
		},
	},
	{
		Name:        "maintenance-window",
		Description: "Rebalance during a fixed weekday maintenance window",
		build: func(id string, overrides RebalanceParams) ScheduleConfig {
			return ScheduleConfig{
				ID: id, Name: "Maintenance window rebalance", Kind: KindRecurring, CronExpr: "0 4 * * 1-5", Enabled: true,
				Rebalance: mergeRebalanceParams(RebalanceParams{}, overrides),
			}
		},
	},
	{
		Name:        "parity-safe",
		Description: "Resource-gated rebalance that defers while the array is busy",
		build: func(id string, overrides RebalanceParams) ScheduleConfig {
			return ScheduleConfig{
				ID: id, Name: "Parity-safe rebalance", Kind: KindConditional, CronExpr: "0 1 * * *", Enabled: true,
				Trigger:   ConditionalTrigger{Type: TriggerResource, CPUPercentMax: 40, MemPercentMax: 70, DiskIOBpsMax: 20 * 1024 * 1024},
				Rebalance: mergeRebalanceParams(RebalanceParams{}, overrides),
			}
		},
	},
	{
		Name:        "idle-based",
		Description: "Rebalance only after the system has been idle for 30 minutes",
		build: func(id string, overrides RebalanceParams) ScheduleConfig {
			return ScheduleConfig{
				ID: id, Name: "Idle-triggered rebalance", Kind: KindConditional, CronExpr: "*/15 * * * *", Enabled: true,
				Trigger:   ConditionalTrigger{Type: TriggerIdle, MinIdleMinutes: 30, CPUPercentMax: 20},
				Rebalance: mergeRebalanceParams(RebalanceParams{}, overrides),
			}
		},
	},
	{
		Name:        "disk-usage-threshold",
		Description: "Rebalance once any disk crosses a fill-percentage threshold",
		build: func(id string, overrides RebalanceParams) ScheduleConfig {
			return ScheduleConfig{
				ID: id, Name: "Disk-usage threshold rebalance", Kind: KindConditional, CronExpr: "0 * * * *", Enabled: true,
				Trigger:   ConditionalTrigger{Type: TriggerDiskUsage, DiskUsagePercent: 90},
				Rebalance: mergeRebalanceParams(RebalanceParams{}, overrides),
			}
		},
	},
}

// mergeRebalanceParams overlays any non-zero field of overrides onto base.
func mergeRebalanceParams(base, overrides RebalanceParams) RebalanceParams {
	if overrides.TargetPercent != 0 {
		base.TargetPercent = overrides.TargetPercent
	}
	if overrides.HeadroomPercent != 0 {
		base.HeadroomPercent = overrides.HeadroomPercent
	}
	if overrides.MinUnitBytes != 0 {
		base.MinUnitBytes = overrides.MinUnitBytes
	}
	if overrides.Mode != "" {
		base.Mode = overrides.Mode
	}
	if len(overrides.IncludeDisks) > 0 {
		base.IncludeDisks = overrides.IncludeDisks
	}
	if len(overrides.ExcludeDisks) > 0 {
		base.ExcludeDisks = overrides.ExcludeDisks
	}
	if len(overrides.IncludeShares) > 0 {
		base.IncludeShares = overrides.IncludeShares
	}
	if len(overrides.ExcludeShares) > 0 {
		base.ExcludeShares = overrides.ExcludeShares
	}
	if len(overrides.ExcludeGlobs) > 0 {
		base.ExcludeGlobs = overrides.ExcludeGlobs
	}
	return base
}

// FindTemplate fuzzy-matches query against the catalog's template names
// (descriptions are not searched) and returns the best-ranked match.
func FindTemplate(query string) (Template, bool) {
	names := make([]string, len(Templates))
	for i, t := range Templates {
		names[i] = t.Name
	}
	matches := fuzzy.Find(query, names)
	if len(matches) == 0 {
		return Template{}, false
	}
	return Templates[matches[0].Index], true
}
