// Package scheduler manages persistent ScheduleConfigs, registers time-based
// schedules with the OS crontab, evaluates conditional triggers, and
// supervises executions with retry/backoff and auto-suspension.
package scheduler

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/samestrin/diskbalancer/internal/cronexpr"
	"github.com/samestrin/diskbalancer/internal/hostprobe"
)

// ScheduleKind names how a schedule is meant to fire.
type ScheduleKind string

const (
	KindOneShot     ScheduleKind = "one-shot"
	KindRecurring   ScheduleKind = "recurring"
	KindConditional ScheduleKind = "conditional"
)

// TriggerType names a conditional-trigger kind.
type TriggerType string

const (
	TriggerTime      TriggerType = "time"
	TriggerResource  TriggerType = "resource"
	TriggerIdle      TriggerType = "idle"
	TriggerDiskUsage TriggerType = "disk_usage"
)

// RetryStrategy names a delay-computation strategy.
type RetryStrategy string

const (
	RetryNone        RetryStrategy = "none"
	RetryFixed       RetryStrategy = "fixed"
	RetryLinear      RetryStrategy = "linear"
	RetryExponential RetryStrategy = "exponential"
)

// RetryPolicy configures retry delay computation for failed executions.
type RetryPolicy struct {
	Strategy    RetryStrategy `yaml:"strategy" validate:"required,oneof=none fixed linear exponential" default:"fixed"`
	BaseDelay   time.Duration `yaml:"base_delay" validate:"required" default:"30s"`
	Multiplier  float64       `yaml:"multiplier" default:"2.0"`
	MaxDelay    time.Duration `yaml:"max_delay" default:"30m"`
	MaxAttempts int           `yaml:"max_attempts" validate:"min=0" default:"3"`
	Jitter      bool          `yaml:"jitter" default:"true"`
}

// Delay computes the un-jittered delay for the given 1-indexed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	switch p.Strategy {
	case RetryNone:
		return 0
	case RetryFixed:
		return p.BaseDelay
	case RetryLinear:
		return p.BaseDelay * time.Duration(attempt)
	case RetryExponential:
		mult := p.Multiplier
		if mult <= 0 {
			mult = 2.0
		}
		d := float64(p.BaseDelay)
		for i := 1; i < attempt; i++ {
			d *= mult
		}
		delay := time.Duration(d)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		return delay
	default:
		return p.BaseDelay
	}
}

// ConditionalTrigger gates when a schedule is permitted to run, beyond the
// cron-form's own time gating.
type ConditionalTrigger struct {
	Type             TriggerType `yaml:"type" validate:"required,oneof=time resource idle disk_usage" default:"time"`
	CPUPercentMax    float64     `yaml:"cpu_percent_max,omitempty"`
	MemPercentMax    float64     `yaml:"mem_percent_max,omitempty"`
	DiskIOBpsMax     float64     `yaml:"disk_io_bps_max,omitempty"`
	MinIdleMinutes   int         `yaml:"min_idle_minutes,omitempty"`
	DiskUsagePercent float64     `yaml:"disk_usage_percent,omitempty"`
}

// RebalanceParams are the explicit, tagged rebalance-run parameters a
// schedule carries through to the launched operation, mirroring
// config.ScanConfig/PlanConfig/TransferConfig's field set.
type RebalanceParams struct {
	TargetPercent   float64  `yaml:"target_percent,omitempty"`
	HeadroomPercent float64  `yaml:"headroom_percent,omitempty"`
	MinUnitBytes    int64    `yaml:"min_unit_bytes,omitempty" validate:"min=0"`
	Mode            string   `yaml:"mode,omitempty" validate:"omitempty,oneof=fast balanced integrity"`
	IncludeDisks    []string `yaml:"include_disks,omitempty"`
	ExcludeDisks    []string `yaml:"exclude_disks,omitempty"`
	IncludeShares   []string `yaml:"include_shares,omitempty"`
	ExcludeShares   []string `yaml:"exclude_shares,omitempty"`
	ExcludeGlobs    []string `yaml:"exclude_globs,omitempty"`
}

// Args renders r as the `--flag=value` rebalance command-line arguments an
// entrypoint invocation or launched child process passes through to the
// `rebalance` subcommand.
func (r RebalanceParams) Args() []string {
	var args []string
	if r.TargetPercent != 0 {
		args = append(args, fmt.Sprintf("--target-percent=%g", r.TargetPercent))
	}
	if r.HeadroomPercent != 0 {
		args = append(args, fmt.Sprintf("--headroom-percent=%g", r.HeadroomPercent))
	}
	if r.MinUnitBytes != 0 {
		args = append(args, fmt.Sprintf("--min-unit-bytes=%d", r.MinUnitBytes))
	}
	if r.Mode != "" {
		args = append(args, fmt.Sprintf("--mode=%s", r.Mode))
	}
	for _, d := range r.IncludeDisks {
		args = append(args, fmt.Sprintf("--include-disk=%s", d))
	}
	for _, d := range r.ExcludeDisks {
		args = append(args, fmt.Sprintf("--exclude-disk=%s", d))
	}
	for _, sh := range r.IncludeShares {
		args = append(args, fmt.Sprintf("--include-share=%s", sh))
	}
	for _, sh := range r.ExcludeShares {
		args = append(args, fmt.Sprintf("--exclude-share=%s", sh))
	}
	for _, g := range r.ExcludeGlobs {
		args = append(args, fmt.Sprintf("--exclude-glob=%s", g))
	}
	return args
}

// NotificationPrefs controls which outcomes a schedule reports through
// hostprobe.Probe.Notify and at what minimum severity.
type NotificationPrefs struct {
	OnSuccess bool            `yaml:"on_success" default:"false"`
	OnFailure bool            `yaml:"on_failure" default:"true"`
	OnSuspend bool            `yaml:"on_suspend" default:"true"`
	MinLevel  hostprobe.Level `yaml:"min_level" validate:"omitempty,oneof=normal warning alert critical" default:"warning"`
}

// ScheduleConfig is one persisted, user-defined rebalance schedule.
type ScheduleConfig struct {
	ID                  string             `yaml:"id" validate:"required"`
	Name                string             `yaml:"name" validate:"required"`
	Kind                ScheduleKind       `yaml:"kind" validate:"required,oneof=one-shot recurring conditional" default:"recurring"`
	CronExpr            string             `yaml:"cron_expr"`
	Enabled             bool               `yaml:"enabled"`
	Rebalance           RebalanceParams    `yaml:"rebalance,omitempty"`
	Trigger             ConditionalTrigger `yaml:"trigger,omitempty"`
	RuntimeCapHours     float64            `yaml:"runtime_cap_hours,omitempty" validate:"min=0"`
	Retry               RetryPolicy        `yaml:"retry,omitempty"`
	Notify              NotificationPrefs  `yaml:"notify,omitempty"`
	FailureThreshold    int                `yaml:"failure_threshold" validate:"min=0" default:"5"`
	ConsecutiveFailures int                `yaml:"consecutive_failures"`
	Suspended           bool               `yaml:"suspended"`
	SuspendedReason     string             `yaml:"suspended_reason,omitempty"`
	CreatedAt           time.Time          `yaml:"created_at"`
	UpdatedAt           time.Time          `yaml:"updated_at"`
}

var validate = validator.New()

// Validate applies struct tag validation plus the cron-form grammar check
// and the kind-specific invariants: a recurring schedule must carry a
// valid cron-form expression, a conditional schedule must carry a
// resource, idle or disk_usage trigger (its threshold values are not
// checked).
func (c *ScheduleConfig) Validate() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("scheduler: applying defaults: %w", err)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("scheduler: invalid schedule config: %w", err)
	}
	if c.CronExpr != "" {
		if _, err := cronexpr.Parse(c.CronExpr); err != nil {
			return fmt.Errorf("scheduler: invalid cron expression: %w", err)
		}
	}
	switch c.Kind {
	case KindRecurring:
		if c.CronExpr == "" {
			return fmt.Errorf("scheduler: recurring schedule %q requires a cron expression", c.ID)
		}
	case KindConditional:
		if c.Trigger.Type == "" || c.Trigger.Type == TriggerTime {
			return fmt.Errorf("scheduler: conditional schedule %q requires a resource/idle/disk_usage trigger", c.ID)
		}
	}
	return nil
}

// NextFireAfter returns the next time the schedule's cron-form expression
// fires strictly after t.
func (c *ScheduleConfig) NextFireAfter(t time.Time) (time.Time, bool) {
	expr, err := cronexpr.Parse(c.CronExpr)
	if err != nil {
		return time.Time{}, false
	}
	return expr.Next(t)
}
