package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronv3 "github.com/dsh2dsh/cron/v3"

	"github.com/samestrin/diskbalancer/internal/chainlock"
	"github.com/samestrin/diskbalancer/internal/hostprobe"
	"github.com/samestrin/diskbalancer/internal/logging"
)

// nowFunc is indirected so tests can stub time.
var nowFunc = time.Now

// Probe supplies the external signals conditional triggers evaluate
// against.
type Probe interface {
	CPUPercent() float64
	MemPercent() float64
	DiskIOBps() float64
	IdleMinutes() int
	DiskUsagePercent(disk string) (float64, bool)
}

// EntrypointCommand renders the OS-registry command line for cfg: the
// system's entrypoint invoked with the rebalance parameters derived from
// the schedule's Params.
type EntrypointCommand func(cfg ScheduleConfig) string

// Notifier delivers operator-facing notifications for schedule outcomes,
// the subset of hostprobe.Probe the scheduler needs for §4.13 Notify.
type Notifier interface {
	Notify(subject, message string, level hostprobe.Level) bool
}

// Scheduler owns the ScheduleConfig store, the OS registry, execution
// supervision and the internal evaluation tick loop.
type Scheduler struct {
	configs    *ConfigStore
	registry   Registry
	executions ExecutionStore
	runner     Runner
	canceller  Canceller
	probe      Probe
	notifier   Notifier
	command    EntrypointCommand
	logger     *slog.Logger

	mu      *chainlock.L
	running map[string]ScheduleExecution

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	cron   *cronv3.Cron
}

// Option configures optional Scheduler collaborators.
type Option func(*Scheduler)

func WithExecutionStore(s ExecutionStore) Option { return func(sc *Scheduler) { sc.executions = s } }
func WithRunner(r Runner) Option                 { return func(sc *Scheduler) { sc.runner = r } }
func WithCanceller(c Canceller) Option           { return func(sc *Scheduler) { sc.canceller = c } }
func WithProbe(p Probe) Option                   { return func(sc *Scheduler) { sc.probe = p } }
func WithNotifier(n Notifier) Option             { return func(sc *Scheduler) { sc.notifier = n } }
func WithEntrypointCommand(f EntrypointCommand) Option {
	return func(sc *Scheduler) { sc.command = f }
}

// New constructs a Scheduler backed by configs and registry.
func New(configs *ConfigStore, registry Registry, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		configs:  configs,
		registry: registry,
		command:  defaultEntrypointCommand,
		logger:   logging.Subsys(logger, logging.SubsysScheduler),
		mu:       chainlock.NewL(),
		running:  make(map[string]ScheduleExecution),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultEntrypointCommand(cfg ScheduleConfig) string {
	cmd := "rebalancer rebalance --execute"
	for _, a := range cfg.Rebalance.Args() {
		cmd += " " + a
	}
	return cmd
}

// CreateSchedule validates, rejects duplicate ids, persists, and — if
// enabled — registers cfg with the OS scheduling facility.
func (s *Scheduler) CreateSchedule(ctx context.Context, cfg ScheduleConfig) error {
	if s.configs.Exists(cfg.ID) {
		return fmt.Errorf("scheduler: schedule %q already exists", cfg.ID)
	}
	now := nowFunc()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.configs.Save(cfg); err != nil {
		return err
	}
	if cfg.Enabled {
		return s.register(ctx, cfg)
	}
	return nil
}

// UpdateSchedule unregisters the prior entry, persists cfg, and
// re-registers if enabled.
func (s *Scheduler) UpdateSchedule(ctx context.Context, id string, cfg ScheduleConfig) error {
	cfg.UpdatedAt = nowFunc()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.unregister(ctx, id); err != nil {
		return err
	}
	cfg.ID = id
	if err := s.configs.Save(cfg); err != nil {
		return err
	}
	if cfg.Enabled {
		return s.register(ctx, cfg)
	}
	return nil
}

// DeleteSchedule unregisters and erases id.
func (s *Scheduler) DeleteSchedule(ctx context.Context, id string) error {
	if err := s.unregister(ctx, id); err != nil {
		return err
	}
	return s.configs.Delete(id)
}

// EnableSchedule toggles a schedule on and registers it.
func (s *Scheduler) EnableSchedule(ctx context.Context, id string) error {
	cfg, err := s.configs.Load(id)
	if err != nil {
		return err
	}
	cfg.Enabled = true
	if err := s.configs.Save(cfg); err != nil {
		return err
	}
	return s.register(ctx, cfg)
}

// DisableSchedule toggles a schedule off and unregisters it.
func (s *Scheduler) DisableSchedule(ctx context.Context, id string) error {
	cfg, err := s.configs.Load(id)
	if err != nil {
		return err
	}
	cfg.Enabled = false
	if err := s.configs.Save(cfg); err != nil {
		return err
	}
	return s.unregister(ctx, id)
}

// SyncSchedules reconciles persisted configs with OS-registered entries:
// installs missing registrations for enabled schedules, removes orphaned
// registrations with no matching config.
func (s *Scheduler) SyncSchedules(ctx context.Context) error {
	cfgs, err := s.configs.List()
	if err != nil {
		return err
	}
	byID := make(map[string]ScheduleConfig, len(cfgs))
	for _, c := range cfgs {
		byID[c.ID] = c
	}

	contents, err := s.registry.Read(ctx)
	if err != nil {
		return err
	}
	for _, id := range entryIDs(contents) {
		if _, ok := byID[id]; !ok {
			if err := s.unregister(ctx, id); err != nil {
				return err
			}
		}
	}

	for _, c := range cfgs {
		if c.Enabled {
			if err := s.register(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// register installs cfg's entry into the OS registry.
func (s *Scheduler) register(ctx context.Context, cfg ScheduleConfig) error {
	contents, err := s.registry.Read(ctx)
	if err != nil {
		return err
	}
	command := fmt.Sprintf("%s %s", cfg.CronExpr, s.command(cfg))
	return s.registry.Write(ctx, upsertEntry(contents, cfg.ID, command))
}

// unregister removes id's entry from the OS registry, if present.
func (s *Scheduler) unregister(ctx context.Context, id string) error {
	contents, err := s.registry.Read(ctx)
	if err != nil {
		return err
	}
	return s.registry.Write(ctx, upsertEntry(contents, id, ""))
}

// Start launches the scheduler's internal per-minute evaluation tick.
// The cron/v3 entry is a fixed every-minute spec; on each tick every
// schedule's cron-form string is parsed with cronexpr, schedules that
// fired within the last minute and whose conditional trigger passes are
// handed to the Runner, and runtime caps are enforced.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cronv3.New()
	_, _ = s.cron.AddFunc("* * * * *", func() {
		s.evaluateDue()
		s.enforceRuntimeCaps()
	})
	s.cron.Start()
}

// Stop halts the internal tick loop and joins any in-flight retry workers.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// evaluateDue checks every enabled schedule whose cron-form fired in the
// last minute and, if its conditional trigger passes, launches it via the
// Runner.
func (s *Scheduler) evaluateDue() {
	cfgs, err := s.configs.List()
	if err != nil {
		s.logger.Warn("failed to list schedules during evaluation", "error", err)
		return
	}

	now := nowFunc()
	for _, cfg := range cfgs {
		if !cfg.Enabled || cfg.Suspended {
			continue
		}
		expr, err := cronparseFor(cfg)
		if err != nil {
			continue
		}
		last := now.Add(-time.Minute)
		fire, ok := expr.Next(last)
		if !ok || fire.After(now) {
			continue
		}

		if !s.evaluateTrigger(cfg.Trigger) {
			s.logger.Info("conditional trigger not satisfied, skipping run", "schedule_id", cfg.ID)
			s.recordSkippedExecution(s.ctx, cfg.ID, "conditional trigger not satisfied")
			continue
		}

		if s.runner == nil {
			continue
		}
		pid, err := s.runner.Run(s.ctx, cfg, 1)
		if err != nil {
			s.logger.Warn("failed to launch scheduled run", "schedule_id", cfg.ID, "error", err)
			continue
		}
		if _, err := s.StartExecution(s.ctx, cfg.ID, pid, 1); err != nil {
			s.logger.Warn("failed to record scheduled execution start", "schedule_id", cfg.ID, "error", err)
		}
	}
}

// recordSkippedExecution persists a zero-duration StatusSkipped execution so
// a schedule's history reflects ticks that fired but were blocked by a
// conditional trigger, rather than leaving no trace at all.
func (s *Scheduler) recordSkippedExecution(ctx context.Context, scheduleID, reason string) {
	if s.executions == nil {
		return
	}
	now := nowFunc()
	exec := ScheduleExecution{
		ID:          fmt.Sprintf("%s-skip-%d", scheduleID, now.UnixNano()),
		ScheduleID:  scheduleID,
		StartedAt:   now,
		CompletedAt: &now,
		Status:      StatusSkipped,
		Error:       reason,
	}
	if err := s.executions.StoreExecution(ctx, exec); err != nil {
		s.logger.Warn("failed to persist skipped execution", "schedule_id", scheduleID, "error", err)
	}
}

// enforceRuntimeCaps cancels any running execution whose schedule sets a
// RuntimeCapHours and whose elapsed runtime exceeds it, recording the
// outcome as StatusTimeout rather than StatusCancelled.
func (s *Scheduler) enforceRuntimeCaps() {
	now := nowFunc()

	s.mu.Lock()
	var overdue []ScheduleExecution
	for _, exec := range s.running {
		cfg, err := s.configs.Load(exec.ScheduleID)
		if err != nil || cfg.RuntimeCapHours <= 0 {
			continue
		}
		limit := time.Duration(cfg.RuntimeCapHours * float64(time.Hour))
		if now.Sub(exec.StartedAt) >= limit {
			overdue = append(overdue, exec)
		}
	}
	s.mu.Unlock()

	for _, exec := range overdue {
		s.logger.Warn("execution exceeded runtime cap, cancelling", "schedule_id", exec.ScheduleID, "execution_id", exec.ID)
		s.timeoutExecution(exec.ID)
	}
}

// timeoutExecution cancels execID's process, if any, and records it as
// StatusTimeout.
func (s *Scheduler) timeoutExecution(execID string) {
	s.mu.Lock()
	exec, ok := s.running[execID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.running, execID)
	s.mu.Unlock()

	if s.canceller != nil && exec.PID > 0 {
		if err := s.canceller.Cancel(exec.PID); err != nil {
			s.logger.Warn("failed to signal timed-out execution", "execution_id", execID, "pid", exec.PID, "error", err)
		}
	}

	now := nowFunc()
	exec.CompletedAt = &now
	exec.Status = StatusTimeout
	exec.Error = "exceeded schedule runtime cap"

	if s.executions != nil {
		if err := s.executions.UpdateExecution(s.ctx, exec); err != nil {
			s.logger.Warn("failed to persist execution timeout", "execution_id", execID, "error", err)
		}
	}
}
