package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/samestrin/diskbalancer/internal/classify"
	"github.com/samestrin/diskbalancer/internal/hostprobe"
)

// ExecutionStatus is the final or in-flight disposition of one
// ScheduleExecution.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusSuccess   ExecutionStatus = "success"
	StatusFailed    ExecutionStatus = "failed"
	StatusTimeout   ExecutionStatus = "timeout"
	StatusCancelled ExecutionStatus = "cancelled"
	StatusSkipped   ExecutionStatus = "skipped"
	StatusRetrying  ExecutionStatus = "retrying"
)

// ScheduleExecution is one run (or retry attempt) of a ScheduleConfig.
type ScheduleExecution struct {
	ID          string
	ScheduleID  string
	PID         int
	Attempt     int
	StartedAt   time.Time
	CompletedAt *time.Time
	Status      ExecutionStatus
	ExitCode    int
	FilesMoved  int64
	BytesMoved  int64
	Error       string
}

// ExecutionStore persists ScheduleExecutions, typically backed by the
// metrics store (C7).
type ExecutionStore interface {
	StoreExecution(ctx context.Context, e ScheduleExecution) error
	UpdateExecution(ctx context.Context, e ScheduleExecution) error
	ListRunning(ctx context.Context) ([]ScheduleExecution, error)
	DeleteExecutionsOlderThan(ctx context.Context, cutoff time.Time) error
}

// Runner invokes one rebalance attempt for a schedule, returning the
// launched process's PID.
type Runner interface {
	Run(ctx context.Context, cfg ScheduleConfig, attempt int) (pid int, err error)
}

// Canceller delivers a best-effort termination signal to a running process.
type Canceller interface {
	Cancel(pid int) error
}

// StartExecution records a new running execution for scheduleID.
func (s *Scheduler) StartExecution(ctx context.Context, scheduleID string, pid int, attempt int) (ScheduleExecution, error) {
	exec := ScheduleExecution{
		ID:         fmt.Sprintf("%s-%d-%d", scheduleID, attempt, nowFunc().UnixNano()),
		ScheduleID: scheduleID,
		PID:        pid,
		Attempt:    attempt,
		StartedAt:  nowFunc(),
		Status:     StatusRunning,
	}

	s.mu.Lock()
	s.running[exec.ID] = exec
	s.mu.Unlock()

	if s.executions != nil {
		if err := s.executions.StoreExecution(ctx, exec); err != nil {
			s.logger.Warn("failed to persist execution start", "execution_id", exec.ID, "error", err)
		}
	}
	return exec, nil
}

// CompleteExecution marks execID's final status from the copy process's
// exit code, and — on failure — engages the retry/recovery path.
func (s *Scheduler) CompleteExecution(ctx context.Context, execID string, exitCode int, filesMoved, bytesMoved int64, errMsg string) error {
	s.mu.Lock()
	exec, ok := s.running[execID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: unknown execution %q", execID)
	}
	delete(s.running, execID)
	s.mu.Unlock()

	now := nowFunc()
	exec.CompletedAt = &now
	exec.ExitCode = exitCode
	exec.FilesMoved = filesMoved
	exec.BytesMoved = bytesMoved
	exec.Error = errMsg

	if exitCode == 0 && errMsg == "" {
		exec.Status = StatusSuccess
		s.resetFailureCount(ctx, exec.ScheduleID)
		if cfg, err := s.configs.Load(exec.ScheduleID); err == nil && cfg.Notify.OnSuccess && s.notifier != nil {
			s.notifier.Notify(fmt.Sprintf("rebalance schedule %q succeeded", exec.ScheduleID),
				fmt.Sprintf("%d files, %d bytes moved", filesMoved, bytesMoved), cfg.Notify.MinLevel)
		}
	} else if s.handleFailure(ctx, exec) {
		exec.Status = StatusRetrying
	} else {
		exec.Status = StatusFailed
	}

	if s.executions != nil {
		if err := s.executions.UpdateExecution(ctx, exec); err != nil {
			s.logger.Warn("failed to persist execution completion", "execution_id", execID, "error", err)
		}
	}
	return nil
}

// CancelExecution marks execID cancelled and, best effort, asks the
// canceller to terminate its process.
func (s *Scheduler) CancelExecution(ctx context.Context, execID, reason string) error {
	s.mu.Lock()
	exec, ok := s.running[execID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: unknown execution %q", execID)
	}
	delete(s.running, execID)
	s.mu.Unlock()

	if s.canceller != nil && exec.PID > 0 {
		if err := s.canceller.Cancel(exec.PID); err != nil {
			s.logger.Warn("failed to signal running execution", "execution_id", execID, "pid", exec.PID, "error", err)
		}
	}

	now := nowFunc()
	exec.CompletedAt = &now
	exec.Status = StatusCancelled
	exec.Error = reason

	if s.executions != nil {
		if err := s.executions.UpdateExecution(ctx, exec); err != nil {
			s.logger.Warn("failed to persist execution cancellation", "execution_id", execID, "error", err)
		}
	}
	return nil
}

// SuspendSchedule cancels any running execution for id, disables it, and
// unregisters it from the OS registry.
func (s *Scheduler) SuspendSchedule(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	for execID, e := range s.running {
		if e.ScheduleID == id {
			s.mu.Unlock()
			_ = s.CancelExecution(ctx, execID, "schedule suspended: "+reason)
			s.mu.Lock()
		}
	}
	s.mu.Unlock()

	cfg, err := s.configs.Load(id)
	if err != nil {
		return err
	}
	cfg.Enabled = false
	cfg.Suspended = true
	cfg.SuspendedReason = reason
	if err := s.configs.Save(cfg); err != nil {
		return err
	}
	return s.unregister(ctx, id)
}

// ResumeSchedule re-enables id and re-registers it with the OS registry.
func (s *Scheduler) ResumeSchedule(ctx context.Context, id string) error {
	cfg, err := s.configs.Load(id)
	if err != nil {
		return err
	}
	cfg.Enabled = true
	cfg.Suspended = false
	cfg.SuspendedReason = ""
	cfg.ConsecutiveFailures = 0
	if err := s.configs.Save(cfg); err != nil {
		return err
	}
	return s.register(ctx, cfg)
}

// CleanupOldExecutions deletes persisted executions older than days.
func (s *Scheduler) CleanupOldExecutions(ctx context.Context, days int) error {
	if s.executions == nil {
		return nil
	}
	cutoff := nowFunc().AddDate(0, 0, -days)
	return s.executions.DeleteExecutionsOlderThan(ctx, cutoff)
}

// resetFailureCount zeroes a schedule's consecutive-failure counter after a
// successful execution.
func (s *Scheduler) resetFailureCount(ctx context.Context, scheduleID string) {
	cfg, err := s.configs.Load(scheduleID)
	if err != nil || cfg.ConsecutiveFailures == 0 {
		return
	}
	cfg.ConsecutiveFailures = 0
	if err := s.configs.Save(cfg); err != nil {
		s.logger.Warn("failed to reset failure count", "schedule_id", scheduleID, "error", err)
	}
}

// handleFailure classifies the failure and decides whether to retry. It
// returns whether a retry worker was spawned; the caller persists the
// resulting status (retrying vs. failed) itself, since this runs before
// that row is written. On a final failure it also checks the
// auto-suspension threshold and notifies per cfg.Notify.
func (s *Scheduler) handleFailure(ctx context.Context, exec ScheduleExecution) bool {
	cfg, err := s.configs.Load(exec.ScheduleID)
	if err != nil {
		s.logger.Warn("failed to load schedule for failure handling", "schedule_id", exec.ScheduleID, "error", err)
		return false
	}

	ft := classify.ClassifyFailureText(exec.Error)
	retryable := classify.Retryable(ft) && exec.Attempt < cfg.Retry.MaxAttempts

	if retryable {
		delay := jitteredDelay(cfg.Retry, exec.Attempt+1)
		s.logger.Info("scheduling retry", "schedule_id", cfg.ID, "attempt", exec.Attempt+1, "delay", delay, "failure_type", ft)
		s.spawnRetryWorker(cfg, exec.Attempt+1, delay)
		return true
	}

	cfg.ConsecutiveFailures++
	s.logger.Warn("execution failed, not retrying", "schedule_id", cfg.ID, "failure_type", ft, "consecutive_failures", cfg.ConsecutiveFailures)
	if err := s.configs.Save(cfg); err != nil {
		s.logger.Warn("failed to persist failure count", "schedule_id", cfg.ID, "error", err)
	}
	if cfg.Notify.OnFailure && s.notifier != nil {
		s.notifier.Notify(fmt.Sprintf("rebalance schedule %q failed", cfg.ID), exec.Error, cfg.Notify.MinLevel)
	}

	if cfg.FailureThreshold > 0 && cfg.ConsecutiveFailures >= cfg.FailureThreshold {
		reason := fmt.Sprintf("exceeded failure threshold (%d consecutive failures)", cfg.ConsecutiveFailures)
		if err := s.SuspendSchedule(ctx, cfg.ID, reason); err != nil {
			s.logger.Warn("failed to auto-suspend schedule", "schedule_id", cfg.ID, "error", err)
		}
		if cfg.Notify.OnSuspend && s.notifier != nil {
			s.notifier.Notify(fmt.Sprintf("rebalance schedule %q suspended", cfg.ID), reason, hostprobe.LevelAlert)
		}
	}
	return false
}

// jitteredDelay applies RetryPolicy.Delay and, when Jitter is set, a 50%
// uniform downward jitter so the final delay lies in [delay/2, delay].
func jitteredDelay(p RetryPolicy, attempt int) time.Duration {
	delay := p.Delay(attempt)
	if !p.Jitter || delay <= 0 {
		return delay
	}
	half := float64(delay) / 2
	return time.Duration(half + rand.Float64()*half)
}

// spawnRetryWorker sleeps delay in a cooperatively-cancellable goroutine,
// then re-invokes the schedule's Runner for the next attempt. It never
// blocks the scheduler's own evaluation loop.
func (s *Scheduler) spawnRetryWorker(cfg ScheduleConfig, attempt int, delay time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}

		if s.runner == nil {
			return
		}
		pid, err := s.runner.Run(s.ctx, cfg, attempt)
		if err != nil {
			s.logger.Warn("retry attempt failed to launch", "schedule_id", cfg.ID, "attempt", attempt, "error", err)
			return
		}
		if _, err := s.StartExecution(s.ctx, cfg.ID, pid, attempt); err != nil {
			s.logger.Warn("failed to record retry execution start", "schedule_id", cfg.ID, "error", err)
		}
	}()
}
