// Package executor orchestrates running a Plan: per-unit copy, source
// removal, merge policy, and rollback of partial destinations on
// unrecoverable failure.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"github.com/samestrin/diskbalancer/internal/classify"
	"github.com/samestrin/diskbalancer/internal/logging"
	"github.com/samestrin/diskbalancer/internal/planner"
	"github.com/samestrin/diskbalancer/internal/pathutil"
	"github.com/samestrin/diskbalancer/internal/rsyncexec"
	"github.com/samestrin/diskbalancer/internal/rsyncprogress"
	"github.com/samestrin/diskbalancer/internal/transferstate"
	"github.com/samestrin/diskbalancer/internal/validate"
)

// Monitor is the subset of sysmonitor.Monitor the executor drives for
// per-transfer accounting.
type Monitor interface {
	RecordTransferCompletion(rateBps float64, transferredBytes int64, finished time.Time)
}

// ErrorSink persists operation-level errors, typically backed by the
// metrics store.
type ErrorSink interface {
	StoreError(ctx context.Context, operationID, message, errType string, at time.Time)
}

// Config configures one Executor.
type Config struct {
	DisksRoot         string
	ExtraFlags        []string
	AllowMerge        bool
	Mode              rsyncexec.Mode
	DryRun            bool
	AtomicMove        bool
	BufferPercent     float64
	CheckSizeOnVerify bool
}

// Executor runs the moves in a Plan sequentially.
type Executor struct {
	cfg     Config
	tracker *transferstate.Tracker
	monitor Monitor
	errors  ErrorSink
	logger  *slog.Logger
}

// New constructs an Executor. tracker, monitor and errors may be nil.
func New(cfg Config, tracker *transferstate.Tracker, monitor Monitor, errors ErrorSink, logger *slog.Logger) *Executor {
	return &Executor{
		cfg:     cfg,
		tracker: tracker,
		monitor: monitor,
		errors:  errors,
		logger:  logging.Subsys(logger, logging.SubsysExecutor),
	}
}

// MoveOutcome records what happened to one move.
type MoveOutcome string

const (
	OutcomeSucceeded MoveOutcome = "succeeded"
	OutcomeSkipped   MoveOutcome = "skipped"
	OutcomeFailed    MoveOutcome = "failed"
)

// MoveResult is one move's final disposition.
type MoveResult struct {
	Move    planner.Move
	Outcome MoveOutcome
	Detail  string
}

// Summary aggregates every move's outcome for one operation.
type Summary struct {
	Attempted int
	Succeeded int
	Skipped   int
	Failed    int
	Results   []MoveResult
}

func destAbsPath(disksRoot string, m planner.Move) string {
	parts := []string{disksRoot, m.DestinationDisk, m.Unit.Share}
	if m.Unit.RelPath != "" {
		parts = append(parts, m.Unit.RelPath)
	}
	return filepath.Join(parts...)
}

// Perform runs every move in plan in order, honoring the merge policy,
// pre/post validation, error classification and transfer-state tracking.
// It returns an aggregate Summary; the count of failed moves is
// Summary.Failed.
func (e *Executor) Perform(ctx context.Context, operationID string, plan planner.Plan) Summary {
	var summary Summary

	if e.tracker != nil && len(plan.OrphanedKeys) > 0 {
		orphaned := e.tracker.ResolveOrphans(plan.OrphanedKeys)
		if len(orphaned) > 0 {
			e.logger.Info("cleaning up orphaned transfers", "count", len(orphaned))
			e.tracker.CleanupOrphans(ctx, orphaned)
		}
	}

	for idx, move := range plan.Moves {
		summary.Attempted++
		src := move.Unit.AbsPath(e.cfg.DisksRoot)
		dst := destAbsPath(e.cfg.DisksRoot, move)
		dstParent := filepath.Dir(dst)

		e.logger.Info("performing move", "index", idx+1, "total", len(plan.Moves),
			"share", move.Unit.Share, "rel_path", move.Unit.RelPath,
			"src_disk", move.Unit.SourceDisk, "dst_disk", move.DestinationDisk,
			"size_bytes", move.Unit.SizeBytes)

		if err := os.MkdirAll(dstParent, 0o755); err != nil {
			summary.Failed++
			summary.Results = append(summary.Results, MoveResult{move, OutcomeFailed, err.Error()})
			continue
		}

		if pathutil.Exists(dst) && !e.cfg.AllowMerge {
			e.logger.Info("destination exists and merge disallowed, skipping", "dst", dst)
			summary.Skipped++
			summary.Results = append(summary.Results, MoveResult{move, OutcomeSkipped, "destination exists, merge disallowed"})
			continue
		}

		sourceIsDir := pathutil.IsDir(src)
		preReport := validate.PreTransfer(validate.PreTransferInput{
			SourcePath:                 src,
			DestParentPath:             dstParent,
			DisksRoot:                  e.cfg.DisksRoot,
			SourceDisk:                 move.Unit.SourceDisk,
			DestDisk:                   move.DestinationDisk,
			SourceSizeBytes:            move.Unit.SizeBytes,
			BufferPercent:              e.cfg.BufferPercent,
			ModePreservesHardLinksACLs: rsyncexec.Profile(e.cfg.Mode).PreservesHardLinksACLs,
		})
		if preReport.Overall == validate.ResultFailed {
			summary.Failed++
			summary.Results = append(summary.Results, MoveResult{move, OutcomeFailed, "pre-transfer validation failed"})
			continue
		}

		var rec transferstate.Record
		if e.tracker != nil {
			_, unitPath := move.Unit.Key()
			rec = e.tracker.Start(ctx, unitPath, move.Unit.SourceDisk, move.DestinationDisk, move.Unit.SizeBytes, time.Now().Unix())
		}

		var lastRate float64
		result, err := rsyncexec.Run(ctx, rsyncexec.Request{
			Mode:        e.cfg.Mode,
			ExtraFlags:  e.cfg.ExtraFlags,
			AtomicMove:  e.cfg.AtomicMove,
			SourcePath:  src,
			SourceIsDir: sourceIsDir,
			DestPath:    dst,
			DryRun:      e.cfg.DryRun,
		}, func(rec rsyncprogress.Record) {
			if rec.Type == rsyncprogress.TypeProgress {
				lastRate = rec.RateBps
			}
		}, e.logger)

		if err != nil {
			summary.Failed++
			summary.Results = append(summary.Results, MoveResult{move, OutcomeFailed, err.Error()})
			if e.tracker != nil {
				e.tracker.Complete(ctx, rec, false, err.Error())
			}
			continue
		}

		if result.ExitCode != 0 {
			verdict := classify.Classify(result.ExitCode, result.Stderr)
			e.logger.Warn("copy tool failed", "exit_code", result.ExitCode, "category", verdict.Category, "severity", verdict.Severity)
			summary.Failed++
			summary.Results = append(summary.Results, MoveResult{move, OutcomeFailed, fmt.Sprintf("exit %d: %s", result.ExitCode, result.Stderr)})

			if e.tracker != nil {
				e.tracker.Complete(ctx, rec, false, result.Stderr)
			}
			if e.errors != nil {
				e.errors.StoreError(ctx, operationID, result.Stderr, string(verdict.Category), time.Now())
			}
			if !verdict.Recoverable {
				e.rollbackPartial(dst)
			}
			continue
		}

		postReport := validate.PostTransfer(validate.PostTransferInput{
			SourcePath:      src,
			DestPath:        dst,
			SourceSizeBytes: move.Unit.SizeBytes,
			CheckSizeMatch:  e.cfg.CheckSizeOnVerify,
		})
		// A dry run copies nothing, so there is no result to verify.
		if e.cfg.DryRun {
			postReport = validate.Report{Overall: validate.ResultPassed}
		}
		if postReport.Overall == validate.ResultFailed {
			summary.Failed++
			summary.Results = append(summary.Results, MoveResult{move, OutcomeFailed, "post-transfer verification failed"})
			if e.tracker != nil {
				e.tracker.Complete(ctx, rec, false, "post-transfer verification failed")
			}
			continue
		}

		if e.tracker != nil {
			e.tracker.Complete(ctx, rec, true, "")
		}
		if e.monitor != nil {
			e.monitor.RecordTransferCompletion(lastRate, move.Unit.SizeBytes, time.Now())
		}

		summary.Succeeded++
		summary.Results = append(summary.Results, MoveResult{move, OutcomeSucceeded, ""})
	}

	return summary
}

// rollbackPartial removes a partially-written destination after an
// unrecoverable, non-retryable failure.
func (e *Executor) rollbackPartial(dst string) {
	if err := os.RemoveAll(dst); err != nil {
		e.logger.Warn("failed to roll back partial destination", "dst", dst, "error", err)
	}
}

// PrintSummary renders a colored, human-readable summary to stdout:
// attempted, succeeded, skipped and failed counts.
func PrintSummary(s Summary) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	bold.Printf("Operation summary: %d attempted\n", s.Attempted)
	green.Printf("  succeeded: %d\n", s.Succeeded)
	yellow.Printf("  skipped:   %d\n", s.Skipped)
	red.Printf("  failed:    %d\n", s.Failed)
}
