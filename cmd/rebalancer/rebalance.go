package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/samestrin/diskbalancer/internal/config"
	"github.com/samestrin/diskbalancer/internal/diskinv"
	"github.com/samestrin/diskbalancer/internal/executor"
	"github.com/samestrin/diskbalancer/internal/hostprobe"
	"github.com/samestrin/diskbalancer/internal/metricsdb"
	"github.com/samestrin/diskbalancer/internal/plandiff"
	"github.com/samestrin/diskbalancer/internal/planner"
	"github.com/samestrin/diskbalancer/internal/scanner"
	"github.com/samestrin/diskbalancer/internal/sysmonitor"
	"github.com/samestrin/diskbalancer/internal/transferstate"
	"github.com/samestrin/diskbalancer/internal/tui"
)

// buildFreshPlan scans every disk and runs the planner with cfg's
// configured mode and strategy.
func buildFreshPlan(cfg *config.Config, disks []diskinv.Disk, orphans planner.OrphanSource, logger *slog.Logger) planner.Plan {
	scanOpts := scanner.Options{
		UnitDepth:     cfg.Scan.UnitDepth,
		IncludeShares: toSet(cfg.Scan.IncludeShares),
		ExcludeShares: toSet(cfg.Scan.ExcludeShares),
		MinUnitSize:   cfg.Scan.MinUnitBytes,
		ExcludeGlobs:  cfg.Scan.ExcludeGlobs,
	}
	var units []scanner.Unit
	for _, d := range disks {
		for u := range scanner.Scan(d, scanOpts, logger) {
			units = append(units, u)
		}
	}

	mode := planner.Mode{
		Fixed:           cfg.Plan.FixedTargetPercent,
		TargetPercent:   cfg.Plan.TargetPercent,
		HeadroomPercent: cfg.Plan.HeadroomPercent,
	}
	strategy := planner.StrategyBySize
	if cfg.Plan.StrategyByFill {
		strategy = planner.StrategyByFill
	}
	return planner.Build(disks, units, mode, strategy, orphans, logger)
}

func newRebalanceCmd() *cobra.Command {
	var planPath string
	var execute bool
	var interactive bool
	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Build or load a plan and move units between disks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebalance(cmd.Context(), planPath, execute, interactive)
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "path to a saved plan JSON file; if empty, a plan is built fresh")
	cmd.Flags().BoolVar(&execute, "execute", false, "actually move data; without this flag the plan is only reported (dry run)")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "show a live dashboard of disk fill, active transfers and ETA")
	return cmd
}

func runRebalance(parentCtx context.Context, planPath string, execute, interactive bool) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return exitWith(1, err)
	}

	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := metricsdb.Open(cfg.DBPath, logger)
	if err != nil {
		return exitWith(1, err)
	}
	defer store.Close()

	disks, err := diskinv.Discover(diskinv.Options{
		DisksRoot: cfg.DisksRoot,
		Include:   toSet(cfg.Scan.IncludeDisks),
		Exclude:   toSet(cfg.Scan.ExcludeDisks),
	}, logger)
	if err != nil {
		return exitWith(1, err)
	}
	if len(disks) == 0 {
		return exitWith(2, fmt.Errorf("no disks found under %s", cfg.DisksRoot))
	}

	var probe hostprobe.Probe = hostprobe.Nop{}
	if ok, reasons := probe.IsSafeToRun(); !ok {
		return exitWith(1, fmt.Errorf("not safe to run: %v", reasons))
	}

	// A saved --plan being re-run is a resume: if a prior operation never
	// closed out (process died mid-run), reuse its operation id so the
	// tracker hydrates that operation's in-flight transfer records instead
	// of starting with an empty active set.
	var operationID string
	resuming := false
	if planPath != "" {
		if running, lerr := store.ListRunningOperations(ctx); lerr == nil && len(running) > 0 {
			operationID = running[len(running)-1].OperationID
			resuming = true
		}
	}
	if operationID == "" {
		operationID = uuid.NewString()
	}

	tracker := transferstate.New(ctx, operationID, metricsTransferStateStore{store}, logger)

	var plan planner.Plan
	if planPath != "" {
		plan, err = loadPlan(planPath)
		if err != nil {
			return exitWith(1, err)
		}

		fresh := buildFreshPlan(cfg, disks, tracker, logger)
		diff, err := plandiff.Compare(plan, fresh)
		if err != nil {
			return exitWith(1, err)
		}
		if diff.Changed {
			fmt.Println("current disk state no longer matches the saved plan:")
			fmt.Println(diff.Report)
		}
		plan.OrphanedKeys = fresh.OrphanedKeys
	} else {
		plan = buildFreshPlan(cfg, disks, tracker, logger)
	}

	if len(plan.Moves) == 0 {
		fmt.Println("plan is empty, nothing to do")
		return nil
	}

	if !resuming {
		if err := store.StoreOperation(ctx, metricsdb.Operation{
			OperationID: operationID,
			StartTime:   time.Now(),
			Mode:        cfg.Transfer.Mode,
		}); err != nil {
			return exitWith(1, err)
		}
	}

	monitor := sysmonitor.New(operationID, cfg.Monitor.SampleInterval, metricsSampleSink{store}, logger)
	monitor.Start(ctx)
	defer monitor.Stop()

	execCfg := executor.Config{
		DisksRoot:         cfg.DisksRoot,
		ExtraFlags:        cfg.Transfer.ExtraFlags,
		AllowMerge:        cfg.Transfer.AllowMerge,
		Mode:              cfg.Transfer.RsyncMode(),
		DryRun:            !execute,
		AtomicMove:        cfg.Transfer.AtomicMove,
		BufferPercent:     cfg.Transfer.BufferPercent,
		CheckSizeOnVerify: cfg.Transfer.CheckSizeOnVerify,
	}
	exec := executor.New(execCfg, tracker, monitor, metricsErrorSink{store}, logger)
	monitor.SetRemainingBytes(plan.Summary.TotalBytes)

	exporter := startMetricsExporter(ctx, cfg.Monitor.MetricsAddr, monitor, logger)
	defer exporter.stop()

	var summary executor.Summary
	if interactive {
		model := tui.New(disks, plan.Summary.TotalMoves, plan.Summary.TotalBytes, tracker, monitor)
		err = tui.Run(model, func() error {
			summary = exec.Perform(ctx, operationID, plan)
			return nil
		})
		if err != nil {
			return exitWith(1, err)
		}
	} else {
		summary = exec.Perform(ctx, operationID, plan)
	}
	executor.PrintSummary(summary)
	exporter.recordSummary(summary)

	endTime := time.Now()
	successRate := 0.0
	if summary.Attempted > 0 {
		successRate = float64(summary.Succeeded) / float64(summary.Attempted)
	}
	_ = store.UpdateOperation(ctx, metricsdb.Operation{
		OperationID: operationID,
		EndTime:     sql.NullTime{Time: endTime, Valid: true},
		SuccessRate: successRate,
	})

	if ctx.Err() != nil {
		return exitWith(130, ctx.Err())
	}
	if summary.Failed > 0 {
		return exitWith(1, fmt.Errorf("%d of %d moves failed", summary.Failed, summary.Attempted))
	}
	return nil
}
