package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dsh2dsh/go-monitoringplugin/v2"
	"github.com/spf13/cobra"

	"github.com/samestrin/diskbalancer/internal/diskinv"
	"github.com/samestrin/diskbalancer/internal/healthcheck"
	"github.com/samestrin/diskbalancer/internal/hostprobe"
	"github.com/samestrin/diskbalancer/internal/metricsdb"
)

func newHealthCmd() *cobra.Command {
	var warnPercent, critPercent float64
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run a Nagios-style pollable check over disk fill and stalled executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context(), warnPercent, critPercent, maxAge)
		},
	}
	cmd.Flags().Float64Var(&warnPercent, "warn-percent", 85, "disk fill percentage that triggers a warning")
	cmd.Flags().Float64Var(&critPercent, "crit-percent", 95, "disk fill percentage that triggers a critical")
	cmd.Flags().DurationVar(&maxAge, "max-execution-age", 6*time.Hour, "running-execution age that is treated as stalled")
	return cmd
}

func runHealth(ctx context.Context, warnPercent, critPercent float64, maxAge time.Duration) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return exitWith(1, err)
	}

	disks, err := diskinv.Discover(diskinv.Options{
		DisksRoot: cfg.DisksRoot,
		Include:   toSet(cfg.Scan.IncludeDisks),
		Exclude:   toSet(cfg.Scan.ExcludeDisks),
	}, logger)
	if err != nil {
		return exitWith(1, err)
	}

	store, err := metricsdb.Open(cfg.DBPath, logger)
	if err != nil {
		return exitWith(1, err)
	}
	defer store.Close()

	running, err := store.ListRunningOperations(ctx)
	if err != nil {
		return exitWith(1, err)
	}
	executions := make([]healthcheck.StalledExecution, 0, len(running))
	for _, op := range running {
		executions = append(executions, healthcheck.StalledExecution{
			ScheduleID: op.Mode,
			StartedAt:  op.StartTime,
		})
	}

	resp := monitoringplugin.NewResponse("rebalancer")

	healthcheck.NewDiskUsageCheck(resp).WithThresholds(warnPercent, critPercent).Run(disks)
	healthcheck.NewStalledExecutionCheck(resp).WithMaxAge(maxAge).Run(executions, time.Now())

	probe := hostprobe.Nop{}
	if ok, reasons := probe.IsSafeToRun(); !ok {
		for _, r := range reasons {
			resp.UpdateStatus(monitoringplugin.WARNING, r)
		}
	}

	code := resp.GetStatusCode()
	fmt.Printf("rebalancer health: status code %d (disks=%d, running=%d)\n", code, len(disks), len(running))
	if code != monitoringplugin.OK {
		return exitWith(code, fmt.Errorf("health check degraded"))
	}
	return nil
}
