package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samestrin/diskbalancer/internal/diskinv"
	"github.com/samestrin/diskbalancer/internal/planner"
	"github.com/samestrin/diskbalancer/internal/sizeunit"
)

func newPlanCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build a rebalance plan and optionally save it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(outPath)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "path to write the plan as JSON (default: print to stdout)")
	return cmd
}

func runPlan(outPath string) error {
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
	if len(disks) == 0 {
		return exitWith(2, fmt.Errorf("no disks found under %s", cfg.DisksRoot))
	}

	plan := buildFreshPlan(cfg, disks, nil, logger)

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return exitWith(1, err)
	}

	if outPath == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return exitWith(1, err)
	}
	fmt.Printf("wrote plan (%d moves, %s) to %s\n", plan.Summary.TotalMoves, sizeunit.Bytes(plan.Summary.TotalBytes), outPath)
	return nil
}

func loadPlan(path string) (planner.Plan, error) {
	var plan planner.Plan
	data, err := os.ReadFile(path)
	if err != nil {
		return plan, err
	}
	err = json.Unmarshal(data, &plan)
	return plan, err
}
