package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samestrin/diskbalancer/internal/diskinv"
	"github.com/samestrin/diskbalancer/internal/scanner"
	"github.com/samestrin/diskbalancer/internal/sizeunit"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List disks and allocation units without changing anything",
		RunE:  runScan,
	}
	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
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

	opts := scanner.Options{
		UnitDepth:     cfg.Scan.UnitDepth,
		IncludeShares: toSet(cfg.Scan.IncludeShares),
		ExcludeShares: toSet(cfg.Scan.ExcludeShares),
		MinUnitSize:   cfg.Scan.MinUnitBytes,
		ExcludeGlobs:  cfg.Scan.ExcludeGlobs,
	}

	for _, d := range disks {
		fmt.Printf("%s  %6.1f%% full  (%s used / %s total)\n", d.Name, d.FillPercent(), sizeunit.Bytes(d.UsedBytes), sizeunit.Bytes(d.TotalBytes))
		for u := range scanner.Scan(d, opts, logger) {
			fmt.Printf("  %s/%s  %s\n", u.Share, u.RelPath, sizeunit.Bytes(u.SizeBytes))
		}
	}
	return nil
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}
