package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/samestrin/diskbalancer/internal/config"
	"github.com/samestrin/diskbalancer/internal/diskinv"
	"github.com/samestrin/diskbalancer/internal/hostprobe"
	"github.com/samestrin/diskbalancer/internal/logging"
	"github.com/samestrin/diskbalancer/internal/metricsdb"
	"github.com/samestrin/diskbalancer/internal/scheduler"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage persisted rebalance schedules and the OS crontab registration",
	}
	cmd.AddCommand(
		newScheduleListCmd(),
		newScheduleCreateCmd(),
		newScheduleDeleteCmd(),
		newScheduleEnableCmd(),
		newScheduleDisableCmd(),
		newScheduleSyncCmd(),
		newScheduleTemplatesCmd(),
		newScheduleRunCmd(),
	)
	return cmd
}

// newScheduler constructs a Scheduler wired to the app's metrics store,
// crontab registry and an execRunner that launches this same binary.
func newScheduler() (*scheduler.Scheduler, *scheduler.ConfigStore, *metricsdb.Store, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := metricsdb.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	configs, err := scheduler.NewConfigStore(cfg.ConfigDir)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	s := scheduler.New(configs, scheduler.CrontabRegistry{}, logger,
		scheduler.WithExecutionStore(metricsExecutionStore{store}),
		scheduler.WithRunner(execRunner{}),
		scheduler.WithCanceller(pidCanceller{}),
		scheduler.WithProbe(hostProbe{cfg: cfg}),
		scheduler.WithNotifier(hostprobe.Nop{}),
	)
	return s, configs, store, nil
}

func newScheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, configs, store, err := newScheduler()
			if err != nil {
				return exitWith(1, err)
			}
			defer store.Close()
			cfgs, err := configs.List()
			if err != nil {
				return exitWith(1, err)
			}
			for _, c := range cfgs {
				status := "enabled"
				if c.Suspended {
					status = "suspended: " + c.SuspendedReason
				} else if !c.Enabled {
					status = "disabled"
				}
				fmt.Printf("%s  %-30s  %-20s  %s\n", c.ID, c.Name, c.CronExpr, status)
			}
			return nil
		},
	}
}

func newScheduleCreateCmd() *cobra.Command {
	var template, id, name, cronExpr, kind string
	var mode string
	var targetPercent, headroomPercent float64
	var minUnitBytes int64
	var includeDisks, excludeDisks, includeShares, excludeShares, excludeGlobs []string
	var runtimeCapHours float64
	var notifyOnSuccess, notifyOnFailure bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a schedule, optionally from a named template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return exitWith(1, fmt.Errorf("schedule create: --id is required"))
			}
			overrides := scheduler.RebalanceParams{
				TargetPercent:   targetPercent,
				HeadroomPercent: headroomPercent,
				MinUnitBytes:    minUnitBytes,
				Mode:            mode,
				IncludeDisks:    includeDisks,
				ExcludeDisks:    excludeDisks,
				IncludeShares:   includeShares,
				ExcludeShares:   excludeShares,
				ExcludeGlobs:    excludeGlobs,
			}

			var cfg scheduler.ScheduleConfig
			if template != "" {
				tmpl, ok := scheduler.FindTemplate(template)
				if !ok {
					return exitWith(1, fmt.Errorf("schedule create: no template matching %q", template))
				}
				built, err := tmpl.Instantiate(id, overrides)
				if err != nil {
					return exitWith(1, err)
				}
				cfg = built
			} else {
				if cronExpr == "" {
					return exitWith(1, fmt.Errorf("schedule create: --cron is required without --template"))
				}
				scheduleKind := scheduler.ScheduleKind(kind)
				if scheduleKind == "" {
					scheduleKind = scheduler.KindRecurring
				}
				cfg = scheduler.ScheduleConfig{
					ID: id, Name: name, Kind: scheduleKind, CronExpr: cronExpr, Enabled: true,
					Rebalance:       overrides,
					RuntimeCapHours: runtimeCapHours,
					Notify:          scheduler.NotificationPrefs{OnSuccess: notifyOnSuccess, OnFailure: notifyOnFailure},
				}
			}
			if name != "" {
				cfg.Name = name
			}

			s, _, store, err := newScheduler()
			if err != nil {
				return exitWith(1, err)
			}
			defer store.Close()
			if err := s.CreateSchedule(cmd.Context(), cfg); err != nil {
				return exitWith(1, err)
			}
			fmt.Printf("created schedule %q (%s)\n", cfg.ID, cfg.CronExpr)
			return nil
		},
	}
	cmd.Flags().StringVar(&template, "template", "", "template name to instantiate (fuzzy-matched)")
	cmd.Flags().StringVar(&id, "id", "", "unique schedule id")
	cmd.Flags().StringVar(&name, "name", "", "human-readable schedule name")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "five-field cron-form expression")
	cmd.Flags().StringVar(&kind, "kind", "", "schedule kind: one-shot, recurring or conditional (default recurring)")
	cmd.Flags().Float64Var(&targetPercent, "target-percent", 0, "rebalance target fill percent override")
	cmd.Flags().Float64Var(&headroomPercent, "headroom-percent", 0, "rebalance headroom percent override")
	cmd.Flags().Int64Var(&minUnitBytes, "min-unit-bytes", 0, "rebalance minimum unit size override")
	cmd.Flags().StringVar(&mode, "mode", "", "rebalance transfer mode override")
	cmd.Flags().StringArrayVar(&includeDisks, "include-disk", nil, "disk to include, repeatable")
	cmd.Flags().StringArrayVar(&excludeDisks, "exclude-disk", nil, "disk to exclude, repeatable")
	cmd.Flags().StringArrayVar(&includeShares, "include-share", nil, "share to include, repeatable")
	cmd.Flags().StringArrayVar(&excludeShares, "exclude-share", nil, "share to exclude, repeatable")
	cmd.Flags().StringArrayVar(&excludeGlobs, "exclude-glob", nil, "glob pattern to exclude, repeatable")
	cmd.Flags().Float64Var(&runtimeCapHours, "runtime-cap-hours", 0, "maximum hours an execution may run before being marked timed out")
	cmd.Flags().BoolVar(&notifyOnSuccess, "notify-on-success", false, "send a notification when the schedule succeeds")
	cmd.Flags().BoolVar(&notifyOnFailure, "notify-on-failure", true, "send a notification when the schedule fails")
	return cmd
}

func newScheduleDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, store, err := newScheduler()
			if err != nil {
				return exitWith(1, err)
			}
			defer store.Close()
			if err := s.DeleteSchedule(cmd.Context(), args[0]); err != nil {
				return exitWith(1, err)
			}
			fmt.Printf("deleted schedule %q\n", args[0])
			return nil
		},
	}
}

func newScheduleEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <id>",
		Short: "Enable a schedule and register it with the OS crontab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, store, err := newScheduler()
			if err != nil {
				return exitWith(1, err)
			}
			defer store.Close()
			if err := s.EnableSchedule(cmd.Context(), args[0]); err != nil {
				return exitWith(1, err)
			}
			fmt.Printf("enabled schedule %q\n", args[0])
			return nil
		},
	}
}

func newScheduleDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Disable a schedule and unregister it from the OS crontab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, store, err := newScheduler()
			if err != nil {
				return exitWith(1, err)
			}
			defer store.Close()
			if err := s.DisableSchedule(cmd.Context(), args[0]); err != nil {
				return exitWith(1, err)
			}
			fmt.Printf("disabled schedule %q\n", args[0])
			return nil
		},
	}
}

func newScheduleSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile persisted schedules with the OS crontab registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, store, err := newScheduler()
			if err != nil {
				return exitWith(1, err)
			}
			defer store.Close()
			if err := s.SyncSchedules(cmd.Context()); err != nil {
				return exitWith(1, err)
			}
			fmt.Println("schedules synced")
			return nil
		},
	}
}

func newScheduleTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the built-in schedule templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, t := range scheduler.Templates {
				fmt.Printf("%-24s %s\n", t.Name, t.Description)
			}
			return nil
		},
	}
}

// newScheduleRunCmd runs the scheduler's internal evaluation loop in the
// foreground until interrupted, the daemon-style mode described for the OS
// registry's invoked entrypoint.
func newScheduleRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler's evaluation loop in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, store, err := newScheduler()
			if err != nil {
				return exitWith(1, err)
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s.Start(ctx)
			<-ctx.Done()
			s.Stop()
			return nil
		},
	}
}

// execRunner launches a scheduled rebalance as a detached child process of
// this same binary, the OS-registry entrypoint's command invoked directly
// rather than through cron.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, cfg scheduler.ScheduleConfig, attempt int) (int, error) {
	self, err := os.Executable()
	if err != nil {
		return 0, err
	}
	args := append([]string{"rebalance", "--execute"}, cfg.Rebalance.Args()...)
	cmd := exec.Command(self, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	go cmd.Wait()
	return cmd.Process.Pid, nil
}

// pidCanceller sends SIGTERM to a running scheduled execution's process.
type pidCanceller struct{}

func (pidCanceller) Cancel(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

// hostProbe supplies the external signals the scheduler's conditional
// triggers evaluate against, sampled directly from /proc and the disk
// inventory rather than through a persistent monitor.
type hostProbe struct {
	cfg *config.Config
}

func (p hostProbe) CPUPercent() float64 {
	return readLoadPercent()
}

func (p hostProbe) MemPercent() float64 {
	total, avail := readMemInfo()
	if total <= 0 {
		return 0
	}
	return (1 - avail/total) * 100
}

func (p hostProbe) DiskIOBps() float64 {
	return 0
}

func (p hostProbe) IdleMinutes() int {
	return 0
}

func (p hostProbe) DiskUsagePercent(disk string) (float64, bool) {
	disks, err := diskinv.Discover(diskinv.Options{DisksRoot: p.cfg.DisksRoot}, logging.Nop())
	if err != nil {
		return 0, false
	}
	for _, d := range disks {
		if d.Name == disk {
			return d.FillPercent(), true
		}
	}
	return 0, false
}

func readLoadPercent() float64 {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	load, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	pct := load * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

func readMemInfo() (totalKB, availKB float64) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			totalKB = parseMemInfoValue(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			availKB = parseMemInfoValue(line)
		}
	}
	return totalKB, availKB
}

func parseMemInfoValue(line string) float64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, _ := strconv.ParseFloat(fields[1], 64)
	return v
}
