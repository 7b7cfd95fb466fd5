package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/samestrin/diskbalancer/internal/config"
	"github.com/samestrin/diskbalancer/internal/logging"
)

// exitError carries a specific process exit code alongside an error,
// per the CLI contract in spec.md §6: 0 success, 1 failures during
// execution, 2 no disks found, 130 interrupted.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) ExitCode() int { return e.code }

func exitWith(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

var (
	flagConfigPath string
	flagVerbose    bool
	flagLogFile    string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rebalancer",
		Short:         "Rebalances shared folders across a JBOD disk pool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&flagConfigPath, "config", "/boot/config/plugins/rebalancer/config.yaml", "path to the application config file")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug-level logging")
	flags.StringVar(&flagLogFile, "log-file", "", "path to a log file; defaults to stderr")
	root.SetGlobalNormalizationFunc(pflag.CommandLine.GetNormalizeFunc())

	root.AddCommand(newScanCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newRebalanceCmd())
	root.AddCommand(newScheduleCmd())
	root.AddCommand(newHealthCmd())

	return root
}

// loadConfig loads the app config and constructs its logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	if flagVerbose || cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}

	logFile := flagLogFile
	if logFile == "" {
		logFile = cfg.LogFile
	}
	w := os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			return cfg, logging.New(f, level), nil
		}
	}
	return cfg, logging.New(w, level), nil
}
