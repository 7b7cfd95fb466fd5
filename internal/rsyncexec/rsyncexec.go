// Package rsyncexec wraps invocation of the external copy tool (rsync) as
// a subprocess, translating performance modes into canonical flag lists
// and streaming progress lines to a callback.
package rsyncexec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/samestrin/diskbalancer/internal/logging"
	"github.com/samestrin/diskbalancer/internal/rsyncprogress"
)

// Mode names the performance-mode catalog. The set is closed; adding one
// is a deliberate change.
type Mode string

const (
	ModeFast      Mode = "fast"
	ModeBalanced  Mode = "balanced"
	ModeIntegrity Mode = "integrity"
)

// ModeProfile describes one catalog entry for display and for the
// validator's mode-compatibility check.
type ModeProfile struct {
	Flags                  []string
	PreservesHardLinksACLs bool
	TargetHardwareTag      string
}

var modeCatalog = map[Mode]ModeProfile{
	ModeFast: {
		Flags:                  []string{"-av", "--no-compress"},
		PreservesHardLinksACLs: false,
		TargetHardwareTag:      "any — lowest CPU overhead",
	},
	ModeBalanced: {
		Flags:                  []string{"-av", "-X"},
		PreservesHardLinksACLs: false,
		TargetHardwareTag:      "general purpose",
	},
	ModeIntegrity: {
		Flags:                  []string{"-aHAX", "--checksum"},
		PreservesHardLinksACLs: true,
		TargetHardwareTag:      "archival / integrity-sensitive",
	},
}

// Profile returns the catalog entry for mode, or the balanced profile for
// an unrecognized mode name.
func Profile(mode Mode) ModeProfile {
	if p, ok := modeCatalog[mode]; ok {
		return p
	}
	return modeCatalog[ModeBalanced]
}

// Modes lists the closed set of named performance modes.
func Modes() []Mode {
	return []Mode{ModeFast, ModeBalanced, ModeIntegrity}
}

const binaryName = "rsync"

var commonFlags = []string{"--info=progress2", "--partial", "--inplace", "--numeric-ids"}

// Request describes one unit move.
type Request struct {
	Mode        Mode
	ExtraFlags  []string
	AtomicMove  bool // appends --remove-source-files
	SourcePath  string
	SourceIsDir bool
	DestPath    string
	DryRun      bool
}

// BuildArgs constructs the argument vector for req, per the canonical
// mode flag list plus extra flags plus the atomic-move flag plus source
// and destination paths. The source path is always passed as given
// (never rewritten into a trailing-slash form), whether file or directory.
func BuildArgs(req Request) []string {
	args := append([]string{}, Profile(req.Mode).Flags...)
	args = append(args, commonFlags...)
	args = append(args, req.ExtraFlags...)
	if req.AtomicMove {
		args = append(args, "--remove-source-files")
	}
	args = append(args, req.SourcePath, req.DestPath)
	return args
}

// Result is the outcome of one invocation.
type Result struct {
	ExitCode int
	Stderr   string
}

// ProgressFunc receives parsed progress records as the copy tool runs.
type ProgressFunc func(rsyncprogress.Record)

// Run executes the copy tool for req. If req.DryRun, the command is only
// logged and a zero-code success is returned. ctx cancellation terminates
// the child process; progress lines read from its combined stdout/stderr
// stream are parsed and handed to onProgress as they arrive.
func Run(ctx context.Context, req Request, onProgress ProgressFunc, logger *slog.Logger) (Result, error) {
	logger = logging.Subsys(logger, logging.SubsysRsync)
	args := BuildArgs(req)

	if req.DryRun {
		logger.Info("dry-run copy command", "binary", binaryName, "args", args)
		return Result{ExitCode: 0}, nil
	}

	cmd := exec.CommandContext(ctx, binaryName, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("rsyncexec: stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout // progress2 writes to stdout; treat the stream uniformly

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("rsyncexec: start: %w", err)
	}

	var lastStderr string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		rec := rsyncprogress.Parse(line)
		if rec.Type != rsyncprogress.TypeNone && onProgress != nil {
			onProgress(rec)
		}
		lastStderr = line
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		logger.Debug("progress stream read error", "error", err)
	}

	waitErr := cmd.Wait()
	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{}, fmt.Errorf("rsyncexec: wait: %w", waitErr)
		}
	}

	return Result{ExitCode: exitCode, Stderr: lastStderr}, nil
}
