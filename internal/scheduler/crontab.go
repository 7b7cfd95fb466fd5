package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const sentinelPrefix = "# Unraid Rebalancer Schedule: "

// Registry is the OS time-based scheduling facility the scheduler registers
// against — a user crontab in the default implementation.
type Registry interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, contents string) error
}

// CrontabRegistry drives the system `crontab` tool: reads via `crontab -l`,
// installs via `crontab -` fed the new contents on stdin.
type CrontabRegistry struct{}

func (CrontabRegistry) Read(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "crontab", "-l").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if ok := asExitError(err, &exitErr); ok && exitErr.ExitCode() == 1 {
			// an empty/absent crontab: treat as no entries rather than an error.
			return "", nil
		}
		return "", fmt.Errorf("scheduler: reading crontab: %w", err)
	}
	return string(out), nil
}

func (CrontabRegistry) Write(ctx context.Context, contents string) error {
	cmd := exec.CommandContext(ctx, "crontab", "-")
	cmd.Stdin = strings.NewReader(contents)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("scheduler: installing crontab: %w: %s", err, stderr.String())
	}
	return nil
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

// sentinelLine is the exact comment line identifying a schedule's entry.
func sentinelLine(id string) string {
	return sentinelPrefix + id
}

// upsertEntry performs the read-modify-write on crontab text: any existing
// comment-then-command pair for id is removed, then (unless command is
// empty) a fresh pair is appended. A pure function over crontab text so it
// is fully testable without an OS crontab.
func upsertEntry(contents, id, command string) string {
	lines := splitNonEmptyLines(contents)
	var out []string

	sentinel := sentinelLine(id)
	for i := 0; i < len(lines); i++ {
		if lines[i] == sentinel {
			// skip the sentinel and, if present, its following command line.
			i++
			continue
		}
		out = append(out, lines[i])
	}

	if command != "" {
		out = append(out, sentinel, command)
	}

	return strings.Join(out, "\n") + "\n"
}

func splitNonEmptyLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// entryIDs returns every schedule id currently registered in contents.
func entryIDs(contents string) []string {
	var ids []string
	for _, l := range splitNonEmptyLines(contents) {
		if strings.HasPrefix(l, sentinelPrefix) {
			ids = append(ids, strings.TrimPrefix(l, sentinelPrefix))
		}
	}
	return ids
}
