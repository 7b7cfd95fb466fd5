// Package validate performs pre- and post-transfer safety checks.
package validate

import (
	"fmt"
	"os"

	"github.com/samestrin/diskbalancer/internal/pathutil"
)

type Result string

const (
	ResultPassed  Result = "passed"
	ResultFailed  Result = "failed"
	ResultWarning Result = "warning"
	ResultSkipped Result = "skipped"
)

// Check is one named check's outcome.
type Check struct {
	Name    string
	Result  Result
	Message string
}

// Report aggregates checks with an overall verdict: failed if any check
// failed, warning if any warned (and none failed), else passed.
type Report struct {
	Checks  []Check
	Overall Result
}

func overall(checks []Check) Result {
	overall := ResultPassed
	for _, c := range checks {
		switch c.Result {
		case ResultFailed:
			return ResultFailed
		case ResultWarning:
			overall = ResultWarning
		}
	}
	return overall
}

// PreTransferInput describes the move about to be attempted.
type PreTransferInput struct {
	SourcePath      string
	DestParentPath  string
	DisksRoot       string
	SourceDisk      string
	DestDisk        string
	SourceSizeBytes int64
	BufferPercent   float64
	ModeName        string
	// ModePreservesHardLinksACLs reports whether the selected copy mode
	// preserves hard links and ACLs; "fast" mode does not.
	ModePreservesHardLinksACLs bool
	RequiresHardLinksOrACLs    bool
}

// PreTransfer runs every pre-transfer check and returns their aggregate.
// A failed report must prevent the transfer from running.
func PreTransfer(in PreTransferInput) Report {
	var checks []Check

	checks = append(checks, checkSourceReadable(in.SourcePath))
	checks = append(checks, checkDestParentWritable(in.DestParentPath))
	checks = append(checks, checkFreeSpace(in.DestParentPath, in.SourceSizeBytes, in.BufferPercent))
	checks = append(checks, checkExpectedDisksRoot(in.SourcePath, in.DisksRoot, in.SourceDisk, "source"))
	checks = append(checks, checkExpectedDisksRoot(in.DestParentPath, in.DisksRoot, in.DestDisk, "destination"))
	checks = append(checks, checkModeCompatibility(in.ModePreservesHardLinksACLs, in.RequiresHardLinksOrACLs))

	return Report{Checks: checks, Overall: overall(checks)}
}

func checkSourceReadable(path string) Check {
	if !pathutil.Exists(path) {
		return Check{"source_exists", ResultFailed, fmt.Sprintf("source %q does not exist", path)}
	}
	f, err := os.Open(path)
	if err != nil {
		return Check{"source_readable", ResultFailed, err.Error()}
	}
	f.Close()
	return Check{"source_readable", ResultPassed, ""}
}

func checkDestParentWritable(path string) Check {
	if !pathutil.IsDir(path) {
		return Check{"dest_parent_exists", ResultFailed, fmt.Sprintf("destination parent %q does not exist", path)}
	}
	probe := path + "/.rebalance-write-probe"
	f, err := os.Create(probe)
	if err != nil {
		return Check{"dest_parent_writable", ResultFailed, err.Error()}
	}
	f.Close()
	os.Remove(probe)
	return Check{"dest_parent_writable", ResultPassed, ""}
}

func checkFreeSpace(destParent string, sourceSize int64, bufferPercent float64) Check {
	status, err := pathutil.Statfs(destParent)
	if err != nil {
		return Check{"free_space", ResultFailed, err.Error()}
	}
	required := int64(float64(sourceSize) * (1 + bufferPercent/100))
	if status.FreeBytes < required {
		return Check{"free_space", ResultFailed, fmt.Sprintf("need %d bytes, have %d", required, status.FreeBytes)}
	}
	return Check{"free_space", ResultPassed, ""}
}

func checkExpectedDisksRoot(path, disksRoot, diskName, label string) Check {
	if disksRoot == "" || diskName == "" {
		return Check{label + "_disk_root", ResultSkipped, ""}
	}
	expected := disksRoot + "/" + diskName
	if len(path) < len(expected) || path[:len(expected)] != expected {
		return Check{label + "_disk_root", ResultWarning, fmt.Sprintf("%s path %q not under expected root %q", label, path, expected)}
	}
	return Check{label + "_disk_root", ResultPassed, ""}
}

func checkModeCompatibility(modePreserves, required bool) Check {
	if required && !modePreserves {
		return Check{"mode_compatibility", ResultFailed, "selected mode cannot preserve hard links/ACLs required by this unit"}
	}
	return Check{"mode_compatibility", ResultPassed, ""}
}

// PostTransferInput describes the completed move to verify.
type PostTransferInput struct {
	SourcePath      string
	DestPath        string
	SourceSizeBytes int64
	CheckSizeMatch  bool
}

// PostTransfer verifies source is gone, destination is present, and
// optionally that sizes match (a mismatch is a warning, not a failure).
func PostTransfer(in PostTransferInput) Report {
	var checks []Check

	if pathutil.Exists(in.SourcePath) {
		checks = append(checks, Check{"source_removed", ResultFailed, "source still present after transfer"})
	} else {
		checks = append(checks, Check{"source_removed", ResultPassed, ""})
	}

	if !pathutil.Exists(in.DestPath) {
		checks = append(checks, Check{"dest_present", ResultFailed, "destination missing after transfer"})
	} else {
		checks = append(checks, Check{"dest_present", ResultPassed, ""})
	}

	if in.CheckSizeMatch && pathutil.Exists(in.DestPath) {
		size, err := pathutil.DirSize(in.DestPath)
		switch {
		case err != nil:
			checks = append(checks, Check{"size_match", ResultWarning, err.Error()})
		case size != in.SourceSizeBytes:
			checks = append(checks, Check{"size_match", ResultWarning, fmt.Sprintf("size mismatch: expected %d, got %d", in.SourceSizeBytes, size)})
		default:
			checks = append(checks, Check{"size_match", ResultPassed, ""})
		}
	}

	if pathutil.Exists(in.DestPath) {
		if _, err := os.Open(in.DestPath); err != nil {
			checks = append(checks, Check{"dest_readable", ResultWarning, err.Error()})
		} else {
			checks = append(checks, Check{"dest_readable", ResultPassed, ""})
		}
	}

	return Report{Checks: checks, Overall: overall(checks)}
}
