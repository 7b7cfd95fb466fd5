// Package classify maps a copy tool's exit code and stderr text to a
// category, severity and recoverability verdict. Classification is a pure
// function of its inputs.
package classify

import "strings"

type Category string

const (
	CategoryValidation Category = "validation"
	CategoryDiskSpace  Category = "disk_space"
	CategoryPermission Category = "permission"
	CategoryCopyTool   Category = "copy_tool"
	CategoryFilesystem Category = "filesystem"
	CategoryNetwork    Category = "network"
	CategoryInterrupt  Category = "interrupt"
	CategoryUnknown    Category = "unknown"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Verdict is the classifier's output.
type Verdict struct {
	Category    Category
	Severity    Severity
	Recoverable bool
}

var exitCodeTable = map[int]Verdict{
	1: {CategoryCopyTool, SeverityHigh, false},
	2: {CategoryCopyTool, SeverityHigh, false},
	4: {CategoryCopyTool, SeverityHigh, false},
	5: {CategoryCopyTool, SeverityHigh, false},
	6: {CategoryCopyTool, SeverityHigh, false},

	3:  {CategoryFilesystem, SeverityHigh, true},
	11: {CategoryFilesystem, SeverityHigh, true},

	10: {CategoryNetwork, SeverityMedium, true},
	30: {CategoryNetwork, SeverityMedium, true},
	35: {CategoryNetwork, SeverityMedium, true},

	20: {CategoryInterrupt, SeverityMedium, true},
	21: {CategoryInterrupt, SeverityMedium, true},

	23: {CategoryCopyTool, SeverityMedium, true},
	24: {CategoryCopyTool, SeverityMedium, true},

	22: {CategoryFilesystem, SeverityHigh, false},
}

// Classify is a pure function of (exitCode, stderr): the same inputs
// always produce the same verdict.
func Classify(exitCode int, stderr string) Verdict {
	v, ok := exitCodeTable[exitCode]
	if !ok {
		v = Verdict{CategoryUnknown, SeverityHigh, true}
	}

	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "no space left"), strings.Contains(lower, "disk full"):
		v = Verdict{CategoryDiskSpace, SeverityHigh, false}
	case strings.Contains(lower, "permission denied"):
		v = Verdict{CategoryPermission, SeverityHigh, false}
	case strings.Contains(lower, "network"), strings.Contains(lower, "connection"):
		v = Verdict{CategoryNetwork, SeverityMedium, true}
	}

	return v
}

// FailureType is the coarser taxonomy the scheduler's recovery manager
// reasons about, distinct from Category: it groups classifier output (plus
// scheduler-only causes like user cancellation) into a retry decision.
type FailureType string

const (
	FailureTimeout       FailureType = "timeout"
	FailurePermission    FailureType = "permission"
	FailureDisk          FailureType = "disk"
	FailureNetwork       FailureType = "network"
	FailureResource      FailureType = "resource"
	FailureConfiguration FailureType = "configuration"
	FailureUserCancelled FailureType = "user_cancelled"
	FailureUnknown       FailureType = "unknown"
)

var retryableFailureTypes = map[FailureType]bool{
	FailureTimeout:  true,
	FailureNetwork:  true,
	FailureResource: true,
	FailureUnknown:  true,
}

// Retryable reports whether ft is a retryable failure type per the
// recovery policy: timeout, network, resource and unknown are retryable;
// permission, configuration and user-cancelled are not.
func Retryable(ft FailureType) bool {
	return retryableFailureTypes[ft]
}

// ClassifyFailureText maps free-form execution-failure text (as produced
// by the scheduler's recovery manager, not the copy tool directly) to a
// FailureType.
func ClassifyFailureText(text string) FailureType {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return FailureTimeout
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "access denied"):
		return FailurePermission
	case strings.Contains(lower, "no space left"), strings.Contains(lower, "disk full"):
		return FailureDisk
	case strings.Contains(lower, "network"), strings.Contains(lower, "connection"):
		return FailureNetwork
	case strings.Contains(lower, "cancelled"), strings.Contains(lower, "canceled"):
		return FailureUserCancelled
	case strings.Contains(lower, "config"):
		return FailureConfiguration
	case strings.Contains(lower, "resource"), strings.Contains(lower, "too many open files"):
		return FailureResource
	default:
		return FailureUnknown
	}
}
