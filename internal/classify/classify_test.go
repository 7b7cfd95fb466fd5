package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyExitCodeTable(t *testing.T) {
	assert.Equal(t, Verdict{CategoryCopyTool, SeverityMedium, true}, Classify(23, ""))
	assert.Equal(t, Verdict{CategoryFilesystem, SeverityHigh, false}, Classify(22, ""))
	assert.Equal(t, Verdict{CategoryUnknown, SeverityHigh, true}, Classify(99, ""))
}

func TestClassifyStderrUpgrade(t *testing.T) {
	assert.Equal(t, Verdict{CategoryDiskSpace, SeverityHigh, false}, Classify(11, "No space left on device"))
	assert.Equal(t, Verdict{CategoryPermission, SeverityHigh, false}, Classify(1, "rsync: permission denied"))
	assert.Equal(t, Verdict{CategoryNetwork, SeverityMedium, true}, Classify(1, "Connection reset by peer"))
}

func TestClassifyIsPureFunction(t *testing.T) {
	a := Classify(11, "No space left on device")
	b := Classify(11, "No space left on device")
	assert.Equal(t, a, b)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(FailureTimeout))
	assert.True(t, Retryable(FailureNetwork))
	assert.False(t, Retryable(FailurePermission))
	assert.False(t, Retryable(FailureUserCancelled))
}

func TestClassifyFailureText(t *testing.T) {
	assert.Equal(t, FailureTimeout, ClassifyFailureText("operation timed out"))
	assert.Equal(t, FailurePermission, ClassifyFailureText("permission denied for user"))
	assert.Equal(t, FailureUserCancelled, ClassifyFailureText("execution cancelled by user"))
	assert.Equal(t, FailureUnknown, ClassifyFailureText("something strange happened"))
}
