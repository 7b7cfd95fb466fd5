package hostprobe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNopAlwaysSafeToRun(t *testing.T) {
	ok, reasons := Nop{}.IsSafeToRun()
	assert.True(t, ok)
	assert.Empty(t, reasons)
}

func TestNopNeverInMaintenanceWindow(t *testing.T) {
	assert.False(t, Nop{}.InMaintenanceWindow(time.Now()))
}

func TestNopNotifyReturnsFalse(t *testing.T) {
	assert.False(t, Nop{}.Notify("subject", "message", LevelWarning))
}
