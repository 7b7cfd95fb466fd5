package perfmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetUnknownFallsBackToDefault(t *testing.T) {
	assert.Equal(t, Get(ClassDefault), Get(Class("bogus")))
}

func TestConservativeWriteRate(t *testing.T) {
	m := Get(ClassSSD)
	want := m.SequentialWriteMBps * m.ReliabilityFactor * 0.8
	assert.InDelta(t, want, ConservativeWriteRateMBps(ClassSSD), 0.0001)
}

func TestDetectClass(t *testing.T) {
	const gib = 1 << 30
	assert.Equal(t, Class5400RPMSATA, DetectClass(9000*gib))
	assert.Equal(t, ClassSSD, DetectClass(200*gib))
	assert.Equal(t, Class7200RPMSATA, DetectClass(2000*gib))
}
