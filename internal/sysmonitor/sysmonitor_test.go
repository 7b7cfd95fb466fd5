package sysmonitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/samestrin/diskbalancer/internal/logging"
	"github.com/samestrin/diskbalancer/internal/perfmodel"
)

func TestInitialETAFromConservativeRate(t *testing.T) {
	eta := InitialETA(1024*1024*1024, perfmodel.ClassSSD)
	assert.Greater(t, eta, time.Duration(0))
}

func TestInitialETAFallsBackToDefaultForUnknownClass(t *testing.T) {
	eta := InitialETA(1024*1024*1024, perfmodel.Class("bogus"))
	assert.Greater(t, eta, time.Duration(0))
}

func TestRealTimeETANoHistoryReturnsFalse(t *testing.T) {
	m := New("op1", time.Second, nil, logging.Nop())
	m.SetRemainingBytes(1000)
	_, ok := m.RealTimeETA()
	assert.False(t, ok)
}

func TestRealTimeETAZeroRemainingReturnsFalse(t *testing.T) {
	m := New("op1", time.Second, nil, logging.Nop())
	m.RecordTransferCompletion(1000, 500, time.Now())
	m.SetRemainingBytes(0)
	_, ok := m.RealTimeETA()
	assert.False(t, ok)
}

func TestRealTimeETAWeightsRecentTransfersMoreHeavily(t *testing.T) {
	m := New("op1", time.Second, nil, logging.Nop())
	m.SetRemainingBytes(10000)
	m.RecordTransferCompletion(100, 0, time.Now())  // old, slow
	m.RecordTransferCompletion(1000, 0, time.Now()) // recent, fast

	eta, ok := m.RealTimeETA()
	assert.True(t, ok)

	// with heavier weight on the faster recent transfer, ETA should be
	// closer to 10000/1000=10s than to 10000/100=100s.
	assert.Less(t, eta, 55*time.Second)
}

type fakeSink struct {
	samples []Sample
}

func (f *fakeSink) StoreSample(_ context.Context, s Sample) {
	f.samples = append(f.samples, s)
}

func TestStartStopLifecycle(t *testing.T) {
	sink := &fakeSink{}
	m := New("op1", 20*time.Millisecond, sink, logging.Nop())
	m.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	m.Stop()
	assert.NotEmpty(t, sink.samples)
}
