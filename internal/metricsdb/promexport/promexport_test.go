package promexport

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRegistersAndUpdates(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, "diskbalancer")

	c.MovesAttempted.Inc()
	c.BytesMoved.Add(1024)
	c.CurrentRateBps.Set(5000)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, metricFamilies)

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "diskbalancer_moves_attempted_total" {
			found = true
			require.Len(t, mf.Metric, 1)
			assert.Equal(t, float64(1), mf.Metric[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}
