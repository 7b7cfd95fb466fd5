// Package promexport exposes live operation counters and gauges from the
// metrics store as Prometheus metrics.
package promexport

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector publishes rebalancer-wide counters and gauges. Values are
// pushed by the executor/sysmonitor as an operation progresses; Collector
// itself never queries the store directly, keeping export decoupled from
// storage.
type Collector struct {
	MovesAttempted prometheus.Counter
	MovesSucceeded prometheus.Counter
	MovesFailed    prometheus.Counter
	BytesMoved     prometheus.Counter

	CurrentRateBps  prometheus.Gauge
	ETASeconds      prometheus.Gauge
	CPUPercent      prometheus.Gauge
	MemPercent      prometheus.Gauge
	OperationActive prometheus.Gauge
}

// New constructs and registers a Collector against reg.
func New(reg prometheus.Registerer, namespace string) *Collector {
	c := &Collector{
		MovesAttempted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "moves_attempted_total", Help: "Total unit moves attempted.",
		}),
		MovesSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "moves_succeeded_total", Help: "Total unit moves that completed successfully.",
		}),
		MovesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "moves_failed_total", Help: "Total unit moves that failed.",
		}),
		BytesMoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_moved_total", Help: "Total bytes successfully relocated.",
		}),
		CurrentRateBps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "current_rate_bytes_per_second", Help: "Weighted moving-average transfer rate.",
		}),
		ETASeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "eta_seconds", Help: "Estimated seconds remaining for the active operation.",
		}),
		CPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "host_cpu_percent", Help: "Most recent host CPU utilization sample.",
		}),
		MemPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "host_mem_percent", Help: "Most recent host memory utilization sample.",
		}),
		OperationActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "operation_active", Help: "1 while a rebalance operation is running, else 0.",
		}),
	}

	reg.MustRegister(
		c.MovesAttempted, c.MovesSucceeded, c.MovesFailed, c.BytesMoved,
		c.CurrentRateBps, c.ETASeconds, c.CPUPercent, c.MemPercent, c.OperationActive,
	)
	return c
}
