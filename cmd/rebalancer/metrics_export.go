package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samestrin/diskbalancer/internal/executor"
	"github.com/samestrin/diskbalancer/internal/metricsdb/promexport"
	"github.com/samestrin/diskbalancer/internal/sysmonitor"
)

// metricsExporter serves a Prometheus registry over HTTP for the duration
// of one rebalance operation, so an operator can watch rate and ETA
// without querying the sqlite store directly.
type metricsExporter struct {
	collector *promexport.Collector
	server    *http.Server
	cancel    context.CancelFunc
	logger    *slog.Logger
}

// startMetricsExporter registers a Collector, serves /metrics on addr, and
// begins polling monitor into its gauges every second. Listen failures are
// logged and otherwise ignored: the exporter is a supplementary view,
// never a requirement for the rebalance to proceed.
func startMetricsExporter(ctx context.Context, addr string, monitor *sysmonitor.Monitor, logger *slog.Logger) *metricsExporter {
	reg := prometheus.NewRegistry()
	collector := promexport.New(reg, "rebalancer")
	collector.OperationActive.Set(1)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	pollCtx, cancel := context.WithCancel(ctx)
	e := &metricsExporter{collector: collector, server: server, cancel: cancel, logger: logger}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics exporter listen failed", "addr", addr, "error", err)
		}
	}()

	go e.poll(pollCtx, monitor)

	return e
}

func (e *metricsExporter) poll(ctx context.Context, monitor *sysmonitor.Monitor) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if eta, ok := monitor.RealTimeETA(); ok {
				e.collector.ETASeconds.Set(eta.Seconds())
			}
		}
	}
}

// recordSummary folds one operation's final Summary into the exporter's
// counters.
func (e *metricsExporter) recordSummary(s executor.Summary) {
	e.collector.MovesAttempted.Add(float64(s.Attempted))
	e.collector.MovesSucceeded.Add(float64(s.Succeeded))
	e.collector.MovesFailed.Add(float64(s.Failed))
}

// stop shuts the exporter's HTTP server down and halts polling.
func (e *metricsExporter) stop() {
	e.collector.OperationActive.Set(0)
	e.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = e.server.Shutdown(ctx)
}
