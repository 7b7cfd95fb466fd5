// Package logging provides the context-carried slog.Logger used throughout
// the rebalancer. There is no process-wide logger singleton: every
// constructor that needs one takes a *slog.Logger explicitly.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type ctxKey struct{}

// Subsystem tags attached to every log line emitted by a component.
const (
	SubsysDiskInv      = "disk-inventory"
	SubsysScanner      = "scanner"
	SubsysPlanner      = "planner"
	SubsysExecutor     = "executor"
	SubsysTransferLog  = "transfer-state"
	SubsysMetrics      = "metrics"
	SubsysMonitor      = "monitor"
	SubsysScheduler    = "scheduler"
	SubsysHostProbe    = "host-probe"
	SubsysHealthCheck  = "health-check"
	SubsysValidate     = "validate"
	SubsysRsync        = "rsync"
)

// New builds the default logger: text handler to w, level configurable.
func New(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

// Nop returns a logger that discards everything, for tests and defaults.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// With attaches a logger to ctx, returning the derived context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or the nop logger if none.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return Nop()
}

// Subsys returns l tagged with the given subsystem, a small convenience
// wrapped around WithGroup-style attribute attachment.
func Subsys(l *slog.Logger, name string) *slog.Logger {
	return l.With(slog.String("subsys", name))
}
