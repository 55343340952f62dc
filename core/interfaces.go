package core

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joeycumines/logiface"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task or hook panics inside a host callback.
//
// Without a PanicHandler the panic propagates to the host after the driver
// has armed the next resumption, so the remaining queue still runs.
type PanicHandler interface {
	// HandlePanic is called with the recovered value and the stack at the
	// time of the panic.
	HandlePanic(ctx context.Context, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler prints the panic to stderr.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stderr.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, panicInfo any, stackTrace []byte) {
	fmt.Fprintf(os.Stderr, "[Scheduler] Panic: %v\nStack trace:\n%s", panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics collects scheduler execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called from the host thread and should be fast.
type Metrics interface {
	// RecordTaskDuration records how long a task body and its listeners took.
	RecordTaskDuration(priority Priority, clean bool, duration time.Duration)

	// RecordTaskPanic records a panic escaping a task or hook.
	RecordTaskPanic(panicInfo any)

	// RecordQueueDepth records the heap length at the end of a slice.
	RecordQueueDepth(depth int)

	// RecordTaskAborted records a task aborted before it executed.
	RecordTaskAborted(priority Priority)

	// RecordRefreshCoalesced records a coalesced refresh request that was
	// absorbed by an existing task.
	RecordRefreshCoalesced(priority Priority)

	// RecordHostCallback records one host callback (slice). yielded is true
	// when the slice ended with work still queued.
	RecordHostCallback(strategy HostStrategy, duration time.Duration, yielded bool)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(priority Priority, clean bool, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(panicInfo any)                                          {}
func (m *NilMetrics) RecordQueueDepth(depth int)                                             {}
func (m *NilMetrics) RecordTaskAborted(priority Priority)                                    {}
func (m *NilMetrics) RecordRefreshCoalesced(priority Priority)                               {}
func (m *NilMetrics) RecordHostCallback(strategy HostStrategy, duration time.Duration, yielded bool) {
}

// =============================================================================
// Config: Configuration for Scheduler
// =============================================================================

// DefaultFrameRate is the target frame rate used to derive the yield interval.
const DefaultFrameRate = 60

// Config holds configuration options for Scheduler.
// All fields are optional; zero values fall back to defaults.
type Config struct {
	// FrameRate derives the yield interval. Defaults to DefaultFrameRate.
	FrameRate int

	// HostStrategy forces a resumption strategy. Defaults to StrategyAuto.
	HostStrategy HostStrategy

	// MacrotaskInterceptor, if set, wraps every message channel arm.
	MacrotaskInterceptor MacrotaskInterceptor

	// Logger receives structured logs. Nil disables logging.
	Logger *logiface.Logger[logiface.Event]

	// Metrics is called to record execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// PanicHandler, if set, swallows panics escaping the work loop.
	PanicHandler PanicHandler

	// Debug enables internal consistency checks on the coalescing registry.
	Debug bool

	// HistoryCapacity bounds the execution history ring buffer.
	HistoryCapacity int

	// OverdueLogRates limits overdue task warnings per priority, as accepted
	// by catrate.NewLimiter. Defaults to DefaultOverdueLogRates.
	OverdueLogRates map[time.Duration]int

	// Context is the parent of the context passed to callbacks.
	Context context.Context
}

// DefaultConfig returns a config with default handlers.
func DefaultConfig() *Config {
	return &Config{
		FrameRate:       DefaultFrameRate,
		HostStrategy:    StrategyAuto,
		Metrics:         &NilMetrics{},
		HistoryCapacity: defaultTaskHistoryCapacity,
		OverdueLogRates: DefaultOverdueLogRates(),
		Context:         context.Background(),
	}
}

// resolve fills in defaults without mutating c.
func (c *Config) resolve() Config {
	out := *DefaultConfig()
	if c == nil {
		return out
	}
	if c.FrameRate > 0 {
		out.FrameRate = c.FrameRate
	}
	out.HostStrategy = c.HostStrategy
	out.MacrotaskInterceptor = c.MacrotaskInterceptor
	out.Logger = c.Logger
	if c.Metrics != nil {
		out.Metrics = c.Metrics
	}
	out.PanicHandler = c.PanicHandler
	out.Debug = c.Debug
	if c.HistoryCapacity > 0 {
		out.HistoryCapacity = c.HistoryCapacity
	}
	if len(c.OverdueLogRates) > 0 {
		out.OverdueLogRates = c.OverdueLogRates
	}
	if c.Context != nil {
		out.Context = c.Context
	}
	return out
}
