package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-ui-scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every collector when no namespace is given.
const DefaultNamespace = "uisched"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64

	// SliceBuckets are used for host callback durations. Slices are short,
	// so the defaults are finer than DurationBuckets.
	SliceBuckets []float64

	// Scheduler, if set, is added as a constant "scheduler" label.
	Scheduler string
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      prom.Counter
	taskAbortedTotal    *prom.CounterVec
	refreshCoalesced    *prom.CounterVec
	hostCallbackSeconds *prom.HistogramVec
	hostCallbackYielded *prom.CounterVec
	queueDepth          prom.Gauge
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}
	sliceBuckets := opts.SliceBuckets
	if len(sliceBuckets) == 0 {
		sliceBuckets = prom.ExponentialBuckets(0.0005, 2, 10)
	}
	var constLabels prom.Labels
	if opts.Scheduler != "" {
		constLabels = prom.Labels{"scheduler": opts.Scheduler}
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace:   namespace,
		Name:        "task_duration_seconds",
		Help:        "Task execution duration in seconds, including listeners.",
		Buckets:     buckets,
		ConstLabels: constLabels,
	}, []string{"priority", "kind"})
	panicCounter := prom.NewCounter(prom.CounterOpts{
		Namespace:   namespace,
		Name:        "task_panic_total",
		Help:        "Total number of panics escaping the work loop.",
		ConstLabels: constLabels,
	})
	abortedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace:   namespace,
		Name:        "task_aborted_total",
		Help:        "Total number of tasks aborted before they ran.",
		ConstLabels: constLabels,
	}, []string{"priority"})
	coalescedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace:   namespace,
		Name:        "refresh_coalesced_total",
		Help:        "Total number of refresh requests absorbed by an outstanding task.",
		ConstLabels: constLabels,
	}, []string{"priority"})
	sliceVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace:   namespace,
		Name:        "host_callback_duration_seconds",
		Help:        "Duration of each host callback (slice) in seconds.",
		Buckets:     sliceBuckets,
		ConstLabels: constLabels,
	}, []string{"strategy"})
	yieldedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace:   namespace,
		Name:        "host_callback_yielded_total",
		Help:        "Total number of slices that ended with work still queued.",
		ConstLabels: constLabels,
	}, []string{"strategy"})
	queueDepthGauge := prom.NewGauge(prom.GaugeOpts{
		Namespace:   namespace,
		Name:        "queue_depth",
		Help:        "Queue depth at the end of the last slice.",
		ConstLabels: constLabels,
	})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicCounter, err = registerCollector(reg, panicCounter); err != nil {
		return nil, err
	}
	if abortedVec, err = registerCollector(reg, abortedVec); err != nil {
		return nil, err
	}
	if coalescedVec, err = registerCollector(reg, coalescedVec); err != nil {
		return nil, err
	}
	if sliceVec, err = registerCollector(reg, sliceVec); err != nil {
		return nil, err
	}
	if yieldedVec, err = registerCollector(reg, yieldedVec); err != nil {
		return nil, err
	}
	if queueDepthGauge, err = registerCollector(reg, queueDepthGauge); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicCounter,
		taskAbortedTotal:    abortedVec,
		refreshCoalesced:    coalescedVec,
		hostCallbackSeconds: sliceVec,
		hostCallbackYielded: yieldedVec,
		queueDepth:          queueDepthGauge,
	}, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(priority core.Priority, clean bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(priority.String(), kindLabel(clean)).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *MetricsExporter) RecordTaskAborted(priority core.Priority) {
	if m == nil {
		return
	}
	m.taskAbortedTotal.WithLabelValues(priority.String()).Inc()
}

func (m *MetricsExporter) RecordRefreshCoalesced(priority core.Priority) {
	if m == nil {
		return
	}
	m.refreshCoalesced.WithLabelValues(priority.String()).Inc()
}

// RecordHostCallback records slice duration, and counts slices that yielded.
func (m *MetricsExporter) RecordHostCallback(strategy core.HostStrategy, duration time.Duration, yielded bool) {
	if m == nil {
		return
	}
	label := strategy.String()
	m.hostCallbackSeconds.WithLabelValues(label).Observe(duration.Seconds())
	if yielded {
		m.hostCallbackYielded.WithLabelValues(label).Inc()
	}
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func kindLabel(clean bool) string {
	if clean {
		return "clean"
	}
	return "refresh"
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
