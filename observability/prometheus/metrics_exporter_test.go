package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-ui-scheduler/core"
	"github.com/Swind/go-ui-scheduler/host"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("uisched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration(core.PriorityNormal, true, 250*time.Millisecond)
	exporter.RecordTaskPanic("panic")
	exporter.RecordQueueDepth(7)
	exporter.RecordTaskAborted(core.PriorityLow)
	exporter.RecordRefreshCoalesced(core.PriorityHigh)
	exporter.RecordRefreshCoalesced(core.PriorityHigh)
	exporter.RecordHostCallback(core.StrategyImmediate, 3*time.Millisecond, true)
	exporter.RecordHostCallback(core.StrategyImmediate, 1*time.Millisecond, false)

	if got := testutil.ToFloat64(exporter.taskPanicTotal); got != 1 {
		t.Fatalf("panic total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.queueDepth); got != 7 {
		t.Fatalf("queue depth = %v, want 7", got)
	}
	if got := testutil.ToFloat64(exporter.taskAbortedTotal.WithLabelValues("low")); got != 1 {
		t.Fatalf("aborted total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.refreshCoalesced.WithLabelValues("high")); got != 2 {
		t.Fatalf("coalesced total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(exporter.hostCallbackYielded.WithLabelValues("immediate")); got != 1 {
		t.Fatalf("yielded total = %v, want 1", got)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("normal", "clean"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}

	sliceCount, err := histogramSampleCount(exporter.hostCallbackSeconds.WithLabelValues("immediate"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if sliceCount != 2 {
		t.Fatalf("slice sample count = %d, want 2", sliceCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("uisched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("uisched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic(nil)
	second.RecordTaskPanic(nil)

	if got := testutil.ToFloat64(first.taskPanicTotal); got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilSafe(t *testing.T) {
	var exporter *MetricsExporter
	exporter.RecordTaskDuration(core.PriorityHigh, false, time.Millisecond)
	exporter.RecordTaskPanic("x")
	exporter.RecordQueueDepth(1)
	exporter.RecordTaskAborted(core.PriorityHigh)
	exporter.RecordRefreshCoalesced(core.PriorityHigh)
	exporter.RecordHostCallback(core.StrategyTimer, time.Millisecond, true)
}

// TestMetricsExporter_WiredIntoScheduler drives a real scheduler over a
// manual host and reads the exported collectors
func TestMetricsExporter_WiredIntoScheduler(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{Scheduler: "ui"})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	m := host.NewManual()
	s, err := core.New(m, &core.Config{Metrics: exporter})
	if err != nil {
		t.Fatalf("core.New failed: %v", err)
	}

	scope := "list"
	s.ScheduleCoalescedRefresh(func(ctx context.Context) {}, core.PriorityNormal, scope)
	s.ScheduleCoalescedRefresh(func(ctx context.Context) {}, core.PriorityNormal, scope)
	s.ScheduleTask(func(ctx context.Context) {}, core.PriorityLow).Abort()
	m.Flush(0)

	if got := testutil.ToFloat64(exporter.refreshCoalesced.WithLabelValues("normal")); got != 1 {
		t.Fatalf("coalesced = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.taskAbortedTotal.WithLabelValues("low")); got != 1 {
		t.Fatalf("aborted = %v, want 1", got)
	}
	count, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("normal", "refresh"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("refresh duration samples = %d, want 1", count)
	}
	if got := testutil.ToFloat64(exporter.queueDepth); got != 0 {
		t.Fatalf("queue depth = %v, want 0", got)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
