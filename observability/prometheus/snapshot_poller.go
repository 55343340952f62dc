package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-ui-scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
// core.Scheduler implements it, and its Stats is safe to call from the
// poller goroutine.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// SnapshotPoller periodically exports scheduler Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	queued         *prom.GaugeVec
	scopes         *prom.GaugeVec
	running        *prom.GaugeVec
	performingWork *prom.GaugeVec
	scheduled      *prom.GaugeVec
	executed       *prom.GaugeVec
	aborted        *prom.GaugeVec
	coalesced      *prom.GaugeVec
	hostCallbacks  *prom.GaugeVec

	stateMu sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: DefaultNamespace,
			Name:      name,
			Help:      help,
		}, []string{"scheduler", "strategy"})
	}

	p := &SnapshotPoller{
		interval:       interval,
		schedulers:     make(map[string]SchedulerSnapshotProvider),
		queued:         gauge("scheduler_queued", "Tasks waiting in the heap."),
		scopes:         gauge("scheduler_registered_scopes", "Scopes with an outstanding refresh owner."),
		running:        gauge("scheduler_running", "Host callback loop state (1=armed or running, 0=idle)."),
		performingWork: gauge("scheduler_performing_work", "Work loop state (1=inside a slice, 0=outside)."),
		scheduled:      gauge("scheduler_scheduled_total", "Scheduled task count snapshot."),
		executed:       gauge("scheduler_executed_total", "Executed task count snapshot."),
		aborted:        gauge("scheduler_aborted_total", "Aborted task count snapshot."),
		coalesced:      gauge("scheduler_coalesced_total", "Coalesced refresh request count snapshot."),
		hostCallbacks:  gauge("scheduler_host_callbacks_total", "Host callback count snapshot."),
	}

	var err error
	for _, vec := range []**prom.GaugeVec{
		&p.queued, &p.scopes, &p.running, &p.performingWork,
		&p.scheduled, &p.executed, &p.aborted, &p.coalesced, &p.hostCallbacks,
	} {
		if *vec, err = registerCollector(reg, *vec); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.started {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.started = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.started {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.started = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.schedulersMu.RLock()
	defer p.schedulersMu.RUnlock()

	for name, provider := range p.schedulers {
		stats := provider.Stats()
		strategy := stats.Strategy.String()
		p.queued.WithLabelValues(name, strategy).Set(float64(stats.Queued))
		p.scopes.WithLabelValues(name, strategy).Set(float64(stats.RegisteredScopes))
		p.running.WithLabelValues(name, strategy).Set(boolGauge(stats.Running))
		p.performingWork.WithLabelValues(name, strategy).Set(boolGauge(stats.PerformingWork))
		p.scheduled.WithLabelValues(name, strategy).Set(float64(stats.Scheduled))
		p.executed.WithLabelValues(name, strategy).Set(float64(stats.Executed))
		p.aborted.WithLabelValues(name, strategy).Set(float64(stats.Aborted))
		p.coalesced.WithLabelValues(name, strategy).Set(float64(stats.Coalesced))
		p.hostCallbacks.WithLabelValues(name, strategy).Set(float64(stats.HostCallbacks))
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
