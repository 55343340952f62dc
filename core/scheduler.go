package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrZoneSkipped is the panic value raised when a Zone returns without
// running the task it was given.
var ErrZoneSkipped = errors.New("scheduler: zone did not run the task")

// Scheduler is a cooperative, priority-based task scheduler bound to a
// single Host. All methods must be called from the host thread; Stats and
// RecentTasks are the exception and may be read from any goroutine.
type Scheduler struct {
	host    Host
	cfg     Config
	ctx     context.Context
	log     *schedLogger
	metrics Metrics
	history *executionHistory

	queue  *taskQueue
	nextID uint64

	currentTask             *task
	currentPriority         Priority
	isPerformingWork        bool
	isHostCallbackScheduled bool

	// host callback driver
	strategy                         HostStrategy
	schedulePerformWorkUntilDeadline func() error
	scheduledHostCallback            func(hasTimeRemaining bool, initialTime time.Time) bool
	isMessageLoopRunning             bool
	sliceStart                       time.Time
	yieldInterval                    time.Duration
	needsPaint                       bool

	idleResolvers []func()
	onIdle        func()

	// coalescing registry, scope -> outstanding task
	registry map[any]*task

	stats schedulerCounters
}

// schedulerCounters mirrors host-thread state for readers on other goroutines.
type schedulerCounters struct {
	queued         atomic.Int64
	registered     atomic.Int64
	running        atomic.Bool
	performingWork atomic.Bool
	scheduled      atomic.Uint64
	executed       atomic.Uint64
	aborted        atomic.Uint64
	coalesced      atomic.Uint64
	hostCallbacks  atomic.Uint64
}

// New creates a Scheduler bound to host. The host callback strategy is
// selected once, here.
func New(host Host, config *Config) (*Scheduler, error) {
	if host == nil {
		return nil, ErrNilHost
	}
	cfg := config.resolve()

	s := &Scheduler{
		host:            host,
		cfg:             cfg,
		log:             newSchedLogger(cfg.Logger, cfg.OverdueLogRates),
		metrics:         cfg.Metrics,
		history:         newExecutionHistory(cfg.HistoryCapacity),
		queue:           newTaskQueue(),
		currentPriority: PriorityNormal,
		yieldInterval:   yieldIntervalFor(cfg.FrameRate),
		onIdle:          func() {},
		registry:        make(map[any]*task),
	}
	s.ctx = context.WithValue(cfg.Context, schedulerKey, s)

	if err := s.selectStrategy(cfg.HostStrategy, cfg.MacrotaskInterceptor); err != nil {
		return nil, err
	}
	s.log.strategySelected(s.strategy, s.yieldInterval)

	return s, nil
}

// =============================================================================
// Scheduling
// =============================================================================

// ScheduleTask schedules a clean task at the given priority.
func (s *Scheduler) ScheduleTask(cb Callback, priority Priority) *Handle {
	return s.ScheduleTaskWithTraits(cb, TaskTraits{Priority: priority})
}

// ScheduleTaskWithTraits schedules a clean task.
func (s *Scheduler) ScheduleTaskWithTraits(cb Callback, traits TaskTraits) *Handle {
	return &Handle{t: s.schedule(cb, traits, true)}
}

func (s *Scheduler) schedule(cb Callback, traits TaskTraits, clean bool) *task {
	if cb == nil {
		cb = func(context.Context) {}
	}
	priority := traits.Priority.normalize()
	zone := traits.Zone
	if zone == nil {
		zone = NoopZone
	}
	now := s.host.Now()

	s.nextID++
	t := &task{
		sched:          s,
		id:             s.nextID,
		priority:       priority,
		name:           resolveTaskName(cb, traits.Name),
		startTime:      now,
		expirationTime: now.Add(priority.Timeout()),
		status:         StatusPending,
		callback:       cb,
		isClean:        clean,
		zone:           zone,
		beforeExecute:  traits.BeforeExecute,
		heapIndex:      -1,
	}
	s.queue.push(t)
	s.stats.scheduled.Add(1)

	if !s.isHostCallbackScheduled && !s.isPerformingWork {
		s.isHostCallbackScheduled = true
		s.requestHostCallback(s.flushWork)
	}
	s.syncGauges()
	return t
}

// taskAborted is called by task.abort after the status flip. The node leaves
// the heap right away, so a later schedule for the same scope never shares the
// queue with it.
func (s *Scheduler) taskAborted(t *task) {
	s.queue.remove(t)
	s.releaseScopes(t)
	s.stats.aborted.Add(1)
	s.metrics.RecordTaskAborted(t.priority)
	s.syncGauges()
}

// AbortAll aborts every queued task that has not started executing.
func (s *Scheduler) AbortAll() {
	pending := make([]*task, len(s.queue.items))
	copy(pending, s.queue.items)
	for _, t := range pending {
		t.abort()
	}
	if s.currentTask == nil {
		s.queue.clear()
	}
	s.syncGauges()
}

// =============================================================================
// Work loop
// =============================================================================

func (s *Scheduler) flushWork(hasTimeRemaining bool, initialTime time.Time) bool {
	s.isHostCallbackScheduled = false
	s.isPerformingWork = true
	s.stats.performingWork.Store(true)
	previousPriority := s.currentPriority
	defer func() {
		s.currentTask = nil
		s.currentPriority = previousPriority
		s.isPerformingWork = false
		s.stats.performingWork.Store(false)
	}()
	return s.workLoop(hasTimeRemaining, initialTime)
}

func (s *Scheduler) workLoop(hasTimeRemaining bool, initialTime time.Time) bool {
	currentTime := initialTime
	s.currentTask = s.advance()

	// Overdue tasks never hit the deadline, so they run even when the slice
	// is exhausted.
	hitDeadline := func() bool {
		t := s.currentTask
		return t != nil &&
			t.expirationTime.After(currentTime) &&
			(!hasTimeRemaining || s.shouldYieldToHost())
	}

	for s.currentTask != nil && !hitDeadline() {
		zone := s.currentTask.zone
		entered := false
		zone.Run(func() {
			entered = true
			for s.currentTask != nil && s.currentTask.zone == zone {
				if hitDeadline() {
					return
				}
				t := s.currentTask
				if t.callback != nil {
					s.runTask(t, currentTime)
					currentTime = s.host.Now()
				} else {
					s.queue.remove(t)
				}
				s.currentTask = s.advance()
			}
		})
		if !entered {
			panic(fmt.Errorf("%w: %T", ErrZoneSkipped, zone))
		}
	}

	// yielding: the front task is no longer about to run
	if t := s.currentTask; t != nil && t.status == StatusPrepared {
		t.status = StatusPending
	}
	return s.queue.Len() > 0
}

// advance returns the front task, dropping any whose callback was cleared,
// and promotes it to Prepared.
func (s *Scheduler) advance() *task {
	for {
		t := s.queue.peek()
		if t == nil {
			return nil
		}
		if t.callback == nil {
			s.queue.pop()
			continue
		}
		if t.status == StatusPending {
			t.status = StatusPrepared
		}
		return t
	}
}

func (s *Scheduler) runTask(t *task, currentTime time.Time) {
	s.queue.remove(t)

	cb := t.callback
	t.callback = nil
	t.status = StatusExecuting
	s.currentPriority = t.priority

	overdue := !t.expirationTime.After(currentTime)
	if overdue && t.priority != PriorityHighest {
		s.log.overdueTask(t, currentTime.Sub(t.expirationTime))
	}

	startedAt := s.host.Now()
	panicked := true
	defer func() {
		defer func() {
			t.status = StatusExecuted
			t.hasScopeToHandle = false
			t.scopeToHandle = nil
			s.releaseScopes(t)

			finishedAt := s.host.Now()
			duration := finishedAt.Sub(startedAt)
			s.history.Add(TaskExecutionRecord{
				TaskID:     t.id,
				Name:       t.name,
				Priority:   t.priority,
				Clean:      t.isClean,
				StartedAt:  startedAt,
				FinishedAt: finishedAt,
				Duration:   duration,
				Overdue:    overdue,
				Panicked:   panicked,
			})
			s.stats.executed.Add(1)
			s.metrics.RecordTaskDuration(t.priority, t.isClean, duration)
		}()
		t.drainListeners()
	}()

	if t.beforeExecute != nil {
		t.beforeExecute()
	}
	cb(s.ctx)
	panicked = false
}

// =============================================================================
// Task context
// =============================================================================

// executingTask returns the task whose body or listeners are on the stack.
func (s *Scheduler) executingTask() *task {
	if t := s.currentTask; t != nil && t.status == StatusExecuting {
		return t
	}
	return nil
}

// IsInTaskContext reports whether the caller runs inside a task.
func (s *Scheduler) IsInTaskContext() bool {
	return s.executingTask() != nil
}

// IsInCleanTaskContext reports whether the caller runs inside a plain task.
func (s *Scheduler) IsInCleanTaskContext() bool {
	t := s.executingTask()
	return t != nil && t.isClean
}

// IsInDirtyTaskContext reports whether the caller runs inside a coalescible
// refresh task.
func (s *Scheduler) IsInDirtyTaskContext() bool {
	t := s.executingTask()
	return t != nil && !t.isClean
}

func (s *Scheduler) AssertInTaskContext() error {
	if !s.IsInTaskContext() {
		return fmt.Errorf("%w: this operation may only be called from a scheduled task", ErrNotInTaskContext)
	}
	return nil
}

func (s *Scheduler) AssertInCleanTaskContext() error {
	if !s.IsInCleanTaskContext() {
		return fmt.Errorf("%w: this operation may only be called from a task scheduled with ScheduleTask", ErrNotInCleanTaskContext)
	}
	return nil
}

func (s *Scheduler) AssertInDirtyTaskContext() error {
	if !s.IsInDirtyTaskContext() {
		return fmt.Errorf("%w: this operation may only be called from a task scheduled with ScheduleCoalescedRefresh", ErrNotInDirtyTaskContext)
	}
	return nil
}

// OnTaskExecuted queues listener to run after the current task body.
// Listeners run in FIFO order and may queue further listeners.
func (s *Scheduler) OnTaskExecuted(listener func()) error {
	t := s.executingTask()
	if t == nil {
		return fmt.Errorf("%w: OnTaskExecuted called outside of a task", ErrNotInTaskContext)
	}
	if listener != nil {
		t.onExecuted.push(listener)
	}
	return nil
}

// CurrentPriority returns the priority of the running task, or of the last
// one when called outside a task.
func (s *Scheduler) CurrentPriority() Priority {
	return s.currentPriority
}

// =============================================================================
// Queue introspection
// =============================================================================

func (s *Scheduler) IsQueueEmpty() bool {
	return s.queue.Len() == 0
}

// QueueLength counts queued tasks. Aborted tasks leave the heap at abort time.
func (s *Scheduler) QueueLength() int {
	return s.queue.Len()
}

// Strategy returns the host callback strategy selected by New.
func (s *Scheduler) Strategy() HostStrategy {
	return s.strategy
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	stats := SchedulerStats{
		Strategy:         s.strategy,
		Queued:           int(s.stats.queued.Load()),
		RegisteredScopes: int(s.stats.registered.Load()),
		Running:          s.stats.running.Load(),
		PerformingWork:   s.stats.performingWork.Load(),
		Scheduled:        s.stats.scheduled.Load(),
		Executed:         s.stats.executed.Load(),
		Aborted:          s.stats.aborted.Load(),
		Coalesced:        s.stats.coalesced.Load(),
		HostCallbacks:    s.stats.hostCallbacks.Load(),
	}
	if last, ok := s.history.Last(); ok {
		stats.LastTaskName = last.Name
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}

// RecentTasks returns up to limit execution records, newest first.
func (s *Scheduler) RecentTasks(limit int) []TaskExecutionRecord {
	return s.history.Recent(limit)
}

func (s *Scheduler) syncGauges() {
	s.stats.queued.Store(int64(s.queue.Len()))
	s.stats.registered.Store(int64(len(s.registry)))
	s.stats.running.Store(s.isMessageLoopRunning)
}
