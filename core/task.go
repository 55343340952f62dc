package core

import (
	"context"
	"time"
)

// Callback is the unit of work. The context carries the scheduler running it,
// see GetCurrentScheduler.
type Callback func(ctx context.Context)

// =============================================================================
// TaskStatus
// =============================================================================

// TaskStatus is the lifecycle state of a scheduled task.
//
//	Pending -> Prepared -> Executing -> Executed
//	Pending/Prepared -> Aborted
type TaskStatus int

const (
	StatusPending TaskStatus = iota
	// StatusPrepared marks the task at the front of the queue, about to run.
	StatusPrepared
	StatusExecuting
	StatusExecuted
	StatusAborted
)

func (s TaskStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPrepared:
		return "prepared"
	case StatusExecuting:
		return "executing"
	case StatusExecuted:
		return "executed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Finished reports whether the status is terminal.
func (s TaskStatus) Finished() bool {
	return s == StatusExecuted || s == StatusAborted
}

// =============================================================================
// Zone
// =============================================================================

// Zone is an execution context wrapper. Run must invoke fn exactly once,
// synchronously. Consecutive tasks sharing a zone run inside a single Run
// call, so implementations must be comparable (pointer types are).
type Zone interface {
	Run(fn func())
}

type noopZone struct{}

func (*noopZone) Run(fn func()) { fn() }

// NoopZone runs fn directly.
var NoopZone Zone = &noopZone{}

// =============================================================================
// task record
// =============================================================================

type task struct {
	sched *Scheduler

	id             uint64
	priority       Priority
	name           string
	startTime      time.Time
	expirationTime time.Time
	status         TaskStatus

	// nil once execution begins or the task is aborted
	callback Callback

	// clean tasks are plain scheduled work, dirty ones are coalescible refreshes
	isClean bool
	zone    Zone

	beforeExecute func()
	onAbort       func()

	onExecuted         listenerQueue
	internalOnExecuted listenerQueue

	// scope this task may consume once via DetectNow while executing
	scopeToHandle    any
	hasScopeToHandle bool

	// registry keys pointing at this task
	ownedScopes []any

	heapIndex int
}

// abort is a no-op unless the task is Pending or Prepared.
func (t *task) abort() {
	if t.status != StatusPending && t.status != StatusPrepared {
		return
	}
	t.status = StatusAborted
	t.callback = nil
	t.hasScopeToHandle = false
	t.scopeToHandle = nil
	if t.sched != nil {
		t.sched.taskAborted(t)
	}
	if fn := t.onAbort; fn != nil {
		t.onAbort = nil
		fn()
	}
}

// drainListeners runs the user queue then the internal queue, repeating until
// a full pass finds both empty.
func (t *task) drainListeners() {
	for t.onExecuted.pending() || t.internalOnExecuted.pending() {
		t.onExecuted.drain()
		t.internalOnExecuted.drain()
	}
}

// listenerQueue is a work list consumed through a cursor, so listeners added
// while draining are still run by the same drain.
type listenerQueue struct {
	fns  []func()
	next int
}

func (q *listenerQueue) push(fn func()) {
	q.fns = append(q.fns, fn)
}

func (q *listenerQueue) pending() bool {
	return q.next < len(q.fns)
}

func (q *listenerQueue) drain() {
	for q.next < len(q.fns) {
		fn := q.fns[q.next]
		q.fns[q.next] = nil
		q.next++
		fn()
	}
	q.fns = q.fns[:0]
	q.next = 0
}

// =============================================================================
// Handle
// =============================================================================

// Handle is returned by the schedule calls. It lets the caller abort the task
// or install an abort callback.
type Handle struct {
	t *task
}

// Abort cancels the task if it has not started executing.
func (h *Handle) Abort() {
	if h == nil || h.t == nil {
		return
	}
	h.t.abort()
}

// SetOnAbort installs fn as the abort callback, replacing any previous one.
// A nil fn clears it.
func (h *Handle) SetOnAbort(fn func()) {
	if h == nil || h.t == nil {
		return
	}
	h.t.onAbort = fn
}

// Status returns the task status. A nil handle, returned for a coalesced
// request, reports StatusAborted: the request never becomes a task.
func (h *Handle) Status() TaskStatus {
	if h == nil || h.t == nil {
		return StatusAborted
	}
	return h.t.status
}

// Priority returns the task priority, or 0 for a nil handle.
func (h *Handle) Priority() Priority {
	if h == nil || h.t == nil {
		return 0
	}
	return h.t.priority
}

// ID returns the task id, or 0 for a nil handle.
func (h *Handle) ID() uint64 {
	if h == nil || h.t == nil {
		return 0
	}
	return h.t.id
}

func (h *Handle) Name() string {
	if h == nil || h.t == nil {
		return ""
	}
	return h.t.name
}

// =============================================================================
// Context Helper
// =============================================================================
type schedulerKeyType struct{}

var schedulerKey schedulerKeyType

// GetCurrentScheduler returns the scheduler that invoked the callback owning
// ctx, or nil.
func GetCurrentScheduler(ctx context.Context) *Scheduler {
	if v := ctx.Value(schedulerKey); v != nil {
		return v.(*Scheduler)
	}
	return nil
}
