package core

import "reflect"

// =============================================================================
// Coalescing registry
// =============================================================================
//
// A scope is any comparable value identifying a unit of refresh work, such as
// a component pointer. A scope that is not comparable, such as a slice, cannot
// key the registry and is treated like a nil scope. The registry maps each scope to at most one task that
// will handle it: either a queued refresh scheduled for it, or the running
// dirty task that claimed it through DetectNow.

// ScheduleCoalescedRefresh schedules a dirty task that refreshes scope.
//
// It returns nil without scheduling when an outstanding task for scope
// already covers the request: one of the same or higher priority, or one that
// is about to run or running. An outstanding task of lower priority is
// aborted and replaced. A nil or non-comparable scope disables coalescing.
func (s *Scheduler) ScheduleCoalescedRefresh(cb Callback, priority Priority, scope any) *Handle {
	return s.ScheduleCoalescedRefreshWithTraits(cb, TaskTraits{Priority: priority}, scope)
}

// ScheduleCoalescedRefreshWithTraits is ScheduleCoalescedRefresh with full
// traits.
func (s *Scheduler) ScheduleCoalescedRefreshWithTraits(cb Callback, traits TaskTraits, scope any) *Handle {
	priority := traits.Priority.normalize()
	scope = s.registryKey(scope)

	if scope != nil {
		if existing, ok := s.registry[scope]; ok {
			s.checkEntry(scope, existing)
			if priority >= existing.priority ||
				existing.status == StatusPrepared ||
				existing.status == StatusExecuting {
				s.stats.coalesced.Add(1)
				s.metrics.RecordRefreshCoalesced(priority)
				return nil
			}
			existing.abort()
		}
	}

	traits.Priority = priority
	t := s.schedule(cb, traits, false)
	if scope != nil {
		t.scopeToHandle = scope
		t.hasScopeToHandle = true
		s.register(scope, t)
	}
	return &Handle{t: t}
}

// DetectNow runs work synchronously if the caller is the right place to
// refresh scope, and reports whether it did.
//
// Clean tasks always run work. Otherwise work runs when nothing is
// outstanding for scope, when the caller is the task scheduled for scope and
// has not consumed it yet, or when a queued task for scope can be preempted
// by the running task. In the last case the queued task is aborted. A dirty
// task that runs work becomes the scope's owner until it finishes, which
// absorbs further refresh requests for scope.
func (s *Scheduler) DetectNow(scope any, work func()) bool {
	scope = s.registryKey(scope)
	current := s.executingTask()
	if current != nil && current.isClean {
		work()
		return true
	}

	var existing *task
	ok := false
	if scope != nil {
		existing, ok = s.registry[scope]
	}
	if !ok {
		if current != nil && scope != nil {
			s.register(scope, current)
		}
		work()
		return true
	}
	s.checkEntry(scope, existing)

	switch existing.status {
	case StatusExecuting:
		if existing.hasScopeToHandle && existing.scopeToHandle == scope {
			existing.hasScopeToHandle = false
			existing.scopeToHandle = nil
			work()
			return true
		}
		return false

	case StatusPending:
		if current == nil {
			return false
		}
		existing.abort()
		s.register(scope, current)
		work()
		return true

	default:
		// Prepared: the owner is about to run and will handle it
		return false
	}
}

// registryKey returns scope, or nil when it cannot be a map key.
func (s *Scheduler) registryKey(scope any) any {
	if scope == nil || reflect.ValueOf(scope).Comparable() {
		return scope
	}
	s.log.scopeNotComparable(scope)
	return nil
}

// RegisteredScopes returns the number of scopes with an outstanding task.
func (s *Scheduler) RegisteredScopes() int {
	return len(s.registry)
}

func (s *Scheduler) register(scope any, t *task) {
	s.registry[scope] = t
	t.ownedScopes = append(t.ownedScopes, scope)
	t.internalOnExecuted.push(func() { s.unregister(scope, t) })
	s.syncGauges()
}

// unregister drops scope only while it still points at t.
func (s *Scheduler) unregister(scope any, t *task) {
	if s.registry[scope] == t {
		delete(s.registry, scope)
	}
}

func (s *Scheduler) releaseScopes(t *task) {
	for _, scope := range t.ownedScopes {
		s.unregister(scope, t)
	}
	t.ownedScopes = nil
	s.syncGauges()
}

func (s *Scheduler) checkEntry(scope any, t *task) {
	if s.cfg.Debug && t.status.Finished() {
		panic(internalf("registry entry for scope %v points at %s task %d", scope, t.status, t.id))
	}
}
