// Package uischeduler provides a cooperative, priority-based task scheduler
// for UI reactivity layers, plus a coalescing registry that collapses many
// "refresh this view" requests into at most one scheduled task per target.
//
// Everything runs on a single host thread. Tasks are ordered by expiration
// time, so higher priorities run first while lower priorities still run once
// they expire. The work loop yields back to the host after a bounded slice
// (about one frame budget) and resumes on the next turn of the loop.
//
// # Quick Start
//
// Initialize the global service at application startup:
//
//	uischeduler.InitGlobalService(nil)
//	defer uischeduler.ShutdownGlobalService()
//
// Schedule work from any goroutine:
//
//	svc := uischeduler.GetGlobalService()
//	svc.Do(func(s *uischeduler.Scheduler) {
//		s.ScheduleCoalescedRefresh(func(ctx context.Context) {
//			// re-render the list view
//		}, uischeduler.PriorityNormal, listView)
//	})
//
// # Key Concepts
//
// Scheduler: the engine. All of its methods must be called from the host
// thread, which is why Service hops onto it with Do and Submit.
//
// Priority: five levels, Highest to Lowest. Highest tasks are already expired
// when scheduled and never yield mid-run.
//
// Coalesced refresh: a dirty task registered under a scope. Further requests
// for the same scope at the same or lower priority are absorbed; a strictly
// higher priority replaces the outstanding task.
//
// DetectNow: runs a scope's refresh synchronously when the current frame is
// allowed to, instead of waiting for the scheduled task.
//
// Hosts: the host package provides a dedicated goroutine host (Thread), a
// go-eventloop adapter (EventLoop) and a deterministic virtual host (Manual)
// for tests.
package uischeduler
