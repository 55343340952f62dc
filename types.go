package uischeduler

import "github.com/Swind/go-ui-scheduler/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the uischeduler package for most use cases.

// Scheduler is the cooperative priority scheduler.
type Scheduler = core.Scheduler

// Callback is the unit of work.
type Callback = core.Callback

// Priority is one of the five scheduling levels.
type Priority = core.Priority

// TaskTraits carries priority, name, zone and the before-execute hook.
type TaskTraits = core.TaskTraits

// Handle controls a scheduled task.
type Handle = core.Handle

// TaskStatus is the lifecycle state of a task.
type TaskStatus = core.TaskStatus

// Config configures a Scheduler.
type Config = core.Config

// Zone wraps groups of consecutive tasks that share it.
type Zone = core.Zone

// SchedulerStats is a point-in-time snapshot of scheduler state.
type SchedulerStats = core.SchedulerStats

// Priority constants
const (
	PriorityHighest = core.PriorityHighest
	PriorityHigh    = core.PriorityHigh
	PriorityNormal  = core.PriorityNormal
	PriorityLow     = core.PriorityLow
	PriorityLowest  = core.PriorityLowest
)

// Status constants
const (
	StatusPending   = core.StatusPending
	StatusPrepared  = core.StatusPrepared
	StatusExecuting = core.StatusExecuting
	StatusExecuted  = core.StatusExecuted
	StatusAborted   = core.StatusAborted
)

// Convenience functions for creating TaskTraits
var (
	DefaultTaskTraits = core.DefaultTaskTraits
	TraitsHighest     = core.TraitsHighest
	TraitsHigh        = core.TraitsHigh
	TraitsLow         = core.TraitsLow
	TraitsLowest      = core.TraitsLowest
)

// DefaultConfig returns a Config with defaults filled in.
var DefaultConfig = core.DefaultConfig

// GetCurrentScheduler retrieves the running Scheduler from a task context.
var GetCurrentScheduler = core.GetCurrentScheduler
