package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	TaskID     uint64
	Name       string
	Priority   Priority
	Clean      bool
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	// Overdue is true when the task started after its expiration time.
	Overdue  bool
	Panicked bool
}

// SchedulerStats represents runtime observability state for a scheduler.
type SchedulerStats struct {
	Strategy         HostStrategy
	Queued           int
	RegisteredScopes int
	Running          bool
	PerformingWork   bool
	Scheduled        uint64
	Executed         uint64
	Aborted          uint64
	Coalesced        uint64
	HostCallbacks    uint64
	LastTaskName     string
	LastTaskAt       time.Time
}
