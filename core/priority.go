package core

import "time"

// =============================================================================
// Priority: five discrete scheduling levels
// =============================================================================

// Priority orders tasks. Lower values run first.
type Priority int

const (
	// PriorityHighest tasks are due immediately and never yield to the host
	// while they are running.
	PriorityHighest Priority = iota + 1

	// PriorityHigh is for work the user is waiting on, e.g. input feedback.
	PriorityHigh

	// PriorityNormal is the default priority.
	PriorityNormal

	// PriorityLow is for work that can wait a few frames.
	PriorityLow

	// PriorityLowest tasks never forcibly expire.
	PriorityLowest
)

// Timeouts added to a task's start time to get its expiration time.
const (
	highestPriorityTimeout = -1 * time.Millisecond
	highPriorityTimeout    = 250 * time.Millisecond
	normalPriorityTimeout  = 5000 * time.Millisecond
	lowPriorityTimeout     = 10000 * time.Millisecond

	// maxSigned31BitInt milliseconds, roughly 12 days.
	lowestPriorityTimeout = 1073741823 * time.Millisecond
)

// Valid reports whether p is one of the five defined levels.
func (p Priority) Valid() bool {
	return p >= PriorityHighest && p <= PriorityLowest
}

// normalize maps out-of-range values to PriorityNormal.
func (p Priority) normalize() Priority {
	if !p.Valid() {
		return PriorityNormal
	}
	return p
}

// Timeout returns how long after scheduling a task of this priority is
// considered overdue.
func (p Priority) Timeout() time.Duration {
	switch p.normalize() {
	case PriorityHighest:
		return highestPriorityTimeout
	case PriorityHigh:
		return highPriorityTimeout
	case PriorityLow:
		return lowPriorityTimeout
	case PriorityLowest:
		return lowestPriorityTimeout
	default:
		return normalPriorityTimeout
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityHighest:
		return "highest"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityLowest:
		return "lowest"
	default:
		return "unknown"
	}
}

// =============================================================================
// TaskTraits: per-task scheduling attributes
// =============================================================================

// TaskTraits describes how a task is scheduled.
type TaskTraits struct {
	Priority Priority

	// Name is recorded in the execution history and logs. Optional.
	Name string

	// Zone wraps execution of the callback. Nil means NoopZone.
	Zone Zone

	// BeforeExecute runs immediately before the callback.
	BeforeExecute func()
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{Priority: PriorityNormal}
}

func TraitsHighest() TaskTraits {
	return TaskTraits{Priority: PriorityHighest}
}

func TraitsHigh() TaskTraits {
	return TaskTraits{Priority: PriorityHigh}
}

func TraitsLow() TaskTraits {
	return TaskTraits{Priority: PriorityLow}
}

func TraitsLowest() TaskTraits {
	return TaskTraits{Priority: PriorityLowest}
}
