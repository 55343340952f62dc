package core

import "time"

// =============================================================================
// Host: the event loop the scheduler is embedded in
// =============================================================================

// Host is the minimal event loop contract. All methods are called from the
// host's own thread.
type Host interface {
	// Now returns the host clock.
	Now() time.Time

	// SetTimeout runs fn as a macrotask after delay.
	SetTimeout(fn func(), delay time.Duration) error

	// QueueMicrotask runs fn at the next microtask checkpoint.
	QueueMicrotask(fn func()) error
}

// ImmediateHost offers a native immediate callback that runs on the next
// turn of the loop without a timer.
type ImmediateHost interface {
	Host
	SetImmediate(fn func()) error
}

// MessageChannelHost can create a dedicated message channel used purely as a
// macrotask trigger. Each call to the returned post function queues one
// onMessage macrotask.
type MessageChannelHost interface {
	Host
	NewMessageChannel(onMessage func()) (post func() error, err error)
}

// MacrotaskInterceptor is given visibility into every resumption armed over a
// message channel. It must call schedule exactly once.
type MacrotaskInterceptor interface {
	InterceptMacrotask(source string, schedule func())
}

// HostStrategy selects how the driver resumes the work loop.
type HostStrategy int

const (
	// StrategyAuto picks the best strategy the host supports:
	// immediate, then message channel, then timer.
	StrategyAuto HostStrategy = iota
	StrategyImmediate
	StrategyMessageChannel
	StrategyTimer
)

func (s HostStrategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategyImmediate:
		return "immediate"
	case StrategyMessageChannel:
		return "message_channel"
	case StrategyTimer:
		return "timer"
	default:
		return "unknown"
	}
}

// interceptSource is the source name passed to MacrotaskInterceptor.
const interceptSource = "scheduler.performWorkUntilDeadline"
