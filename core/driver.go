package core

import (
	"fmt"
	"runtime/debug"
	"time"
)

const (
	// minYieldInterval bounds how short a slice may be.
	minYieldInterval = 5 * time.Millisecond
	// frameOverhead is the part of each frame left to the host for layout
	// and paint.
	frameOverhead = 6 * time.Millisecond
)

func yieldIntervalFor(frameRate int) time.Duration {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	d := time.Second/time.Duration(frameRate) - frameOverhead
	if d < minYieldInterval {
		d = minYieldInterval
	}
	return d
}

// SetFrameRate recomputes the slice length for a new target frame rate.
// Values <= 0 restore the default.
func (s *Scheduler) SetFrameRate(fps int) {
	s.yieldInterval = yieldIntervalFor(fps)
}

// YieldInterval returns the current slice length.
func (s *Scheduler) YieldInterval() time.Duration {
	return s.yieldInterval
}

// RequestPaint asks the scheduler to yield at the next opportunity. The flag
// is cleared after every host callback.
func (s *Scheduler) RequestPaint() {
	s.needsPaint = true
}

func (s *Scheduler) shouldYieldToHost() bool {
	if s.needsPaint {
		return true
	}
	return s.host.Now().Sub(s.sliceStart) >= s.yieldInterval
}

// selectStrategy binds schedulePerformWorkUntilDeadline to the best primitive
// the host offers, or to the forced strategy.
func (s *Scheduler) selectStrategy(forced HostStrategy, interceptor MacrotaskInterceptor) error {
	immediate, hasImmediate := s.host.(ImmediateHost)
	channel, hasChannel := s.host.(MessageChannelHost)

	strategy := forced
	if strategy == StrategyAuto {
		switch {
		case hasImmediate:
			strategy = StrategyImmediate
		case hasChannel:
			strategy = StrategyMessageChannel
		default:
			strategy = StrategyTimer
		}
	}

	switch strategy {
	case StrategyImmediate:
		if !hasImmediate {
			return fmt.Errorf("%w: %s: host %T has no SetImmediate", ErrUnsupportedStrategy, strategy, s.host)
		}
		s.schedulePerformWorkUntilDeadline = func() error {
			return immediate.SetImmediate(s.performWorkUntilDeadline)
		}

	case StrategyMessageChannel:
		if !hasChannel {
			return fmt.Errorf("%w: %s: host %T has no message channels", ErrUnsupportedStrategy, strategy, s.host)
		}
		post, err := channel.NewMessageChannel(s.performWorkUntilDeadline)
		if err != nil {
			return fmt.Errorf("scheduler: create message channel: %w", err)
		}
		if interceptor != nil {
			s.schedulePerformWorkUntilDeadline = func() (err error) {
				interceptor.InterceptMacrotask(interceptSource, func() {
					err = post()
				})
				return err
			}
		} else {
			s.schedulePerformWorkUntilDeadline = post
		}

	case StrategyTimer:
		s.schedulePerformWorkUntilDeadline = func() error {
			return s.host.SetTimeout(s.performWorkUntilDeadline, 0)
		}

	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedStrategy, strategy)
	}

	s.strategy = strategy
	return nil
}

func (s *Scheduler) requestHostCallback(cb func(hasTimeRemaining bool, initialTime time.Time) bool) {
	s.scheduledHostCallback = cb
	if !s.isMessageLoopRunning {
		s.isMessageLoopRunning = true
		s.arm()
	}
}

// arm posts one performWorkUntilDeadline to the host. On failure the loop is
// stopped so the next scheduled task retries.
func (s *Scheduler) arm() {
	if err := s.schedulePerformWorkUntilDeadline(); err != nil {
		s.log.armFailed(s.strategy, err)
		s.isMessageLoopRunning = false
		s.isHostCallbackScheduled = false
	}
}

// performWorkUntilDeadline is the host callback. It runs one slice of work
// and then either re-arms itself or goes idle.
func (s *Scheduler) performWorkUntilDeadline() {
	s.stats.hostCallbacks.Add(1)

	if s.scheduledHostCallback == nil {
		s.isMessageLoopRunning = false
		s.needsPaint = false
		s.syncGauges()
		return
	}

	currentTime := s.host.Now()
	s.sliceStart = currentTime

	hasMoreWork := true
	defer func() {
		s.needsPaint = false

		r := recover()
		var stack []byte
		if r != nil {
			stack = debug.Stack()
			s.metrics.RecordTaskPanic(r)
			s.log.taskPanicked(r, s.cfg.PanicHandler != nil)
			hasMoreWork = s.queue.Len() > 0
		}

		elapsed := s.host.Now().Sub(s.sliceStart)
		if hasMoreWork {
			s.log.sliceYielded(elapsed, s.queue.Len())
			s.arm()
		} else {
			s.isMessageLoopRunning = false
			s.scheduledHostCallback = nil
		}
		s.metrics.RecordHostCallback(s.strategy, elapsed, hasMoreWork)
		s.metrics.RecordQueueDepth(s.queue.Len())
		s.syncGauges()

		if !hasMoreWork {
			s.drainIdle()
		}

		if r != nil {
			if s.cfg.PanicHandler == nil {
				panic(r)
			}
			s.cfg.PanicHandler.HandlePanic(s.ctx, r, stack)
		}
	}()

	hasMoreWork = s.scheduledHostCallback(true, currentTime)
}
