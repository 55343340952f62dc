package uischeduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Swind/go-ui-scheduler/core"
	"github.com/Swind/go-ui-scheduler/host"
)

// ErrServiceStopped is returned once the service's thread has shut down.
var ErrServiceStopped = errors.New("uischeduler: service stopped")

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Name names the host thread. Defaults to "ui".
	Name string

	// Scheduler configures the engine. Nil uses core defaults.
	Scheduler *core.Config

	// ThreadPanicHandler handles panics that escape the scheduler's host
	// callbacks. Nil prints them to stderr.
	ThreadPanicHandler func(panicInfo any, stack []byte)
}

// Service binds a Scheduler to a dedicated host thread so that other
// goroutines can drive it.
type Service struct {
	thread    *host.Thread
	scheduler *core.Scheduler
}

// NewService starts a host thread and creates a scheduler on it.
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg == nil {
		cfg = &ServiceConfig{}
	}
	var opts []host.ThreadOption
	if cfg.Name != "" {
		opts = append(opts, host.WithThreadName(cfg.Name))
	}
	if cfg.ThreadPanicHandler != nil {
		opts = append(opts, host.WithThreadPanicHandler(cfg.ThreadPanicHandler))
	}
	thread := host.NewThread(opts...)

	var (
		scheduler *core.Scheduler
		err       error
	)
	if doErr := thread.Do(context.Background(), func() {
		scheduler, err = core.New(thread, cfg.Scheduler)
	}); doErr != nil {
		thread.Stop()
		return nil, doErr
	}
	if err != nil {
		thread.Stop()
		return nil, fmt.Errorf("uischeduler: create scheduler: %w", err)
	}

	return &Service{thread: thread, scheduler: scheduler}, nil
}

// Scheduler returns the engine. Its methods, other than Stats and
// RecentTasks, must only be called from the service thread.
func (s *Service) Scheduler() *core.Scheduler {
	return s.scheduler
}

// Thread returns the host thread.
func (s *Service) Thread() *host.Thread {
	return s.thread
}

// Do queues fn to run on the service thread without waiting for it.
func (s *Service) Do(fn func(sched *core.Scheduler)) error {
	if fn == nil {
		return nil
	}
	if err := s.thread.Post(func() { fn(s.scheduler) }); err != nil {
		return s.wrap(err)
	}
	return nil
}

// Submit runs fn on the service thread and waits for it to return.
func (s *Service) Submit(ctx context.Context, fn func(sched *core.Scheduler)) error {
	if fn == nil {
		return nil
	}
	return s.wrap(s.thread.Do(ctx, func() { fn(s.scheduler) }))
}

// ScheduleTask schedules cb from any goroutine.
func (s *Service) ScheduleTask(cb core.Callback, priority core.Priority) error {
	return s.Do(func(sched *core.Scheduler) {
		sched.ScheduleTask(cb, priority)
	})
}

// ScheduleCoalescedRefresh schedules a coalesced refresh from any goroutine.
func (s *Service) ScheduleCoalescedRefresh(cb core.Callback, priority core.Priority, scope any) error {
	return s.Do(func(sched *core.Scheduler) {
		sched.ScheduleCoalescedRefresh(cb, priority, scope)
	})
}

// WaitIdle blocks until the scheduler's queue has stayed empty across the
// default number of microtask checkpoints.
func (s *Service) WaitIdle(ctx context.Context) error {
	var idle <-chan struct{}
	if err := s.Submit(ctx, func(sched *core.Scheduler) {
		idle = sched.WhenIdle(0)
	}); err != nil {
		return err
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.thread.Done():
		return ErrServiceStopped
	}
}

// Stats returns a snapshot of scheduler state. Safe from any goroutine.
func (s *Service) Stats() core.SchedulerStats {
	return s.scheduler.Stats()
}

// stopAbortTimeout bounds how long Stop waits to abort queued tasks when the
// thread is busy.
const stopAbortTimeout = time.Second

// Stop aborts queued tasks and stops the host thread, waiting for the
// running macrotask to finish. It must not be called from the service thread.
func (s *Service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), stopAbortTimeout)
	defer cancel()
	_ = s.thread.Do(ctx, s.scheduler.AbortAll)
	s.thread.Stop()
}

// IsRunning reports whether the service thread accepts work.
func (s *Service) IsRunning() bool {
	return !s.thread.IsClosed()
}

func (s *Service) wrap(err error) error {
	if errors.Is(err, host.ErrClosed) {
		return ErrServiceStopped
	}
	return err
}

// =============================================================================
// Global Service Helper (Singleton)
// =============================================================================

var (
	globalService *Service
	globalMu      sync.Mutex
)

// InitGlobalService creates the global service. Repeated calls are no-ops.
func InitGlobalService(cfg *ServiceConfig) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalService != nil {
		return nil // Already initialized
	}

	svc, err := NewService(cfg)
	if err != nil {
		return err
	}
	globalService = svc
	return nil
}

// GetGlobalService returns the global service instance.
// It panics if InitGlobalService has not been called.
func GetGlobalService() *Service {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalService == nil {
		panic("GlobalService not initialized. Call InitGlobalService() first.")
	}
	return globalService
}

// ShutdownGlobalService stops the global service.
func ShutdownGlobalService() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalService != nil {
		globalService.Stop()
		globalService = nil
	}
}
