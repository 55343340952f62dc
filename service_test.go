package uischeduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Swind/go-ui-scheduler/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, cfg *ServiceConfig) *Service {
	t.Helper()
	svc, err := NewService(cfg)
	require.NoError(t, err)
	t.Cleanup(svc.Stop)
	return svc
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestService_Lifecycle(t *testing.T) {
	svc, err := NewService(&ServiceConfig{Name: "test-ui"})
	require.NoError(t, err)

	assert.True(t, svc.IsRunning())
	assert.Equal(t, "test-ui", svc.Thread().Name())
	assert.Equal(t, core.StrategyMessageChannel, svc.Scheduler().Strategy())

	svc.Stop()
	assert.False(t, svc.IsRunning())

	err = svc.Do(func(s *core.Scheduler) {})
	assert.ErrorIs(t, err, ErrServiceStopped)
	err = svc.Submit(context.Background(), func(s *core.Scheduler) {})
	assert.ErrorIs(t, err, ErrServiceStopped)
}

// TestService_PriorityOrder verifies tasks scheduled in one macrotask run by priority
// Given: A running service
// When: Lowest, Highest and Normal tasks are scheduled together
// Then: They run Highest, Normal, Lowest
func TestService_PriorityOrder(t *testing.T) {
	// Arrange
	svc := newTestService(t, nil)
	ctx := testContext(t)
	var mu sync.Mutex
	var order []core.Priority
	record := func(p core.Priority) core.Callback {
		return func(ctx context.Context) {
			mu.Lock()
			order = append(order, p)
			mu.Unlock()
		}
	}

	// Act
	err := svc.Submit(ctx, func(s *core.Scheduler) {
		s.ScheduleTask(record(core.PriorityLowest), core.PriorityLowest)
		s.ScheduleTask(record(core.PriorityHighest), core.PriorityHighest)
		s.ScheduleTask(record(core.PriorityNormal), core.PriorityNormal)
	})
	require.NoError(t, err)
	require.NoError(t, svc.WaitIdle(ctx))

	// Assert
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []core.Priority{core.PriorityHighest, core.PriorityNormal, core.PriorityLowest}, order)
}

// TestService_CoalescesAcrossGoroutines verifies refreshes posted from many
// goroutines in one burst collapse into a single execution
func TestService_CoalescesAcrossGoroutines(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := testContext(t)
	var runs atomic.Int32
	scope := new(int)

	// hold the thread so every request lands before the refresh can run
	release := make(chan struct{})
	require.NoError(t, svc.Do(func(s *core.Scheduler) { <-release }))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.ScheduleCoalescedRefresh(func(ctx context.Context) {
				runs.Add(1)
			}, core.PriorityNormal, scope)
		}()
	}
	wg.Wait()
	close(release)

	require.NoError(t, svc.WaitIdle(ctx))
	assert.Equal(t, int32(1), runs.Load())

	stats := svc.Stats()
	assert.Equal(t, uint64(1), stats.Executed)
	assert.Equal(t, uint64(19), stats.Coalesced)
	assert.Zero(t, stats.RegisteredScopes)
}

// TestService_TasksRunOnServiceThread verifies task callbacks see the
// scheduler in their context and are in a clean task context
func TestService_TasksRunOnServiceThread(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := testContext(t)
	var (
		gotScheduler *core.Scheduler
		inClean      bool
	)

	require.NoError(t, svc.ScheduleTask(func(ctx context.Context) {
		gotScheduler = core.GetCurrentScheduler(ctx)
		inClean = gotScheduler.IsInCleanTaskContext()
	}, core.PriorityHigh))
	require.NoError(t, svc.WaitIdle(ctx))

	// WaitIdle happens after the task on the same thread
	assert.Same(t, svc.Scheduler(), gotScheduler)
	assert.True(t, inClean)
}

func TestService_WaitIdle_ContextCanceled(t *testing.T) {
	svc := newTestService(t, nil)
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, svc.Do(func(s *core.Scheduler) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := svc.WaitIdle(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_PanicHandler(t *testing.T) {
	handler := &recordingHandler{}
	svc := newTestService(t, &ServiceConfig{
		Scheduler: &core.Config{PanicHandler: handler},
	})
	ctx := testContext(t)
	var after atomic.Bool

	require.NoError(t, svc.Submit(ctx, func(s *core.Scheduler) {
		s.ScheduleTask(func(ctx context.Context) { panic("boom") }, core.PriorityHigh)
		s.ScheduleTask(func(ctx context.Context) { after.Store(true) }, core.PriorityLow)
	}))
	require.NoError(t, svc.WaitIdle(ctx))

	assert.True(t, after.Load())
	assert.Equal(t, []any{"boom"}, handler.get())
}

func TestGlobalService(t *testing.T) {
	require.NoError(t, InitGlobalService(nil))
	first := GetGlobalService()
	require.NoError(t, InitGlobalService(nil))
	assert.Same(t, first, GetGlobalService())

	ShutdownGlobalService()
	assert.False(t, first.IsRunning())
	assert.Panics(t, func() { GetGlobalService() })
}

type recordingHandler struct {
	mu     sync.Mutex
	panics []any
}

func (h *recordingHandler) HandlePanic(ctx context.Context, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.panics = append(h.panics, panicInfo)
}

func (h *recordingHandler) get() []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]any(nil), h.panics...)
}
