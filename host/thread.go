package host

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Thread binds a dedicated goroutine that runs macrotasks sequentially, with
// a microtask checkpoint after each one. Everything a scheduler bound to it
// does happens on that goroutine (thread affinity).
//
// Thread offers message channels but no immediate primitive, so a scheduler
// bound to it resumes over a message channel.
//
// Post and the lifecycle methods are safe for concurrent use. QueueMicrotask,
// SetTimeout and the message channel are meant for the loop goroutine, but
// tolerate other callers.
type Thread struct {
	mu         sync.Mutex
	macrotasks []func()
	microtasks []func()
	wake       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	// For graceful shutdown
	stopped      chan struct{}
	once         sync.Once
	closed       atomic.Bool
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	name         string
	panicHandler func(panicInfo any, stack []byte)
	executed     atomic.Uint64
}

// ThreadOption configures a Thread.
type ThreadOption func(*Thread)

// WithThreadName names the thread, for logs.
func WithThreadName(name string) ThreadOption {
	return func(t *Thread) { t.name = name }
}

// WithThreadPanicHandler handles panics escaping macrotasks and microtasks.
// The default prints them to stderr and keeps the loop running.
func WithThreadPanicHandler(fn func(panicInfo any, stack []byte)) ThreadOption {
	return func(t *Thread) {
		if fn != nil {
			t.panicHandler = fn
		}
	}
}

// NewThread creates and starts a Thread. It immediately spawns the dedicated
// goroutine.
func NewThread(opts ...ThreadOption) *Thread {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Thread{
		wake:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
		shutdownChan: make(chan struct{}),
		name:         "ui",
	}
	t.panicHandler = t.defaultPanicHandler
	for _, opt := range opts {
		opt(t)
	}

	go t.runLoop()

	return t
}

func (t *Thread) defaultPanicHandler(panicInfo any, stack []byte) {
	fmt.Fprintf(os.Stderr, "[Thread %s] Panic: %v\nStack trace:\n%s", t.name, panicInfo, stack)
}

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// Now returns the wall clock.
func (t *Thread) Now() time.Time { return time.Now() }

// Executed returns the number of macrotasks run so far.
func (t *Thread) Executed() uint64 { return t.executed.Load() }

// Post queues fn as a macrotask. It is the entry point for other goroutines.
func (t *Thread) Post(fn func()) error {
	if fn == nil {
		return fmt.Errorf("host: nil callback")
	}
	if t.closed.Load() {
		return ErrClosed
	}
	t.mu.Lock()
	t.macrotasks = append(t.macrotasks, fn)
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

// SetTimeout posts fn after delay. Timers use time.AfterFunc and inject the
// callback back into the loop.
func (t *Thread) SetTimeout(fn func(), delay time.Duration) error {
	if fn == nil {
		return fmt.Errorf("host: nil callback")
	}
	if t.closed.Load() {
		return ErrClosed
	}
	if delay <= 0 {
		return t.Post(fn)
	}
	time.AfterFunc(delay, func() {
		_ = t.Post(fn)
	})
	return nil
}

// QueueMicrotask queues fn for the checkpoint after the current macrotask.
func (t *Thread) QueueMicrotask(fn func()) error {
	if fn == nil {
		return fmt.Errorf("host: nil callback")
	}
	if t.closed.Load() {
		return ErrClosed
	}
	t.mu.Lock()
	t.microtasks = append(t.microtasks, fn)
	t.mu.Unlock()

	// a microtask queued from outside the loop still needs a checkpoint
	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

// NewMessageChannel returns a post function queueing onMessage as a
// macrotask on every call.
func (t *Thread) NewMessageChannel(onMessage func()) (func() error, error) {
	if onMessage == nil {
		return nil, fmt.Errorf("host: nil callback")
	}
	return func() error { return t.Post(onMessage) }, nil
}

// Shutdown marks the thread as closed and signals shutdown waiters.
// Unlike Stop, it does not wait for the loop, so it may be called from a
// macrotask.
func (t *Thread) Shutdown() {
	t.shutdownOnce.Do(func() {
		t.closed.Store(true)
		t.cancel()
		close(t.shutdownChan)
	})
}

// IsClosed returns true once Shutdown or Stop has been called.
func (t *Thread) IsClosed() bool {
	return t.closed.Load()
}

// Stop shuts the thread down and waits for the running macrotask to finish.
// It must not be called from the loop goroutine.
func (t *Thread) Stop() {
	t.once.Do(func() {
		t.Shutdown()
		<-t.stopped
	})
}

// Done is closed once the loop goroutine has exited.
func (t *Thread) Done() <-chan struct{} {
	return t.stopped
}

// WaitShutdown blocks until Shutdown is called.
func (t *Thread) WaitShutdown(ctx context.Context) error {
	select {
	case <-t.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the loop goroutine and waits for it.
func (t *Thread) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := t.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.stopped:
		// it may have run just before exit
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	}
}

// WaitIdle blocks until every macrotask posted before the call has run.
// It posts a barrier macrotask and waits for it.
func (t *Thread) WaitIdle(ctx context.Context) error {
	if t.IsClosed() {
		return fmt.Errorf("host: thread %s is closed", t.name)
	}
	return t.Do(ctx, func() {})
}

// runLoop occupies the dedicated goroutine.
func (t *Thread) runLoop() {
	defer close(t.stopped)

	for {
		fn, ok := t.next()
		if ok {
			t.invoke(fn)
			t.executed.Add(1)
			t.runMicrotasks()
			continue
		}
		// stray microtasks queued from outside a macrotask
		if t.hasMicrotasks() {
			t.runMicrotasks()
			continue
		}

		select {
		case <-t.wake:
		case <-t.ctx.Done():
			return
		}
	}
}

func (t *Thread) next() (func(), bool) {
	if t.ctx.Err() != nil {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.macrotasks) == 0 {
		return nil, false
	}
	fn := t.macrotasks[0]
	t.macrotasks[0] = nil
	t.macrotasks = t.macrotasks[1:]
	return fn, true
}

func (t *Thread) hasMicrotasks() bool {
	if t.ctx.Err() != nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.microtasks) > 0
}

func (t *Thread) runMicrotasks() {
	for {
		t.mu.Lock()
		if len(t.microtasks) == 0 {
			t.mu.Unlock()
			return
		}
		fn := t.microtasks[0]
		t.microtasks[0] = nil
		t.microtasks = t.microtasks[1:]
		t.mu.Unlock()

		t.invoke(fn)
	}
}

func (t *Thread) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.panicHandler(r, debug.Stack())
		}
	}()
	fn()
}
