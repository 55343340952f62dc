package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	eventloop "github.com/joeycumines/go-eventloop"
)

// EventLoop adapts a go-eventloop Loop. It offers a native immediate
// primitive, so a scheduler bound to it resumes with SetImmediate.
//
// SetImmediate and SetTimeout may be called from any goroutine; they are how
// work enters the loop from outside.
type EventLoop struct {
	loop *eventloop.Loop
	js   *eventloop.JS

	runOnce sync.Once
	done    chan struct{}
	runErr  error
}

// NewEventLoop creates an event loop. It does not run until Start or Run.
func NewEventLoop() (*EventLoop, error) {
	loop, err := eventloop.New()
	if err != nil {
		return nil, fmt.Errorf("host: create event loop: %w", err)
	}
	js, err := eventloop.NewJS(loop)
	if err != nil {
		_ = loop.Close()
		return nil, fmt.Errorf("host: create js adapter: %w", err)
	}
	return &EventLoop{
		loop: loop,
		js:   js,
		done: make(chan struct{}),
	}, nil
}

// Loop returns the underlying loop.
func (e *EventLoop) Loop() *eventloop.Loop { return e.loop }

// Now returns the wall clock. The loop's tick time is fixed for a whole tick,
// so it cannot measure a slice.
func (e *EventLoop) Now() time.Time {
	return time.Now()
}

func (e *EventLoop) SetImmediate(fn func()) error {
	if fn == nil {
		return fmt.Errorf("host: nil callback")
	}
	_, err := e.js.SetImmediate(fn)
	return err
}

// SetTimeout has millisecond resolution; shorter delays round down.
func (e *EventLoop) SetTimeout(fn func(), delay time.Duration) error {
	if fn == nil {
		return fmt.Errorf("host: nil callback")
	}
	if delay < 0 {
		delay = 0
	}
	_, err := e.js.SetTimeout(fn, int(delay/time.Millisecond))
	return err
}

func (e *EventLoop) QueueMicrotask(fn func()) error {
	if fn == nil {
		return fmt.Errorf("host: nil callback")
	}
	return e.js.QueueMicrotask(fn)
}

// Run blocks running the loop until ctx is done or the loop is shut down.
// A loop can only run once.
func (e *EventLoop) Run(ctx context.Context) error {
	ran := false
	e.runOnce.Do(func() {
		ran = true
		defer close(e.done)
		e.runErr = e.loop.Run(ctx)
	})
	if !ran {
		return eventloop.ErrLoopAlreadyRunning
	}
	if errors.Is(e.runErr, context.Canceled) {
		return nil
	}
	return e.runErr
}

// Start runs the loop on a new goroutine.
func (e *EventLoop) Start(ctx context.Context) {
	go func() { _ = e.Run(ctx) }()
}

// Done is closed once Run has returned.
func (e *EventLoop) Done() <-chan struct{} { return e.done }

// Post queues fn onto the loop from any goroutine, like Thread.Post.
func (e *EventLoop) Post(fn func()) error {
	return e.SetImmediate(fn)
}

// Do runs fn on the loop and waits for it.
func (e *EventLoop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := e.SetImmediate(func() {
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
	}
}

// Shutdown drains queued work and stops the loop.
func (e *EventLoop) Shutdown(ctx context.Context) error {
	err := e.loop.Shutdown(ctx)
	if errors.Is(err, eventloop.ErrLoopTerminated) {
		return nil
	}
	return err
}
