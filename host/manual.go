// Package host provides event loops the scheduler can be bound to.
//
// Manual is a deterministic virtual host for tests and simulations. Thread
// runs a host loop on a dedicated goroutine. EventLoop adapts
// github.com/joeycumines/go-eventloop.
package host

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrClosed is returned when posting to a host that has been closed.
var ErrClosed = errors.New("host: closed")

// ManualEpoch is the initial virtual clock of a Manual host.
var ManualEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// macrotask sources, counted separately
const (
	sourceImmediate = iota
	sourceMessage
	sourceTimeout
)

type macrotask struct {
	fn     func()
	source int
}

type timer struct {
	at  time.Time
	seq uint64
	fn  func()
}

// ManualCounters reports how many macrotasks of each kind were posted.
type ManualCounters struct {
	Immediates uint64
	Messages   uint64
	Timeouts   uint64
	Microtasks uint64
	Dispatched uint64
}

// Manual is a single-threaded virtual event loop. Nothing runs until the
// owner calls Step, Flush or Advance. It is not safe for concurrent use.
//
// Every macrotask is followed by a microtask checkpoint, as in a browser.
type Manual struct {
	now        time.Time
	macrotasks []macrotask
	microtasks []func()
	timers     []timer
	timerSeq   uint64
	counters   ManualCounters
	closed     bool

	// TaskCost, if set, advances the clock by this much after each
	// macrotask, simulating work taking time.
	TaskCost time.Duration

	// PropagatePanics re-raises panics escaping macrotasks. Otherwise they
	// are collected and reported by Panics.
	PropagatePanics bool
	panics          []any
}

// NewManual returns a Manual host whose clock starts at ManualEpoch.
func NewManual() *Manual {
	return &Manual{now: ManualEpoch}
}

// Now returns the virtual clock.
func (m *Manual) Now() time.Time { return m.now }

// Advance moves the clock forward by d, without running anything.
func (m *Manual) Advance(d time.Duration) {
	if d > 0 {
		m.now = m.now.Add(d)
	}
}

func (m *Manual) post(fn func(), source int) error {
	if m.closed {
		return ErrClosed
	}
	if fn == nil {
		return fmt.Errorf("host: nil callback")
	}
	m.macrotasks = append(m.macrotasks, macrotask{fn: fn, source: source})
	switch source {
	case sourceImmediate:
		m.counters.Immediates++
	case sourceMessage:
		m.counters.Messages++
	}
	return nil
}

// SetImmediate queues fn as a macrotask.
func (m *Manual) SetImmediate(fn func()) error {
	return m.post(fn, sourceImmediate)
}

// SetTimeout queues fn to become a macrotask once the clock reaches
// now+delay. A delay <= 0 fires on the next Step.
func (m *Manual) SetTimeout(fn func(), delay time.Duration) error {
	if m.closed {
		return ErrClosed
	}
	if fn == nil {
		return fmt.Errorf("host: nil callback")
	}
	if delay < 0 {
		delay = 0
	}
	m.timerSeq++
	m.timers = append(m.timers, timer{at: m.now.Add(delay), seq: m.timerSeq, fn: fn})
	m.counters.Timeouts++
	return nil
}

// QueueMicrotask queues fn for the next microtask checkpoint.
func (m *Manual) QueueMicrotask(fn func()) error {
	if m.closed {
		return ErrClosed
	}
	if fn == nil {
		return fmt.Errorf("host: nil callback")
	}
	m.microtasks = append(m.microtasks, fn)
	m.counters.Microtasks++
	return nil
}

// NewMessageChannel returns a post function queueing onMessage as a
// macrotask on every call.
func (m *Manual) NewMessageChannel(onMessage func()) (func() error, error) {
	if onMessage == nil {
		return nil, fmt.Errorf("host: nil callback")
	}
	return func() error { return m.post(onMessage, sourceMessage) }, nil
}

// Close makes every further post fail with ErrClosed and drops pending work.
func (m *Manual) Close() {
	m.closed = true
	m.macrotasks = nil
	m.microtasks = nil
	m.timers = nil
}

// Counters returns the post counters.
func (m *Manual) Counters() ManualCounters { return m.counters }

// Pending returns the number of queued macrotasks, including due timers.
func (m *Manual) Pending() int {
	m.promoteTimers()
	return len(m.macrotasks)
}

// Panics returns the panics collected from macrotasks and microtasks.
func (m *Manual) Panics() []any { return m.panics }

// promoteTimers moves due timers into the macrotask queue, in due order.
func (m *Manual) promoteTimers() {
	if len(m.timers) == 0 {
		return
	}
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	n := 0
	for _, t := range m.timers {
		if t.at.After(m.now) {
			break
		}
		m.macrotasks = append(m.macrotasks, macrotask{fn: t.fn, source: sourceTimeout})
		n++
	}
	m.timers = m.timers[n:]
}

// Step runs one macrotask and the microtask checkpoint after it. It reports
// false when there was nothing to run.
func (m *Manual) Step() bool {
	m.promoteTimers()
	if len(m.macrotasks) == 0 {
		return false
	}
	next := m.macrotasks[0]
	m.macrotasks[0] = macrotask{}
	m.macrotasks = m.macrotasks[1:]
	m.counters.Dispatched++

	m.invoke(next.fn)
	m.Advance(m.TaskCost)
	m.RunMicrotasks()
	return true
}

// RunMicrotasks runs the microtask queue until it is empty, including
// microtasks queued by microtasks.
func (m *Manual) RunMicrotasks() {
	for len(m.microtasks) > 0 {
		fn := m.microtasks[0]
		m.microtasks[0] = nil
		m.microtasks = m.microtasks[1:]
		m.invoke(fn)
	}
}

// Flush steps until no macrotask is ready, up to limit steps (<= 0 means
// 10000). It returns the number of steps taken. Timers in the future are not
// waited for.
func (m *Manual) Flush(limit int) int {
	if limit <= 0 {
		limit = 10000
	}
	n := 0
	for n < limit && m.Step() {
		n++
	}
	return n
}

// RunUntilIdle alternates Flush with advancing the clock to the next timer,
// until nothing is left at all.
func (m *Manual) RunUntilIdle(limit int) int {
	n := m.Flush(limit)
	for len(m.timers) > 0 && (limit <= 0 || n < limit) {
		m.promoteTimers()
		if len(m.macrotasks) == 0 {
			m.now = m.timers[0].at
		}
		n += m.Flush(limit - n)
	}
	return n
}

func (m *Manual) invoke(fn func()) {
	if m.PropagatePanics {
		fn()
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.panics = append(m.panics, r)
		}
	}()
	fn()
}
