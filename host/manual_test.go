package host

import (
	"errors"
	"testing"
	"time"
)

// TestManual_MacrotaskOrder verifies FIFO dispatch across post kinds
// Given: A Manual host with an immediate, a message and a zero timeout posted
// When: The host is flushed
// Then: Immediates and messages run in post order, the timer after them
func TestManual_MacrotaskOrder(t *testing.T) {
	// Arrange
	m := NewManual()
	var order []string
	post, err := m.NewMessageChannel(func() { order = append(order, "message") })
	if err != nil {
		t.Fatalf("NewMessageChannel: %v", err)
	}

	// Act
	_ = m.SetTimeout(func() { order = append(order, "timeout") }, 0)
	_ = m.SetImmediate(func() { order = append(order, "immediate") })
	_ = post()
	steps := m.Flush(0)

	// Assert
	if steps != 3 {
		t.Fatalf("Flush steps = %d, want 3", steps)
	}
	want := []string{"immediate", "message", "timeout"}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
	c := m.Counters()
	if c.Immediates != 1 || c.Messages != 1 || c.Timeouts != 1 || c.Dispatched != 3 {
		t.Errorf("Counters = %+v", c)
	}
}

// TestManual_MicrotaskCheckpoint verifies microtasks run after each macrotask
// Given: A macrotask that queues a microtask, which queues another
// When: One Step runs
// Then: Both microtasks run before the next macrotask
func TestManual_MicrotaskCheckpoint(t *testing.T) {
	m := NewManual()
	var order []string

	_ = m.SetImmediate(func() {
		order = append(order, "macro1")
		_ = m.QueueMicrotask(func() {
			order = append(order, "micro1")
			_ = m.QueueMicrotask(func() { order = append(order, "micro2") })
		})
	})
	_ = m.SetImmediate(func() { order = append(order, "macro2") })

	m.Step()
	if len(order) != 3 || order[2] != "micro2" {
		t.Fatalf("after first step order = %v", order)
	}
	m.Step()
	if order[3] != "macro2" {
		t.Errorf("order = %v", order)
	}
}

// TestManual_Timers verifies virtual timers fire only once the clock reaches them
func TestManual_Timers(t *testing.T) {
	m := NewManual()
	var fired []int

	_ = m.SetTimeout(func() { fired = append(fired, 2) }, 20*time.Millisecond)
	_ = m.SetTimeout(func() { fired = append(fired, 1) }, 10*time.Millisecond)

	if m.Flush(0) != 0 {
		t.Fatal("timers fired before their time")
	}

	m.Advance(10 * time.Millisecond)
	m.Flush(0)
	if len(fired) != 1 || fired[0] != 1 {
		t.Fatalf("fired = %v, want [1]", fired)
	}

	m.RunUntilIdle(0)
	if len(fired) != 2 || fired[1] != 2 {
		t.Errorf("fired = %v, want [1 2]", fired)
	}
	if got := m.Now().Sub(ManualEpoch); got != 20*time.Millisecond {
		t.Errorf("clock advanced %v, want 20ms", got)
	}
}

// TestManual_TaskCost verifies the clock advances per macrotask
func TestManual_TaskCost(t *testing.T) {
	m := NewManual()
	m.TaskCost = 3 * time.Millisecond

	var seen time.Time
	_ = m.SetImmediate(func() {})
	_ = m.SetImmediate(func() { seen = m.Now() })
	m.Flush(0)

	if got := seen.Sub(ManualEpoch); got != 3*time.Millisecond {
		t.Errorf("second task saw %v elapsed, want 3ms", got)
	}
}

// TestManual_PanicsCollected verifies panics are recorded and the loop continues
func TestManual_PanicsCollected(t *testing.T) {
	m := NewManual()
	ran := false

	_ = m.SetImmediate(func() { panic("boom") })
	_ = m.SetImmediate(func() { ran = true })
	m.Flush(0)

	if !ran {
		t.Error("task after panic did not run")
	}
	if p := m.Panics(); len(p) != 1 || p[0] != "boom" {
		t.Errorf("Panics = %v", p)
	}
}

// TestManual_PropagatePanics verifies panics escape Step when requested
func TestManual_PropagatePanics(t *testing.T) {
	m := NewManual()
	m.PropagatePanics = true
	_ = m.SetImmediate(func() { panic("boom") })

	defer func() {
		if r := recover(); r != "boom" {
			t.Errorf("recovered %v, want boom", r)
		}
	}()
	m.Step()
	t.Error("Step returned normally")
}

// TestManual_Close verifies posts fail after Close
func TestManual_Close(t *testing.T) {
	m := NewManual()
	_ = m.SetImmediate(func() { t.Error("dropped task ran") })
	m.Close()

	if err := m.SetImmediate(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("SetImmediate err = %v, want ErrClosed", err)
	}
	if err := m.QueueMicrotask(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("QueueMicrotask err = %v, want ErrClosed", err)
	}
	if m.Flush(0) != 0 {
		t.Error("Flush ran work after Close")
	}
}
