package core

import (
	"context"
	"testing"
)

// TestWhenIdle_EmptyQueue verifies the wait spans several microtask
// checkpoints
// Given: A scheduler with nothing queued
// When: WhenIdle is called
// Then: The channel is not closed synchronously, but is after the microtask
// queue drains
func TestWhenIdle_EmptyQueue(t *testing.T) {
	// Arrange
	s, m := newManualScheduler(t, nil)
	before := m.Counters().Microtasks

	// Act
	done := s.WhenIdle(0)

	// Assert
	if isClosed(done) {
		t.Fatal("WhenIdle resolved synchronously")
	}
	m.RunMicrotasks()
	if !isClosed(done) {
		t.Fatal("WhenIdle did not resolve after the microtask checkpoints")
	}
	if got := m.Counters().Microtasks - before; got != defaultIdleAttempts {
		t.Errorf("used %d microtasks, want %d", got, defaultIdleAttempts)
	}
}

// TestWhenIdle_WaitsForQueue verifies the wait resumes only after the queue
// drains
func TestWhenIdle_WaitsForQueue(t *testing.T) {
	s, m := newManualScheduler(t, nil)
	ran := false

	s.ScheduleTask(func(ctx context.Context) { ran = true }, PriorityNormal)
	done := s.WhenIdle(2)

	m.RunMicrotasks()
	if isClosed(done) {
		t.Fatal("WhenIdle resolved with work queued")
	}

	m.Flush(0)
	if !ran {
		t.Fatal("task did not run")
	}
	if !isClosed(done) {
		t.Error("WhenIdle did not resolve after the queue drained")
	}
}

// TestWhenIdle_RestartsOnNewWork verifies work scheduled during the wait
// restarts it
// Given: A WhenIdle wait in progress
// When: A microtask schedules a task before the wait completes
// Then: The wait resolves only after that task has run
func TestWhenIdle_RestartsOnNewWork(t *testing.T) {
	s, m := newManualScheduler(t, nil)
	ran := false

	done := s.WhenIdle(3)
	_ = m.QueueMicrotask(func() {
		s.ScheduleTask(func(ctx context.Context) { ran = true }, PriorityNormal)
	})
	m.RunMicrotasks()

	if isClosed(done) {
		t.Fatal("WhenIdle resolved while a task was queued")
	}
	m.Flush(0)
	if !ran || !isClosed(done) {
		t.Errorf("ran = %v, resolved = %v", ran, isClosed(done))
	}
}

// TestSetOnIdle verifies the hook fires once per drained slice chain
func TestSetOnIdle(t *testing.T) {
	s, m := newManualScheduler(t, nil)
	idle := 0
	s.SetOnIdle(func() { idle++ })

	for i := 0; i < 3; i++ {
		s.ScheduleTask(func(ctx context.Context) { s.RequestPaint() }, PriorityNormal)
	}
	m.Flush(0)

	if got := m.Counters().Immediates; got != 3 {
		t.Fatalf("Immediates = %d, want 3", got)
	}
	if idle != 1 {
		t.Errorf("onIdle fired %d times over one chain, want 1", idle)
	}

	s.ScheduleTask(func(ctx context.Context) {}, PriorityNormal)
	m.Flush(0)
	if idle != 2 {
		t.Errorf("onIdle fired %d times, want 2", idle)
	}

	s.SetOnIdle(nil)
	s.ScheduleTask(func(ctx context.Context) {}, PriorityNormal)
	m.Flush(0)
	if idle != 2 {
		t.Errorf("cleared hook still fired")
	}
}
