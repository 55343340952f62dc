package core

// defaultIdleAttempts is the number of consecutive empty microtask
// checkpoints WhenIdle waits for when attempts <= 0.
const defaultIdleAttempts = 5

// WhenIdle returns a channel closed once the queue has been observed empty
// across attempts consecutive microtask checkpoints. Work scheduled from a
// microtask during that window restarts the wait.
func (s *Scheduler) WhenIdle(attempts int) <-chan struct{} {
	if attempts <= 0 {
		attempts = defaultIdleAttempts
	}
	done := make(chan struct{})

	var check func(remaining int)
	check = func(remaining int) {
		if s.queue.Len() > 0 {
			s.idleResolvers = append(s.idleResolvers, func() { check(attempts) })
			return
		}
		if remaining <= 0 {
			close(done)
			return
		}
		if err := s.host.QueueMicrotask(func() { check(remaining - 1) }); err != nil {
			// the host is gone, nothing will run again
			close(done)
		}
	}
	check(attempts)

	return done
}

// SetOnIdle installs the hook fired each time a chain of slices drains the
// queue. A nil fn installs a no-op.
func (s *Scheduler) SetOnIdle(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	s.onIdle = fn
}

// drainIdle runs once per slice chain that ends with an empty queue.
func (s *Scheduler) drainIdle() {
	resolvers := s.idleResolvers
	s.idleResolvers = nil
	for _, resolve := range resolvers {
		resolve()
	}
	s.log.idle()
	s.onIdle()
}
