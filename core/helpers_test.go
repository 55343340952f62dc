package core

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-ui-scheduler/host"
)

// newManualScheduler binds a scheduler to a fresh virtual host.
func newManualScheduler(t *testing.T, cfg *Config) (*Scheduler, *host.Manual) {
	t.Helper()
	m := host.NewManual()
	s, err := New(m, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, m
}

// recordingZone counts Run calls.
type recordingZone struct {
	name  string
	runs  int
	after func()
}

func (z *recordingZone) Run(fn func()) {
	z.runs++
	fn()
	if z.after != nil {
		z.after()
	}
}

// timerOnlyHost hides the immediate and message channel primitives.
type timerOnlyHost struct {
	m *host.Manual
}

func (h timerOnlyHost) Now() time.Time { return h.m.Now() }

func (h timerOnlyHost) SetTimeout(fn func(), delay time.Duration) error {
	return h.m.SetTimeout(fn, delay)
}

func (h timerOnlyHost) QueueMicrotask(fn func()) error { return h.m.QueueMicrotask(fn) }

// channelOnlyHost offers message channels but no immediate.
type channelOnlyHost struct {
	timerOnlyHost
}

func (h channelOnlyHost) NewMessageChannel(onMessage func()) (func() error, error) {
	return h.m.NewMessageChannel(onMessage)
}

type recordingPanicHandler struct {
	panics []any
	stacks [][]byte
}

func (h *recordingPanicHandler) HandlePanic(ctx context.Context, panicInfo any, stackTrace []byte) {
	h.panics = append(h.panics, panicInfo)
	h.stacks = append(h.stacks, stackTrace)
}

type recordingInterceptor struct {
	sources []string
}

func (i *recordingInterceptor) InterceptMacrotask(source string, schedule func()) {
	i.sources = append(i.sources, source)
	schedule()
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

var (
	_ ImmediateHost      = (*host.Manual)(nil)
	_ MessageChannelHost = (*host.Manual)(nil)
	_ MessageChannelHost = (*host.Thread)(nil)
	_ ImmediateHost      = (*host.EventLoop)(nil)
	_ MessageChannelHost = channelOnlyHost{}
	_ Host               = timerOnlyHost{}
)
