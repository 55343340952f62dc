package core

import (
	"fmt"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// DefaultOverdueLogRates allows one overdue warning per second, and ten per
// minute, for each priority.
func DefaultOverdueLogRates() map[time.Duration]int {
	return map[time.Duration]int{
		time.Second: 1,
		time.Minute: 10,
	}
}

// schedLogger wraps the configured logiface logger. A nil logger disables
// every method.
type schedLogger struct {
	l       *logiface.Logger[logiface.Event]
	overdue *catrate.Limiter
}

func newSchedLogger(l *logiface.Logger[logiface.Event], overdueRates map[time.Duration]int) *schedLogger {
	x := &schedLogger{l: l}
	if l != nil && len(overdueRates) > 0 {
		x.overdue = catrate.NewLimiter(overdueRates)
	}
	return x
}

func (x *schedLogger) strategySelected(s HostStrategy, yieldInterval time.Duration) {
	x.l.Debug().
		Str("strategy", s.String()).
		Dur("yield_interval", yieldInterval).
		Log("host callback strategy selected")
}

func (x *schedLogger) armFailed(s HostStrategy, err error) {
	x.l.Err().
		Str("strategy", s.String()).
		Err(err).
		Log("failed to arm host callback")
}

func (x *schedLogger) sliceYielded(elapsed time.Duration, queued int) {
	x.l.Trace().
		Dur("elapsed", elapsed).
		Int("queued", queued).
		Log("yielded to host")
}

func (x *schedLogger) idle() {
	x.l.Trace().Log("scheduler idle")
}

func (x *schedLogger) scopeNotComparable(scope any) {
	x.l.Warning().
		Str("scope_type", fmt.Sprintf("%T", scope)).
		Log("refresh scope is not comparable, coalescing disabled")
}

func (x *schedLogger) taskPanicked(panicInfo any, handled bool) {
	x.l.Err().
		Any("panic", panicInfo).
		Bool("handled", handled).
		Log("task panicked")
}

// overdueTask warns that a task started after its expiration time. This is
// the anti-starvation path, so a steady stream of these means the queue is
// saturated.
func (x *schedLogger) overdueTask(t *task, lateness time.Duration) {
	if x.l == nil {
		return
	}
	if _, ok := x.overdue.Allow(t.priority); !ok {
		return
	}
	x.l.Warning().
		Uint64("task_id", t.id).
		Str("task", t.name).
		Str("priority", t.priority.String()).
		Dur("overdue", lateness).
		Log("running overdue task")
}
