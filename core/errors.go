package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInTaskContext is returned when an operation requires a running task.
	ErrNotInTaskContext = errors.New("scheduler: not in a task context")
	// ErrNotInCleanTaskContext is returned when an operation requires a running clean task.
	ErrNotInCleanTaskContext = errors.New("scheduler: not in a clean task context")
	// ErrNotInDirtyTaskContext is returned when an operation requires a running coalescible refresh task.
	ErrNotInDirtyTaskContext = errors.New("scheduler: not in a dirty task context")
	// ErrUnsupportedStrategy is returned by New when the forced host strategy
	// is not offered by the host.
	ErrUnsupportedStrategy = errors.New("scheduler: host strategy not supported by host")
	// ErrNilHost is returned by New without a host.
	ErrNilHost = errors.New("scheduler: nil host")

	// ErrInternal marks a broken scheduler invariant. It is never returned in
	// a correct build; see InternalError.
	ErrInternal = errors.New("scheduler: internal error")
)

// InternalError reports a broken invariant, raised by panic when debug checks
// are enabled.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", ErrInternal.Error(), e.Msg)
}

func (e *InternalError) Unwrap() error { return ErrInternal }

func internalf(format string, args ...any) error {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}
