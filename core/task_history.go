package core

import (
	"reflect"
	"runtime"
	"strings"
	"sync"
)

const defaultTaskHistoryCapacity = 100

// executionHistory keeps the last records written, for RecentTasks and Stats.
// It is written on the host thread and may be read from any goroutine.
type executionHistory struct {
	mu      sync.Mutex
	records []TaskExecutionRecord
	written uint64
}

func newExecutionHistory(capacity int) *executionHistory {
	if capacity < 1 {
		capacity = defaultTaskHistoryCapacity
	}
	return &executionHistory{records: make([]TaskExecutionRecord, 0, capacity)}
}

func (h *executionHistory) Add(record TaskExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.records) < cap(h.records) {
		h.records = append(h.records, record)
	} else {
		h.records[h.written%uint64(cap(h.records))] = record
	}
	h.written++
}

// at returns the record written back steps before the newest one.
// Callers hold mu and keep back < len(records).
func (h *executionHistory) at(back int) TaskExecutionRecord {
	n := uint64(cap(h.records))
	return h.records[(h.written-1-uint64(back))%n]
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (h *executionHistory) Recent(limit int) []TaskExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := len(h.records)
	if kept == 0 {
		return nil
	}
	if limit <= 0 || limit > kept {
		limit = kept
	}
	out := make([]TaskExecutionRecord, limit)
	for i := range out {
		out[i] = h.at(i)
	}
	return out
}

func (h *executionHistory) Last() (TaskExecutionRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.records) == 0 {
		return TaskExecutionRecord{}, false
	}
	return h.at(0), true
}

// resolveTaskName prefers the traits name, then the callback's function name
// without its import path.
func resolveTaskName(cb Callback, explicit string) string {
	switch {
	case explicit != "":
		return explicit
	case cb == nil:
		return "anonymous"
	}
	fn := runtime.FuncForPC(reflect.ValueOf(cb).Pointer())
	if fn == nil || fn.Name() == "" {
		return "anonymous"
	}
	name := fn.Name()
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}
