package errors

import "github.com/repcrec/repcrec/internal/types"

// AbortTracker counts aborts by reason across the simulation's lifetime.
// It backs queryState()'s diagnostic output. There is no retry path and no
// wall-clock rate to compute here: the engine is single-threaded and
// synchronous, so a plain counter map suffices and carries no mutex.
type AbortTracker struct {
	counts map[types.AbortReason]uint64
	total  uint64
}

// NewAbortTracker creates an empty tracker.
func NewAbortTracker() *AbortTracker {
	return &AbortTracker{counts: make(map[types.AbortReason]uint64)}
}

// Record notes one abort for the given reason.
func (t *AbortTracker) Record(reason types.AbortReason) {
	t.counts[reason]++
	t.total++
}

// Count returns how many aborts have been recorded for reason.
func (t *AbortTracker) Count(reason types.AbortReason) uint64 {
	return t.counts[reason]
}

// Total returns the total number of aborts recorded across all reasons.
func (t *AbortTracker) Total() uint64 {
	return t.total
}
