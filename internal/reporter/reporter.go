// Package reporter implements a coalescing dispatcher that takes an
// arbitrarily fast stream of updates and emits at most one per
// MinInterval, always carrying the latest value (never a stale one, never
// a backlog).
package reporter

import (
	"sync"
	"time"
)

// Reporter coalesces calls to Report into a stream of calls to Emit spaced
// at least MinInterval apart. A Report that arrives before MinInterval has
// elapsed since the last Emit overwrites any pending value rather than
// queuing; a Report that arrives after a quiet period fires immediately.
type Reporter struct {
	minInterval time.Duration
	emit        func(value any)

	mu        sync.Mutex
	pending   any
	hasPending bool
	lastEmit  time.Time
	timer     *time.Timer
	closed    bool

	now func() time.Time
}

// New creates a Reporter that calls emit with the latest reported value,
// no more often than once per minInterval.
func New(minInterval time.Duration, emit func(value any)) *Reporter {
	return &Reporter{
		minInterval: minInterval,
		emit:        emit,
		now:         time.Now,
	}
}

// Report submits a new value. If enough time has passed since the last
// emission, it dispatches synchronously; otherwise it schedules a deferred
// emission (unless one is already scheduled) and stores this value as the
// one it will carry, replacing any value already pending.
func (r *Reporter) Report(value any) {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return
	}

	now := r.now()
	elapsed := now.Sub(r.lastEmit)
	if r.lastEmit.IsZero() || elapsed >= r.minInterval {
		r.lastEmit = now
		r.pending = nil
		r.hasPending = false
		if r.timer != nil {
			r.timer.Stop()
			r.timer = nil
		}
		r.mu.Unlock()
		r.emit(value)
		return
	}

	r.pending = value
	r.hasPending = true
	if r.timer == nil {
		wait := r.minInterval - elapsed
		r.timer = time.AfterFunc(wait, r.fireScheduled)
	}
	r.mu.Unlock()
}

func (r *Reporter) fireScheduled() {
	r.mu.Lock()
	if r.closed || !r.hasPending {
		r.timer = nil
		r.mu.Unlock()
		return
	}
	value := r.pending
	r.pending = nil
	r.hasPending = false
	r.lastEmit = r.now()
	r.timer = nil
	r.mu.Unlock()

	r.emit(value)
}

// Flush immediately emits any pending value, bypassing MinInterval. Used
// on completion so the final 100% report is never dropped by coalescing.
func (r *Reporter) Flush() {
	r.mu.Lock()
	if r.closed || !r.hasPending {
		r.mu.Unlock()
		return
	}
	value := r.pending
	r.pending = nil
	r.hasPending = false
	r.lastEmit = r.now()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()

	r.emit(value)
}

// Close stops any pending deferred emission. Report becomes a no-op after
// Close.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.hasPending = false
	r.pending = nil
}
