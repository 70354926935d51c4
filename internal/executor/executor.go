// Package executor supplies the concurrency primitive the engine drives
// chunk fetchers through: a small Executor interface plus a default
// semaphore-bounded implementation.
package executor

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Executor runs a bounded number of tasks concurrently, each tied to the
// engine's lifecycle. It exists so the engine is not hard-wired to one
// concurrency strategy — a test can swap in a synchronous Executor, and a
// future caller could swap in a pooled one.
type Executor interface {
	// Submit schedules fn to run, blocking until a slot is free or ctx is
	// done. The error returned by fn (if any) is collected and surfaced by
	// Wait.
	Submit(ctx context.Context, fn func(ctx context.Context) error) error

	// Wait blocks until every submitted task has returned, and returns the
	// first non-nil error encountered (if any).
	Wait() error

	// DegreeOfParallelism reports the configured concurrency ceiling.
	DegreeOfParallelism() int
}

// Pool is the default Executor: an errgroup bounded by a weighted
// semaphore sized to DegreeOfParallelism.
type Pool struct {
	group *errgroup.Group
	sem   *semaphore.Weighted
	n     int
}

// New creates a Pool accepting up to n concurrently-running tasks.
// Submit calls made against the returned Pool share ctx's cancellation:
// the first task to fail cancels every other pending or running task.
func New(ctx context.Context, n int) (*Pool, context.Context) {
	if n <= 0 {
		n = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	return &Pool{group: g, sem: semaphore.NewWeighted(int64(n)), n: n}, gctx
}

// Submit acquires a semaphore slot (blocking on ctx) and runs fn inside
// the errgroup.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.group.Go(func() error {
		defer p.sem.Release(1)
		return fn(ctx)
	})
	return nil
}

// Wait blocks until every submitted task returns.
func (p *Pool) Wait() error { return p.group.Wait() }

// DegreeOfParallelism reports the configured concurrency ceiling.
func (p *Pool) DegreeOfParallelism() int { return p.n }
