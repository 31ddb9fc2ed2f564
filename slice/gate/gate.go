// Package gate implements the concurrency gate (C6): a single
// process-wide semaphore bounding concurrent origin subrequests, plus a
// per-request fail-fast task-set primitive built over it.
//
// Grounded on the spec's explicit semaphore/fail-fast requirement; no
// teacher file implements this directly (the teacher dispatches
// subrequests inline without a shared bound), so the task-set primitive
// is built on golang.org/x/sync/errgroup, the same module already wired
// into this tree via x/sync/singleflight in proxy/proxy.go.
package gate

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Gate is a process-wide counting semaphore of capacity C.
type Gate struct {
	sem chan struct{}
}

// New returns a Gate allowing at most capacity subrequests in flight at
// once across the whole process.
func New(capacity int) *Gate {
	return &Gate{sem: make(chan struct{}, capacity)}
}

// Acquire blocks until a permit is available or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit to the pool.
func (g *Gate) Release() {
	<-g.sem
}

// InFlight reports the current number of outstanding permits, for
// metrics and tests; it is a momentary snapshot, not a stable read.
func (g *Gate) InFlight() int {
	return len(g.sem)
}

// Run executes fn(ctx, i) for i in [0, n), each gated by a permit from g.
// It completes when every invocation has resolved, or short-circuits
// (fail-fast) on the first error: fn's ctx is cancelled and Run returns
// that error once all already-started invocations have unwound.
func (g *Gate) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	eg, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			if err := g.Acquire(gctx); err != nil {
				return err
			}
			defer g.Release()
			return fn(gctx, i)
		})
	}
	return eg.Wait()
}
