package wpool

import "sync"

// Future holds the result of a task scheduled through ScheduleFuture. State
// transitions (executing, ready, cancelled) are guarded by one mutex and one
// condition variable, mirroring Boost.Threadpool's future<R> (§4.A).
type Future[R any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	ready     bool
	cancelled bool
	executing bool
	value     R
}

func newFuture[R any]() *Future[R] {
	f := &Future[R]{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// ScheduleFuture runs fn on the pool and returns a handle to its result.
func ScheduleFuture[R any](p *Pool, fn func() R) *Future[R] {
	f := newFuture[R]()
	ok := p.Schedule(func() {
		f.mu.Lock()
		if f.cancelled {
			f.mu.Unlock()
			return
		}
		f.executing = true
		f.mu.Unlock()

		v := fn()

		f.mu.Lock()
		f.executing = false
		if !f.cancelled {
			f.value = v
			f.ready = true
		}
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	if !ok {
		// Pool already terminating: the future never runs and never
		// becomes ready; Cancel still succeeds against it.
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
	}
	return f
}

// Cancel attempts to stop the future before or during execution. It
// succeeds (returns true) unless the future is already ready; a future
// that is currently executing is marked cancelled so that its result is
// discarded on completion, but the underlying task still runs to
// completion on its worker (§4.A: tasks are not forcibly interrupted).
func (f *Future[R]) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ready {
		return false
	}
	f.cancelled = true
	f.cond.Broadcast()
	return true
}

// Cancelled reports whether Cancel has been called successfully.
func (f *Future[R]) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// Ready reports whether a value is available.
func (f *Future[R]) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

// Get blocks until the future is ready or cancelled. ok is false if the
// future was cancelled before producing a value.
func (f *Future[R]) Get() (value R, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.ready && !f.cancelled {
		f.cond.Wait()
	}
	if !f.ready {
		var zero R
		return zero, false
	}
	return f.value, true
}
