// Package wpool is a generic bounded worker-pool primitive: a task queue
// with pluggable scheduling (FIFO/LIFO/priority), a static self-healing
// size policy, and one of three shutdown policies. Callers schedule detached
// callables through it and, when a result is needed, through Future. No
// other package in this module uses it.
//
// Grounded on the Boost.Threadpool design in original_source (pool_core.hpp,
// scheduling/size/shutdown_policies.hpp): the worker loop, the lock
// discipline, and the wait(threshold) semantics are the same contract,
// reformulated as goroutines + sync.Cond instead of template policies.
package wpool

import (
	"sync"
	"time"
)

// Pool is a bounded, concurrent task executor. The zero value is not usable;
// construct with New.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue    SchedulingPolicy
	shutdown ShutdownPolicy

	target      int // desired worker count (static size policy)
	workerCount int
	active      int

	terminating bool
	wg          sync.WaitGroup
}

// New creates a pool with size workers, scheduling tasks via queue according
// to shutdown's drain behavior on Shutdown.
func New(size int, queue SchedulingPolicy, shutdown ShutdownPolicy) *Pool {
	p := &Pool{
		queue:    queue,
		shutdown: shutdown,
		target:   size,
	}
	p.cond = sync.NewCond(&p.mu)
	p.mu.Lock()
	for i := 0; i < size; i++ {
		p.spawnLocked()
	}
	p.mu.Unlock()
	return p
}

// spawnLocked starts one worker goroutine. Caller must hold p.mu.
func (p *Pool) spawnLocked() {
	p.workerCount++
	p.wg.Add(1)
	go p.workerLoop()
}

// Schedule submits a task for asynchronous execution. It returns false only
// if the pool is already terminating.
func (p *Pool) Schedule(t Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminating {
		return false
	}
	p.queue.Push(t)
	p.cond.Broadcast()
	return true
}

// Size returns the current worker count.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workerCount
}

// Active returns the number of tasks currently executing.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Pending returns the number of tasks queued but not yet running.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Clear removes all pending tasks; in-flight tasks are unaffected.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.Clear()
}

// Wait blocks until active+pending <= threshold.
func (p *Pool) Wait(threshold int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.active+p.queue.Len() > threshold {
		p.cond.Wait()
	}
}

// WaitDeadline blocks until active+pending <= threshold or deadline passes,
// returning false on timeout.
func (p *Pool) WaitDeadline(deadline time.Time, threshold int) bool {
	done := make(chan struct{})
	go func() {
		p.Wait(threshold)
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(time.Until(deadline)):
		return false
	}
}

// Shutdown stops the pool per its configured ShutdownPolicy.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	switch p.shutdown {
	case WaitForAllTasks:
		p.mu.Unlock()
		p.Wait(0)
		p.mu.Lock()
		p.terminating = true
		p.cond.Broadcast()
		p.mu.Unlock()
		p.wg.Wait()
		return
	case WaitForActiveTasks:
		p.queue.Clear()
		p.mu.Unlock()
		p.Wait(0)
		p.mu.Lock()
		p.terminating = true
		p.cond.Broadcast()
		p.mu.Unlock()
		p.wg.Wait()
		return
	default: // Immediately
		p.queue.Clear()
		p.terminating = true
		p.cond.Broadcast()
		p.mu.Unlock()
		// Workers are detached: do not join. In-flight tasks keep running
		// on their own goroutine and the pool forgets about them.
		return
	}
}

// workerLoop is the per-goroutine contract: acquire the lock, shrink if
// over target, otherwise wait for a task-or-terminate signal, pop one task,
// release the lock, run it. Go has no undetectable thread death, so a
// panicking task is the stand-in for "the worker died unexpectedly" —
// the panic is swallowed here (never reaching the caller of Schedule) and
// the static size policy immediately spawns a replacement.
func (p *Pool) workerLoop() {
	wasActive := false
	defer func() {
		if r := recover(); r != nil {
			p.mu.Lock()
			p.workerCount--
			if wasActive {
				p.active--
			}
			dying := !p.terminating
			if dying && p.workerCount < p.target {
				p.spawnLocked()
			}
			p.cond.Broadcast()
			p.mu.Unlock()
			p.wg.Done()
			return
		}
	}()

	for {
		p.mu.Lock()
		if p.workerCount > p.target {
			p.workerCount--
			p.mu.Unlock()
			p.wg.Done()
			return
		}

		for p.queue.Len() == 0 {
			if p.terminating {
				p.workerCount--
				p.mu.Unlock()
				p.wg.Done()
				return
			}
			p.cond.Wait()
			if p.workerCount > p.target {
				p.workerCount--
				p.mu.Unlock()
				p.wg.Done()
				return
			}
		}

		task, ok := p.queue.Pop()
		if !ok {
			p.mu.Unlock()
			continue
		}
		p.active++
		wasActive = true
		p.mu.Unlock()

		task()

		p.mu.Lock()
		p.active--
		wasActive = false
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}
