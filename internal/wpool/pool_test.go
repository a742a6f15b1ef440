package wpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFORunsInSubmissionOrder(t *testing.T) {
	var mu sync.Mutex
	var order []int

	p := New(1, NewFIFO(), WaitForAllTasks)
	for i := 0; i < 5; i++ {
		i := i
		p.Schedule(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	p.Shutdown()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestLIFORunsMostRecentFirstOnceQueued(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var order []int

	p := New(1, NewLIFO(), WaitForAllTasks)
	// Block the single worker so the next three tasks queue up together.
	p.Schedule(func() { <-release })
	for i := 0; i < 3; i++ {
		i := i
		p.Schedule(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	close(release)
	p.Shutdown()

	assert.Equal(t, []int{2, 1, 0}, order)
}

func TestPriorityRunsHighestFirstOnceQueued(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var order []int
	pq := NewPriority()

	p := New(1, pq, WaitForAllTasks)
	p.Schedule(func() { <-release })
	pq.PushPriority(PriorityTask{Priority: 1, Run: func() {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
	}})
	pq.PushPriority(PriorityTask{Priority: 5, Run: func() {
		mu.Lock()
		order = append(order, 5)
		mu.Unlock()
	}})
	pq.PushPriority(PriorityTask{Priority: 3, Run: func() {
		mu.Lock()
		order = append(order, 3)
		mu.Unlock()
	}})
	close(release)
	p.Shutdown()

	assert.Equal(t, []int{5, 3, 1}, order)
}

func TestStaticSizeReplacesPanickingWorker(t *testing.T) {
	p := New(2, NewFIFO(), WaitForAllTasks)

	p.Schedule(func() { panic("boom") })
	p.Wait(0)

	// Give the defer-driven replacement goroutine a moment to spawn.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && p.Size() < 2 {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 2, p.Size())

	var ran int32
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		p.Schedule(func() {
			atomic.AddInt32(&ran, 1)
			wg.Done()
		})
	}
	wg.Wait()
	assert.Equal(t, int32(2), ran)

	p.Shutdown()
}

func TestShutdownWaitForAllTasksDrainsQueue(t *testing.T) {
	p := New(1, NewFIFO(), WaitForAllTasks)
	var ran int32
	for i := 0; i < 10; i++ {
		p.Schedule(func() { atomic.AddInt32(&ran, 1) })
	}
	p.Shutdown()
	assert.Equal(t, int32(10), ran)
	assert.Equal(t, 0, p.Pending())
}

func TestShutdownWaitForActiveTasksDropsPending(t *testing.T) {
	release := make(chan struct{})
	p := New(1, NewFIFO(), WaitForActiveTasks)

	var ran int32
	p.Schedule(func() {
		<-release
		atomic.AddInt32(&ran, 1)
	})
	for i := 0; i < 5; i++ {
		p.Schedule(func() { atomic.AddInt32(&ran, 1) })
	}

	done := make(chan struct{})
	go func() {
		p.Shutdown()
		close(done)
	}()

	// Shutdown should be blocked on the in-flight task, not yet returned.
	select {
	case <-done:
		t.Fatal("shutdown returned before the active task finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done

	assert.Equal(t, int32(1), ran)
}

func TestShutdownImmediatelyDoesNotJoin(t *testing.T) {
	release := make(chan struct{})
	p := New(1, NewFIFO(), Immediately)

	finished := make(chan struct{})
	p.Schedule(func() {
		<-release
		close(finished)
	})
	for i := 0; i < 5; i++ {
		p.Schedule(func() {})
	}

	start := time.Now()
	p.Shutdown()
	require.Less(t, time.Since(start), 50*time.Millisecond, "Immediately must not wait on in-flight work")

	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("in-flight task never completed after release")
	}
}

func TestScheduleAfterShutdownFails(t *testing.T) {
	p := New(1, NewFIFO(), WaitForAllTasks)
	p.Shutdown()
	assert.False(t, p.Schedule(func() {}))
}
