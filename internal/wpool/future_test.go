package wpool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 6: cancelling a future before its task is picked up must skip
// execution entirely and unblock Get immediately with ok=false.
func TestFutureCancelBeforeRunSkipsExecutionAndGetReturnsNotOK(t *testing.T) {
	release := make(chan struct{})
	p := New(1, NewFIFO(), WaitForAllTasks)
	defer p.Shutdown()

	// Occupy the single worker so the future task stays queued, not picked
	// up yet, giving Cancel a window to land before execution starts.
	p.Schedule(func() { <-release })

	var ran bool
	var mu sync.Mutex
	fut := ScheduleFuture(p, func() int {
		mu.Lock()
		ran = true
		mu.Unlock()
		return 42
	})

	ok := fut.Cancel()
	assert.True(t, ok, "cancel before run must succeed")
	assert.True(t, fut.Cancelled())

	close(release)

	type result struct {
		value int
		ok    bool
	}
	done := make(chan result, 1)
	go func() {
		value, ok := fut.Get()
		done <- result{value, ok}
	}()

	select {
	case r := <-done:
		assert.False(t, r.ok, "a cancelled future must report no value")
		assert.Equal(t, 0, r.value)
	case <-time.After(time.Second):
		t.Fatal("Get never returned for a cancelled future")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, ran, "a future cancelled before run must never invoke its callable")
}

// Cancel called while the callable is already executing must not stop the
// task — it runs to completion on its worker — but the result is discarded:
// Ready stays false and Get reports no value.
func TestFutureCancelWhileExecutingDiscardsResultButTaskStillCompletes(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := New(1, NewFIFO(), WaitForAllTasks)
	defer p.Shutdown()

	var completed bool
	var mu sync.Mutex
	fut := ScheduleFuture(p, func() int {
		close(started)
		<-release
		mu.Lock()
		completed = true
		mu.Unlock()
		return 7
	})

	<-started // callable is now executing

	ok := fut.Cancel()
	assert.True(t, ok, "cancel while executing must still succeed")

	close(release) // let the callable run to completion

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return completed
	}, time.Second, 5*time.Millisecond, "a cancelled-while-executing task must still run to completion")

	assert.False(t, fut.Ready(), "result must be discarded once cancelled")
	value, ok := fut.Get()
	assert.False(t, ok)
	assert.Equal(t, 0, value)
}

func TestFutureCancelAfterReadyFails(t *testing.T) {
	p := New(1, NewFIFO(), WaitForAllTasks)
	defer p.Shutdown()

	fut := ScheduleFuture(p, func() int { return 9 })

	require.Eventually(t, func() bool {
		return fut.Ready()
	}, time.Second, 5*time.Millisecond)

	assert.False(t, fut.Cancel(), "cancel must fail once the future is ready")
	value, ok := fut.Get()
	assert.True(t, ok)
	assert.Equal(t, 9, value)
}

// Scenario 5: 3 blocking tasks submitted to a pool of size 2 (2 active, 1
// pending); Wait(1) must block until active+pending drops to 1, and Pending
// must reach 0 once the queue drains.
func TestWaitUnblocksOnceActivePlusPendingReachesThreshold(t *testing.T) {
	release1 := make(chan struct{})
	release2 := make(chan struct{})
	release3 := make(chan struct{})
	p := New(2, NewFIFO(), WaitForAllTasks)
	defer p.Shutdown()

	p.Schedule(func() { <-release1 })
	p.Schedule(func() { <-release2 })
	p.Schedule(func() { <-release3 }) // queues: active=2, pending=1, total=3

	waitDone := make(chan struct{})
	go func() {
		p.Wait(1)
		close(waitDone)
	}()

	select {
	case <-waitDone:
		t.Fatal("Wait(1) returned while active+pending was still 3")
	case <-time.After(50 * time.Millisecond):
	}

	close(release1) // a worker frees up and immediately picks up task 3: still active=2

	select {
	case <-waitDone:
		t.Fatal("Wait(1) returned while active+pending was still 2")
	case <-time.After(50 * time.Millisecond):
	}

	close(release2) // the other worker finishes: active=1 (task 3 still running), pending=0

	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("Wait(1) never returned once active+pending reached 1")
	}

	assert.Equal(t, 0, p.Pending())

	close(release3)
}
