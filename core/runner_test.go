package core

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestRunner(t *testing.T, name string) *TaskRunner {
	t.Helper()
	return NewTaskRunner(RunnerConfig{Name: name, Logger: NewNoOpLogger()}, NewGoroutineBackend())
}

func TestTaskRunner_SingleQueue_RunsSequentially(t *testing.T) {
	runner := newTestRunner(t, "sequential")
	q := runner.NewQueue("main")

	var (
		mu      sync.Mutex
		order   []int
		overlap bool
		active  int32
	)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		if _, err := q.Execute("t", 0, func() {
			defer wg.Done()
			if atomic.AddInt32(&active, 1) > 1 {
				overlap = true
			}
			time.Sleep(time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			atomic.AddInt32(&active, -1)
		}); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	wg.Wait()

	if overlap {
		t.Fatal("tasks on the same queue ran concurrently")
	}
	if len(order) != 20 {
		t.Fatalf("ran %d tasks, want 20", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("out-of-order execution: %v", order)
		}
	}
}

func TestTaskRunner_MultipleQueues_RunConcurrently(t *testing.T) {
	runner := newTestRunner(t, "concurrent")

	const numQueues = 5
	var wg sync.WaitGroup
	var maxObservedConcurrency int32
	var active int32

	for i := 0; i < numQueues; i++ {
		q := runner.NewQueue("q")
		wg.Add(1)
		if _, err := q.Execute("block", 0, func() {
			defer wg.Done()
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxObservedConcurrency)
				if n <= old || atomic.CompareAndSwapInt32(&maxObservedConcurrency, old, n) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	wg.Wait()

	if maxObservedConcurrency < 2 {
		t.Fatalf("queues never ran concurrently, max observed = %d", maxObservedConcurrency)
	}
}

func TestTaskRunner_RecurringTask_Reschedules(t *testing.T) {
	runner := newTestRunner(t, "recurring")
	q := runner.NewQueue("main")

	var count int32
	done := make(chan struct{})
	task := NewTask("tick", func() int64 {
		n := atomic.AddInt32(&count, 1)
		if n >= 3 {
			close(done)
			return NoMoreRuns
		}
		return int64(time.Millisecond)
	})
	if err := q.Schedule(task, 0); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recurring task did not reach 3 runs")
	}
	if atomic.LoadInt32(&count) != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestTaskRunner_Panic_DoesNotStopOtherTasks(t *testing.T) {
	runner := newTestRunner(t, "panic-isolation")
	q := runner.NewQueue("main")

	panicTask := NewTask("boom", func() int64 {
		panic("kaboom")
	})
	if err := q.Schedule(panicTask, 0); err != nil {
		t.Fatalf("Schedule(boom): %v", err)
	}

	ran := make(chan struct{})
	if _, err := q.Execute("after", 0, func() { close(ran) }); err != nil {
		t.Fatalf("Execute(after): %v", err)
	}

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task scheduled after a panicking task never ran")
	}
}

func TestTaskRunner_CancelAll_DropsCancelablePending(t *testing.T) {
	runner := newTestRunner(t, "cancel-all")
	q := runner.NewQueue("main")

	gate := make(chan struct{})
	blocker := NewTask("blocker", func() int64 {
		<-gate
		return NoMoreRuns
	})
	if err := q.Schedule(blocker, 0); err != nil {
		t.Fatalf("Schedule(blocker): %v", err)
	}

	ran := int32(0)
	for i := 0; i < 5; i++ {
		task := NewTask("cancelme", func() int64 {
			atomic.AddInt32(&ran, 1)
			return NoMoreRuns
		})
		if err := q.Schedule(task, int64(time.Hour)); err != nil {
			t.Fatalf("Schedule(cancelme): %v", err)
		}
	}

	q.CancelAll()
	close(gate)

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatalf("cancelled tasks ran: %d", ran)
	}
	stats := q.Stats()
	if stats.Pending != 0 {
		t.Fatalf("Pending = %d after CancelAll, want 0", stats.Pending)
	}
}

func TestTaskQueue_Shutdown_RejectsNewSchedule(t *testing.T) {
	runner := newTestRunner(t, "shutdown")
	q := runner.NewQueue("main")
	q.Shutdown()

	if !q.IsShutdown() {
		t.Fatal("IsShutdown() = false after Shutdown()")
	}

	if _, err := q.Execute("late", 0, func() {}); err != ErrQueueShutdown {
		t.Fatalf("Execute after Shutdown returned %v, want ErrQueueShutdown", err)
	}
}

func TestTaskRunner_WorkerBookkeeping_StaysBounded(t *testing.T) {
	runner := newTestRunner(t, "bookkeeping")
	q := runner.NewQueue("main")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		if _, err := q.Execute("t", 0, func() { wg.Done() }); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	wg.Wait()
	time.Sleep(20 * time.Millisecond)

	stats := runner.Stats()
	diff := stats.ExecuteCallCount - stats.RunCallCount
	if diff < 0 || diff > 1 {
		t.Fatalf("executeCallCount - runCallCount = %d, want 0 or 1", diff)
	}
}

func TestTaskRunner_Close_StopsAcceptingCoordinatorWork(t *testing.T) {
	runner := newTestRunner(t, "close")
	q := runner.NewQueue("main")
	runner.Close()

	ranAfterClose := false
	if _, err := q.Execute("late", 0, func() { ranAfterClose = true }); err != nil {
		t.Fatalf("Execute after Close: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if ranAfterClose {
		t.Fatal("task ran after runner was closed")
	}
}
