package core

import (
	"testing"
	"time"
)

func TestGoroutineBackend_NanoTime_Monotonic(t *testing.T) {
	b := NewGoroutineBackend()
	a := b.NanoTime()
	time.Sleep(time.Millisecond)
	c := b.NanoTime()
	if c <= a {
		t.Fatalf("NanoTime did not advance: %d -> %d", a, c)
	}
}

func TestFakeBackend_AdvanceWakesCoordinator(t *testing.T) {
	backend := NewFakeBackend()
	runner := NewTaskRunner(RunnerConfig{Name: "fake-backend-test"}, backend)
	q := runner.NewQueue("main")

	ran := make(chan struct{})
	task := NewTask("delayed", func() int64 {
		close(ran)
		return NoMoreRuns
	})
	if err := q.Schedule(task, int64(time.Hour)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	select {
	case <-ran:
		t.Fatal("task ran before its deadline")
	case <-time.After(100 * time.Millisecond):
	}

	backend.Advance(runner, time.Hour+time.Second)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run after Advance crossed its deadline")
	}
}
