package core

import (
	"container/heap"
	"errors"
)

// ErrQueueShutdown is returned by Schedule/Execute once Shutdown has been
// called on the queue.
var ErrQueueShutdown = errors.New("taskrunner: queue is shut down")

// TaskQueue is an ordered set of pending tasks belonging to one logical
// stream of work. Tasks scheduled on the same queue execute strictly
// sequentially, in ascending eligibility order, ties broken by insertion
// order.
//
// Every field is guarded by the owning TaskRunner's single mutex; TaskQueue
// methods acquire it internally and must not be called while already
// holding it.
type TaskQueue struct {
	name   string
	runner *TaskRunner

	activeTask       *Task
	futureTasks      taskHeap
	cancelActiveTask bool
	shutdown         bool
}

// Name returns the queue's stable name.
func (q *TaskQueue) Name() string { return q.name }

// Schedule inserts a cancelable task into the queue, eligible after
// delayNanos. It fails if the queue has been shut down.
func (q *TaskQueue) Schedule(task *Task, delayNanos int64) error {
	return q.schedule(task, delayNanos, true)
}

// ScheduleNonCancelable is like Schedule but the task survives CancelAll and
// Shutdown; only used for work that must run to completion regardless.
func (q *TaskQueue) ScheduleNonCancelable(task *Task, delayNanos int64) error {
	return q.schedule(task, delayNanos, false)
}

func (q *TaskQueue) schedule(task *Task, delayNanos int64, cancelable bool) error {
	if task == nil || task.RunOnce == nil {
		panic("taskrunner: task and task.RunOnce must be non-nil")
	}
	r := q.runner
	r.guard.Lock()
	defer r.guard.Unlock()

	if q.shutdown {
		return ErrQueueShutdown
	}
	task.cancelable = cancelable
	r.scheduleLocked(q, task, delayNanos)
	return nil
}

// Execute is sugar for Schedule with a task that never reschedules itself.
func (q *TaskQueue) Execute(name string, delayNanos int64, block func()) (*Task, error) {
	task := NewTask(name, func() int64 {
		block()
		return NoMoreRuns
	})
	if err := q.Schedule(task, delayNanos); err != nil {
		return nil, err
	}
	return task, nil
}

// CancelAll drops every cancelable pending task and requests the active
// task, if cancelable, not be rescheduled. The active task runs to
// completion.
func (q *TaskQueue) CancelAll() {
	r := q.runner
	r.guard.Lock()
	defer r.guard.Unlock()
	r.cancelQueueLocked(q)
}

// Shutdown marks the queue closed: no further tasks are accepted and pending
// cancelable tasks are dropped immediately. The active task, if any, still
// finishes but will not be rescheduled.
func (q *TaskQueue) Shutdown() {
	r := q.runner
	r.guard.Lock()
	defer r.guard.Unlock()
	q.shutdown = true
	r.cancelQueueLocked(q)
}

// IsShutdown reports whether Shutdown has been called.
func (q *TaskQueue) IsShutdown() bool {
	r := q.runner
	r.guard.Lock()
	defer r.guard.Unlock()
	return q.shutdown
}

// Stats returns a point-in-time snapshot of the queue's scheduler state.
func (q *TaskQueue) Stats() QueueStats {
	r := q.runner
	r.guard.Lock()
	defer r.guard.Unlock()
	stats := QueueStats{
		Name:    q.name,
		Pending: len(q.futureTasks),
		Active:  q.activeTask != nil,
		Closed:  q.shutdown,
	}
	if q.activeTask != nil {
		stats.ActiveTaskName = q.activeTask.Name
	}
	return stats
}

// taskHeap orders tasks by ascending nextExecuteNanoTime, ties broken by
// insertion sequence (FIFO). It is a container/heap min-heap so the head of
// a queue's futureTasks is always taskHeap[0].
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].nextExecuteNanoTime != h[j].nextExecuteNanoTime {
		return h[i].nextExecuteNanoTime < h[j].nextExecuteNanoTime
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*Task))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

var _ = heap.Interface(&taskHeap{})
