package core

import "fmt"

// TaskID identifies a task for logging and metrics correlation. It has no
// meaning to the scheduler itself.
type TaskID uint64

// String renders the task ID for log lines.
func (id TaskID) String() string {
	return fmt.Sprintf("task-%d", uint64(id))
}

// NoMoreRuns is the RunOnce return value meaning "do not reschedule".
const NoMoreRuns int64 = -1

// notScheduled is the nextExecuteNanoTime sentinel for a task that is not
// currently sitting in any queue's futureTasks.
const notScheduled int64 = -1

// Task is a unit of work belonging to at most one TaskQueue at a time.
//
// RunOnce executes the work and returns the delay, in nanoseconds, after
// which the task should run again (making it recurrent), or NoMoreRuns to
// drop it. RunOnce runs without the scheduler's lock held.
type Task struct {
	// Name is a human-readable label used in logs and metrics; it need not
	// be unique.
	Name string

	// RunOnce is the user-supplied work. It must be set before the task is
	// scheduled.
	RunOnce func() int64

	id         TaskID
	cancelable bool
	queue      *TaskQueue // non-owning back-reference, valid only while scheduled
	seq        uint64

	nextExecuteNanoTime int64
}

// NewTask constructs a non-recurrent-by-default task. Callers typically
// schedule it via TaskQueue.Schedule rather than constructing it directly.
func NewTask(name string, runOnce func() int64) *Task {
	return &Task{Name: name, RunOnce: runOnce, nextExecuteNanoTime: notScheduled}
}

// ID returns the task's scheduler-assigned identity. It is zero until the
// task has been scheduled at least once.
func (t *Task) ID() TaskID { return t.id }

// Queue returns the queue the task is currently associated with, or nil if
// it is not scheduled and not active.
func (t *Task) Queue() *TaskQueue { return t.queue }
