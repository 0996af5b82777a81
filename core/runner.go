package core

import (
	"container/heap"
	"fmt"
	"time"
)

const defaultRunnerName = "task-runner"

// maxCoordinatorWaitNanos bounds how long the coordinator sleeps when no
// queue has any pending task. It periodically wakes anyway so a runner that
// is never touched again still notices Close.
const maxCoordinatorWaitNanos = int64(30) * 1e9

// TaskRunner schedules tasks across a set of TaskQueues it owns, using a
// single mutex (guard) to make every scheduling decision atomic. At most one
// worker acts as the "coordinator" at a time: it looks for the next ready
// task across all queues, and if none is ready yet, parks until the
// earliest deadline or a new task makes an earlier one possible.
//
// A TaskQueue runs its tasks strictly sequentially; different queues run
// concurrently, each on its own worker once one becomes ready.
type TaskRunner struct {
	name   string
	guard  *Lockable
	backend Backend

	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler

	queues  []*TaskQueue
	history executionHistory

	executeCallCount int64
	runCallCount     int64

	coordinatorWaiting bool
	closed             bool

	nextSeq    uint64
	nextTaskID uint64
}

// NewTaskRunner creates a TaskRunner with the given configuration and
// Backend. Passing a nil Backend uses a production GoroutineBackend.
func NewTaskRunner(cfg RunnerConfig, backend Backend) *TaskRunner {
	name := cfg.Name
	if name == "" {
		name = defaultRunnerName
	}
	logger := cfg.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NilMetrics{}
	}
	panicHandler := cfg.PanicHandler
	if panicHandler == nil {
		panicHandler = &DefaultPanicHandler{Logger: logger}
	}
	if backend == nil {
		backend = NewGoroutineBackend()
	}
	return &TaskRunner{
		name:         name,
		guard:        NewLockable(),
		backend:      backend,
		logger:       logger,
		metrics:      metrics,
		panicHandler: panicHandler,
		history:      newExecutionHistory(cfg.HistoryCapacity),
	}
}

// History returns up to limit of the runner's most recent task executions,
// most recent first. limit <= 0 returns every retained record.
func (r *TaskRunner) History(limit int) []TaskExecutionRecord {
	return r.history.Recent(limit)
}

// Name returns the runner's configured name.
func (r *TaskRunner) Name() string { return r.name }

// NewQueue creates and registers a new TaskQueue owned by this runner.
func (r *TaskRunner) NewQueue(name string) *TaskQueue {
	r.guard.Lock()
	defer r.guard.Unlock()

	q := &TaskQueue{name: name, runner: r}
	q = r.backend.Decorate(q)
	r.queues = append(r.queues, q)
	return q
}

// ActiveQueues returns the queues currently registered with this runner.
func (r *TaskRunner) ActiveQueues() []*TaskQueue {
	r.guard.Lock()
	defer r.guard.Unlock()
	out := make([]*TaskQueue, len(r.queues))
	copy(out, r.queues)
	return out
}

// CancelAll cancels every pending cancelable task on every queue this
// runner owns.
func (r *TaskRunner) CancelAll() {
	r.guard.Lock()
	defer r.guard.Unlock()
	for _, q := range r.queues {
		r.cancelQueueLocked(q)
	}
}

// Close stops the runner from admitting more coordinator work: pending
// cancelable tasks are dropped and any parked coordinator wakes up and
// exits. Active tasks already running finish normally. Close is idempotent.
func (r *TaskRunner) Close() {
	r.guard.Lock()
	defer r.guard.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, q := range r.queues {
		r.cancelQueueLocked(q)
	}
	r.backend.CoordinatorNotify(r)
}

// Stats returns a point-in-time snapshot of the runner and its queues.
func (r *TaskRunner) Stats() RunnerStats {
	r.guard.Lock()
	defer r.guard.Unlock()

	stats := RunnerStats{
		Name:               r.name,
		ExecuteCallCount:   r.executeCallCount,
		RunCallCount:       r.runCallCount,
		CoordinatorWaiting: r.coordinatorWaiting,
		Closed:             r.closed,
	}
	for _, q := range r.queues {
		qs := QueueStats{
			Name:    q.name,
			Pending: len(q.futureTasks),
			Active:  q.activeTask != nil,
			Closed:  q.shutdown,
		}
		if q.activeTask != nil {
			qs.ActiveTaskName = q.activeTask.Name
			stats.BusyQueues++
		}
		stats.Queues = append(stats.Queues, qs)
	}
	return stats
}

// scheduleLocked inserts task into q's future heap, eligible after
// delayNanos, and wakes or starts a worker capable of picking it up.
func (r *TaskRunner) scheduleLocked(q *TaskQueue, task *Task, delayNanos int64) {
	r.nextTaskID++
	r.nextSeq++
	task.id = TaskID(r.nextTaskID)
	task.seq = r.nextSeq
	task.queue = q
	task.nextExecuteNanoTime = r.backend.NanoTime() + delayNanos

	heap.Push(&q.futureTasks, task)
	r.metrics.RecordQueueDepth(r.name, q.name, len(q.futureTasks))
	r.kickCoordinatorLocked()
}

// cancelQueueLocked drops q's pending cancelable tasks and, if q's active
// task is cancelable, marks it so afterRunLocked does not reschedule it.
func (r *TaskRunner) cancelQueueLocked(q *TaskQueue) {
	kept := q.futureTasks[:0]
	for _, t := range q.futureTasks {
		if t.cancelable {
			t.queue = nil
			t.nextExecuteNanoTime = notScheduled
			continue
		}
		kept = append(kept, t)
	}
	q.futureTasks = kept
	heap.Init(&q.futureTasks)

	if q.activeTask != nil && q.activeTask.cancelable {
		q.cancelActiveTask = true
	}
}

// kickCoordinatorLocked wakes the parked coordinator if there is one, or
// starts a new worker if not.
func (r *TaskRunner) kickCoordinatorLocked() {
	if r.closed {
		return
	}
	if r.coordinatorWaiting {
		r.backend.CoordinatorNotify(r)
		return
	}
	r.startAnotherThreadLocked()
}

// startAnotherThreadLocked spawns a new worker unless one is already in
// flight that has not yet reached its first runCallCount increment. This
// keeps executeCallCount - runCallCount in {0, 1}: there is never more than
// one spawned-but-not-yet-running worker at a time.
func (r *TaskRunner) startAnotherThreadLocked() {
	if r.executeCallCount > r.runCallCount {
		return
	}
	r.executeCallCount++
	r.backend.Execute(r, r.workerLoop)
}

// awaitTaskToRunLocked finds the next ready task across every non-busy
// queue. If one is ready now it is popped, marked active, and returned
// along with its queue. Otherwise the caller becomes the coordinator and
// parks until a deadline passes or new work arrives, then retries. It
// returns (nil, nil) once the runner is closed, even if non-cancelable tasks
// are still pending, and when no task is ready while another worker is
// already the coordinator.
func (r *TaskRunner) awaitTaskToRunLocked() (*Task, *TaskQueue) {
	for {
		if r.closed {
			return nil, nil
		}

		now := r.backend.NanoTime()
		var bestQueue *TaskQueue
		var bestDeadline int64
		hasFuture := false

		for _, q := range r.queues {
			if q.activeTask != nil || len(q.futureTasks) == 0 {
				continue
			}
			deadline := q.futureTasks[0].nextExecuteNanoTime
			if !hasFuture || deadline < bestDeadline {
				bestQueue = q
				bestDeadline = deadline
				hasFuture = true
			}
		}

		if hasFuture && bestDeadline <= now {
			task := heap.Pop(&bestQueue.futureTasks).(*Task)
			task.nextExecuteNanoTime = notScheduled
			bestQueue.activeTask = task
			r.metrics.RecordQueueDepth(r.name, bestQueue.name, len(bestQueue.futureTasks))

			if r.hasOtherReadyTaskLocked(now) && !r.coordinatorWaiting {
				r.startAnotherThreadLocked()
			}
			return task, bestQueue
		}

		if r.coordinatorWaiting {
			// A coordinator already exists; this worker is surplus and
			// exits rather than double-waiting on the same condition.
			return nil, nil
		}

		waitNanos := maxCoordinatorWaitNanos
		if hasFuture {
			waitNanos = bestDeadline - now
		}
		r.metrics.RecordCoordinatorWait(r.name, waitNanos)

		r.coordinatorWaiting = true
		r.backend.CoordinatorWait(r, waitNanos)
		r.coordinatorWaiting = false
	}
}

// hasOtherReadyTaskLocked reports whether some non-busy queue still has a
// task eligible to run at now. Called right after popping one ready task,
// to decide whether a second worker is needed to pick up the rest rather
// than leaving it for whichever worker next becomes coordinator.
func (r *TaskRunner) hasOtherReadyTaskLocked(now int64) bool {
	for _, q := range r.queues {
		if q.activeTask != nil || len(q.futureTasks) == 0 {
			continue
		}
		if q.futureTasks[0].nextExecuteNanoTime <= now {
			return true
		}
	}
	return false
}

// runTask executes task.RunOnce outside the runner's lock, recovering any
// panic so it terminates only this worker rather than the process. next is
// the delay to reschedule after, meaningful only when completedNormally.
func (r *TaskRunner) runTask(q *TaskQueue, task *Task) (next int64, completedNormally bool) {
	next = NoMoreRuns
	start := r.backend.NanoTime()
	startedAt := time.Now()

	defer func() {
		panicked := false
		if rec := recover(); rec != nil {
			panicked = true
			completedNormally = false
			next = NoMoreRuns
			r.metrics.RecordTaskPanic(r.name, rec)
			r.panicHandler.HandlePanic(r.name, task.Name, rec, capturePanicStack())
		}
		finishedAt := time.Now()
		r.metrics.RecordTaskDuration(r.name, task.Name, r.backend.NanoTime()-start)
		r.history.Add(TaskExecutionRecord{
			TaskID:     task.id,
			Name:       task.Name,
			RunnerName: r.name,
			QueueName:  q.name,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Duration:   finishedAt.Sub(startedAt),
			Panicked:   panicked,
		})
	}()

	next = task.RunOnce()
	completedNormally = true
	return
}

// afterRunLocked clears the queue's active slot and reschedules task if it
// asked to run again, was not cancelled while running, and completed
// normally. When the task panicked it spawns a replacement worker, since
// workerLoop is about to return and stop being a candidate coordinator.
func (r *TaskRunner) afterRunLocked(q *TaskQueue, task *Task, next int64, completedNormally bool) {
	q.activeTask = nil
	cancelled := q.cancelActiveTask
	q.cancelActiveTask = false

	if completedNormally && !cancelled && next != NoMoreRuns && !q.shutdown {
		r.scheduleLocked(q, task, next)
	} else {
		task.queue = nil
		task.nextExecuteNanoTime = notScheduled
	}

	if !completedNormally {
		r.startAnotherThreadLocked()
	}
}

// workerLoop is the body every worker goroutine runs: increment runCallCount
// once, then repeatedly ask for and execute ready tasks until none remain
// and this worker gives up coordinator duty, or a panic terminates it.
func (r *TaskRunner) workerLoop() {
	r.guard.Lock()
	r.runCallCount++
	r.guard.Unlock()

	for {
		r.guard.Lock()
		task, q := r.awaitTaskToRunLocked()
		r.guard.Unlock()

		if task == nil {
			return
		}

		next, completedNormally := r.runTask(q, task)

		r.guard.Lock()
		r.afterRunLocked(q, task, next, completedNormally)
		r.guard.Unlock()

		if !completedNormally {
			return
		}
	}
}

// String renders the runner for debugging.
func (r *TaskRunner) String() string {
	return fmt.Sprintf("TaskRunner(%s)", r.name)
}
