package core

import "fmt"

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task's RunOnce panics. Implementations must
// be safe to call concurrently from any worker goroutine.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - runnerName: the name of the TaskRunner the task ran on
	// - taskName: the Name of the task that panicked
	// - panicInfo: the recovered panic value
	// - stackTrace: the stack trace captured at the time of the panic
	HandlePanic(runnerName, taskName string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panic information through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic at Error level.
func (h *DefaultPanicHandler) HandlePanic(runnerName, taskName string, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("runner", runnerName),
		F("task", taskName),
		F("panic", fmt.Sprintf("%v", panicInfo)),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler metrics.
// Implementations can forward these to Prometheus, StatsD, etc. All methods
// must be non-blocking and safe for concurrent use; a nil Metrics value is
// never passed to user code (NilMetrics is substituted instead).
type Metrics interface {
	// RecordTaskDuration records how long a task's RunOnce took.
	RecordTaskDuration(runnerName, taskName string, durationNanos int64)

	// RecordTaskPanic records that a task panicked.
	RecordTaskPanic(runnerName string, panicInfo any)

	// RecordQueueDepth records the current size of a queue's futureTasks.
	RecordQueueDepth(runnerName, queueName string, depth int)

	// RecordCoordinatorWait records that a worker became the coordinator
	// and the deadline, in nanoseconds from now, it waited for.
	RecordCoordinatorWait(runnerName string, deadlineNanos int64)
}

// NilMetrics discards everything. It is the default when no Metrics is
// configured.
type NilMetrics struct{}

func (NilMetrics) RecordTaskDuration(runnerName, taskName string, durationNanos int64) {}
func (NilMetrics) RecordTaskPanic(runnerName string, panicInfo any)                    {}
func (NilMetrics) RecordQueueDepth(runnerName, queueName string, depth int)            {}
func (NilMetrics) RecordCoordinatorWait(runnerName string, deadlineNanos int64)        {}

// =============================================================================
// RunnerConfig: Configuration for TaskRunner
// =============================================================================

// RunnerConfig bundles TaskRunner's optional collaborators. All fields are
// optional; zero values fall back to no-op defaults.
type RunnerConfig struct {
	// Name identifies the runner in logs and metrics.
	Name string

	// Logger receives diagnostic messages. Defaults to NewDefaultLogger().
	Logger Logger

	// Metrics receives scheduler metrics. Defaults to NilMetrics.
	Metrics Metrics

	// PanicHandler is invoked when a task panics. Defaults to
	// DefaultPanicHandler using Logger.
	PanicHandler PanicHandler

	// HistoryCapacity bounds the in-memory task execution history ring
	// buffer. Zero uses defaultTaskHistoryCapacity.
	HistoryCapacity int
}
