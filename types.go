package taskhttp

import (
	"github.com/hexacore-go/taskhttp/core"
	"github.com/hexacore-go/taskhttp/http1"
)

// Re-export the most commonly used core and http1 identifiers for
// convenience, so callers that only need the everyday surface can import
// a single package.

type (
	// Task is the unit of work scheduled onto a TaskQueue.
	Task = core.Task

	// TaskQueue runs its scheduled tasks strictly sequentially.
	TaskQueue = core.TaskQueue

	// TaskRunner owns a set of TaskQueues and the workers that drain them.
	TaskRunner = core.TaskRunner

	// RunnerConfig configures a TaskRunner's optional collaborators.
	RunnerConfig = core.RunnerConfig

	// Backend abstracts wall-clock time and goroutine dispatch so tests
	// can substitute a virtual clock.
	Backend = core.Backend

	// Logger is the structured logging sink used throughout this module.
	Logger = core.Logger

	// Metrics receives scheduler observability events.
	Metrics = core.Metrics

	// PanicHandler is invoked when a scheduled task panics.
	PanicHandler = core.PanicHandler

	// RunnerStats and QueueStats are point-in-time scheduler snapshots.
	RunnerStats = core.RunnerStats
	QueueStats  = core.QueueStats

	// TaskExecutionRecord is one entry of a TaskRunner's execution history.
	TaskExecutionRecord = core.TaskExecutionRecord
)

// NoMoreRuns is the RunOnce return value meaning "do not reschedule me."
const NoMoreRuns = core.NoMoreRuns

var (
	// NewTaskRunner creates a TaskRunner. A nil Backend uses a production
	// GoroutineBackend.
	NewTaskRunner = core.NewTaskRunner

	// NewTask builds a Task from a name and a RunOnce closure.
	NewTask = core.NewTask

	// NewGoroutineBackend creates the production Backend.
	NewGoroutineBackend = core.NewGoroutineBackend

	// NewFakeBackend creates a virtual-clock Backend for deterministic tests.
	NewFakeBackend = core.NewFakeBackend

	// NewDefaultLogger creates the module's default structured logger.
	NewDefaultLogger = core.NewDefaultLogger
)

// ExecuteAndReply runs work on target and delivers its result to reply.
func ExecuteAndReply[T any](target *TaskQueue, delayNanos int64, work func() (T, error), reply *TaskQueue, callback func(T, error)) (*Task, error) {
	return core.ExecuteAndReply(target, delayNanos, work, reply, callback)
}

type (
	// Http1ExchangeCodec drives one socket through one HTTP/1.1
	// request/response exchange.
	Http1ExchangeCodec = http1.Http1ExchangeCodec

	// Request and Response are the codec's wire-level request/response
	// descriptions.
	Request  = http1.Request
	Response = http1.Response

	// Carrier is the connection-layer collaborator notified of routing,
	// failures, and connection reuse decisions.
	Carrier = http1.Carrier

	// CookieJar receives the response trailers the codec forwards for
	// cookie handling.
	CookieJar = http1.CookieJar

	// Trailers carries the trailer header block of a response body, or the
	// http1.Truncated sentinel if the body could not be fully drained.
	Trailers = http1.Trailers

	// Options configures an Http1ExchangeCodec.
	Options = http1.Options

	// State is one state of the exchange codec's state machine.
	State = http1.State
)

var (
	// NewHttp1ExchangeCodec creates a codec bound to socket and carrier.
	NewHttp1ExchangeCodec = http1.NewHttp1ExchangeCodec

	// Truncated is the sentinel Trailers value meaning the body ended
	// abnormally (premature EOF, malformed framing, or an early close that
	// could not drain the rest).
	Truncated = http1.Truncated
)
