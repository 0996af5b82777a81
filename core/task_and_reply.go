package core

// ExecuteAndReply runs work on target and, if it returns without panicking,
// posts callback with its result to reply. If work panics, the panic is
// handled by target's runner exactly like any other task panic and callback
// is never invoked — there is no result to deliver.
//
// The happens-before relationship between work and callback is guaranteed by
// sequencing: callback is only scheduled after work has returned.
func ExecuteAndReply[T any](target *TaskQueue, delayNanos int64, work func() (T, error), reply *TaskQueue, callback func(T, error)) (*Task, error) {
	task := NewTask("execute-and-reply", func() int64 {
		result, err := work()
		if _, replyErr := reply.Execute("execute-and-reply-callback", 0, func() {
			callback(result, err)
		}); replyErr != nil {
			// reply queue already shut down; drop the callback rather than
			// erroring the (already-completed) originating task.
		}
		return NoMoreRuns
	})
	if err := target.Schedule(task, delayNanos); err != nil {
		return nil, err
	}
	return task, nil
}
