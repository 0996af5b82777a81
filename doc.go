// Package taskhttp provides a Chromium-inspired cooperative task scheduler
// (package core) and a strict HTTP/1.1 request/response exchange codec
// (package http1), built around one shared discipline: every piece of
// mutable state lives behind exactly one lock, and the thing guarding it
// rejects anything out of order rather than quietly coping with it.
//
// # Task scheduling
//
// A TaskRunner owns a set of TaskQueues. Tasks scheduled on the same queue
// run strictly sequentially; tasks on different queues run concurrently,
// each picked up by a worker as soon as it becomes eligible.
//
//	runner := core.NewTaskRunner(core.RunnerConfig{Name: "fetcher"}, nil)
//	queue := runner.NewQueue("downloads")
//	queue.Execute("report-ready", 0, func() {
//		// runs exactly once, never overlapping with other tasks on this queue
//	})
//
// Delayed and recurring work schedule through the same NewTask/RunOnce
// shape: returning core.NoMoreRuns retires the task, any other value
// reschedules it that many nanoseconds out.
//
// # HTTP/1.1 exchange codec
//
// Http1ExchangeCodec drives one socket through exactly one request/response
// lifecycle: write request headers, stream the request body, read response
// headers (possibly several 1xx interim sets first), then stream the
// response body through whichever of the three lazy sources matches how
// its length was framed.
//
//	codec := http1.NewHttp1ExchangeCodec(socket, carrier, cookieJar, http1.Options{})
//	codec.WriteRequestHeaders(req)
//	codec.FinishRequest()
//	resp, _ := codec.ReadResponseHeaders(false)
//	body, _ := codec.OpenResponseBodySource(resp)
//
// For more details, see https://github.com/hexacore-go/taskhttp
package taskhttp
