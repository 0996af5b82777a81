package core

import "runtime/debug"

// capturePanicStack returns the stack trace of the goroutine currently
// unwinding a panic. Call it only from inside a deferred recover.
func capturePanicStack() []byte {
	return debug.Stack()
}
