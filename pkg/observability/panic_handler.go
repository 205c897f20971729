package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers a panic in the calling goroutine and logs it with its
// stack. It must be deferred directly. The panic is not re-raised.
//
//	defer observability.RecoverPanic(logger, "update scheduler")
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
	}
}

// RecoverPanicWithCallback is RecoverPanic followed by callback, which only runs
// when a panic was recovered
func RecoverPanicWithCallback(logger *Logger, where string, callback func()) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
		if callback != nil {
			callback()
		}
	}
}

func logPanic(logger *Logger, where string, r interface{}) {
	logger.WithField("panic", fmt.Sprint(r)).
		WithField("stack", string(debug.Stack())).
		WithField("context", where).
		Error("PANIC recovered")
}
