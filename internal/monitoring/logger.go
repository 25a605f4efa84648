package monitoring

import (
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// EveryN rate-limits a recurring notice by call count. Allow reports true
// on the 1st, (N+1)th, (2N+1)th, ... call. A zero or negative N allows
// every call.
type EveryN struct {
	N int

	mu    sync.Mutex
	calls int
}

// NewEveryN returns a limiter that fires once per n calls.
func NewEveryN(n int) *EveryN {
	return &EveryN{N: n}
}

// Allow counts one call and reports whether the notice should be emitted.
func (e *EveryN) Allow() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	fire := e.N <= 1 || e.calls%e.N == 0
	e.calls++
	return fire
}

// Calls returns how many times Allow has been called.
func (e *EveryN) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Logf emits the formatted notice through the package logger when the
// limiter allows it. It returns whether the notice was emitted.
func (e *EveryN) Logf(format string, v ...interface{}) bool {
	if !e.Allow() {
		return false
	}
	Logf(format, v...)
	return true
}
