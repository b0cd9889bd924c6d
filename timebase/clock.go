// Package timebase abstracts wall-clock time and one-shot timers so the
// timer-driven parts of the looper can run against a fake clock in tests.
package timebase

import "time"

// Timer is a cancellable one-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer (false if it already fired or was stopped).
	Stop() bool
}

// Clock supplies the current time and one-shot callbacks.
// Callbacks run on their own goroutine (the "timer context").
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
