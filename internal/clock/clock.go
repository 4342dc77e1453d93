// Package clock abstracts time so reconnect scheduling can be driven by a
// virtual clock in tests.
//
// Production code uses Real(). Tests use Fake() and move time forward with
// Advance; AfterFunc callbacks then fire synchronously in deadline order.
package clock

import "time"

// Clock is the subset of the time package the stream client depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f after d has elapsed. The returned Timer can
	// cancel the call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a cancellable scheduled call.
type Timer struct {
	stop func() bool
}

// Stop prevents the call from running. It returns false if the call has
// already run or was already stopped.
func (t *Timer) Stop() bool { return t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stop: t.Stop}
}
