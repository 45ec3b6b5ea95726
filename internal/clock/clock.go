// Package clock abstracts time so that rate limiting, backoff waits and
// scheduled retries can be driven deterministically in tests.
package clock

import "time"

// Clock provides the current time and timers.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration

	// NewTimer creates a Timer that fires once on its channel after d.
	NewTimer(d time.Duration) Timer

	// AfterFunc calls f in its own goroutine after d. The returned Timer
	// has a nil channel.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the subset of *time.Timer used by this module.
type Timer interface {
	// C returns the channel on which the time is delivered.
	C() <-chan time.Time

	// Stop prevents the Timer from firing. It reports whether the call
	// stopped the timer.
	Stop() bool

	// Reset changes the timer to expire after d. It reports whether the
	// timer had been active.
	Reset(d time.Duration) bool
}

// Real is the Clock backed by the time package.
type Real struct{}

// New returns the wall clock.
func New() Clock {
	return Real{}
}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// Since returns time.Since(t).
func (Real) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// NewTimer wraps time.NewTimer.
func (Real) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return &realTimer{t: time.AfterFunc(d, f)}
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) C() <-chan time.Time {
	return r.t.C
}

func (r *realTimer) Stop() bool {
	return r.t.Stop()
}

func (r *realTimer) Reset(d time.Duration) bool {
	return r.t.Reset(d)
}
