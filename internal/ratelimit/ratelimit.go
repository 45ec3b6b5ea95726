// Package ratelimit provides the process-wide token bucket that throttles
// calls to the quota-limited LLM service.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/traqcheck/bgv-agent/internal/clock"
	"github.com/traqcheck/bgv-agent/internal/metrics"
)

var (
	// ErrInvalidCapacity is returned when the capacity is not positive.
	ErrInvalidCapacity = errors.New("rate limit capacity must be positive")

	// ErrInvalidWindow is returned when the window is not positive.
	ErrInvalidWindow = errors.New("rate limit window must be positive")
)

// Limiter is a token bucket granting at most capacity permits per window.
//
// Tokens are refilled lazily on every acquisition attempt: a full refill once
// a whole window has elapsed since the last refill, otherwise a proportional
// partial refill. All state is guarded by a single mutex which is never held
// while a caller waits.
type Limiter struct {
	mu         sync.Mutex
	capacity   int
	window     time.Duration
	tokens     int
	lastRefill time.Time
	clock      clock.Clock
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the clock used for refills and waits.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// New creates a Limiter that starts with a full bucket.
func New(capacity int, window time.Duration, opts ...Option) (*Limiter, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if window <= 0 {
		return nil, ErrInvalidWindow
	}

	l := &Limiter{
		capacity: capacity,
		window:   window,
		tokens:   capacity,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastRefill = l.clock.Now()

	return l, nil
}

// Acquire takes one permit.
//
// With blocking=false it returns immediately and reports whether a permit
// was granted. With blocking=true it sleeps until the current window closes
// and tries again, repeating when another waiter took the refilled permit
// first. A blocking call only returns false when ctx ends, in which case the
// context error is returned as well.
func (l *Limiter) Acquire(ctx context.Context, blocking bool) (bool, error) {
	var waited time.Duration
	for {
		granted, wait := l.take()
		if granted {
			metrics.RateLimitAcquisitions.WithLabelValues("granted").Inc()
			if waited > 0 {
				metrics.RateLimitWait.Observe(waited.Seconds())
			}
			return true, nil
		}

		if !blocking {
			metrics.RateLimitAcquisitions.WithLabelValues("denied").Inc()
			return false, nil
		}

		timer := l.clock.NewTimer(wait)
		select {
		case <-timer.C():
			waited += wait
		case <-ctx.Done():
			timer.Stop()
			metrics.RateLimitAcquisitions.WithLabelValues("canceled").Inc()
			return false, ctx.Err()
		}
	}
}

// TryAcquire is Acquire without blocking.
func (l *Limiter) TryAcquire() bool {
	granted, _ := l.Acquire(context.Background(), false)
	return granted
}

// Available returns the number of permits that could be taken right now.
func (l *Limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked(l.clock.Now())
	return l.tokens
}

// Capacity returns the bucket size.
func (l *Limiter) Capacity() int {
	return l.capacity
}

// Window returns the refill window.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// take refills the bucket and takes a token if one is available. When none
// is, it returns the time left until the current window closes.
func (l *Limiter) take() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.refillLocked(now)

	if l.tokens > 0 {
		l.tokens--
		return true, 0
	}

	return false, l.window - now.Sub(l.lastRefill)
}

func (l *Limiter) refillLocked(now time.Time) {
	elapsed := now.Sub(l.lastRefill)
	if elapsed >= l.window {
		l.tokens = l.capacity
		l.lastRefill = now
		return
	}
	if elapsed <= 0 {
		return
	}

	// lastRefill only moves when tokens were added, otherwise short gaps
	// between calls would never accumulate into a whole token.
	added := int(int64(l.capacity) * int64(elapsed) / int64(l.window))
	if added > 0 {
		l.tokens = min(l.tokens+added, l.capacity)
		l.lastRefill = now
	}
}
