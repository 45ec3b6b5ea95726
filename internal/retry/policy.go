package retry

import (
	"math"
	"time"
)

// Policy computes exponential backoff delays: Base * 2^attempt.
type Policy struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Max caps the delay when positive.
	Max time.Duration
}

// NewPolicy returns an uncapped Policy with the given base.
func NewPolicy(base time.Duration) Policy {
	return Policy{Base: base}
}

// NextDelay returns the delay to wait after the given 0-based attempt.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(p.Base) * math.Pow(2, float64(attempt))
	if delay >= math.MaxInt64 {
		delay = math.MaxInt64
	}

	d := time.Duration(delay)
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}
