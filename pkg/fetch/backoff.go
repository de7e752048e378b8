package fetch

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy calculates the delay before a retry.
// Implementations must be safe for concurrent use.
type BackoffStrategy interface {
	// NextInterval returns the delay before retry number attempt (1-based).
	NextInterval(attempt int) time.Duration
}

// ExponentialBackoff yields InitialInterval * Multiplier^(attempt-1), capped at
// MaxInterval. Jitter only ever lengthens the delay, so the exponential value is
// a lower bound.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

func (e ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial == 0 {
		initial = DefaultBaseDelay
	}
	maxInterval := e.MaxInterval
	if maxInterval == 0 {
		maxInterval = 30 * time.Second
	}
	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if e.JitterFactor > 0 {
		interval *= 1 + rand.Float64()*e.JitterFactor
	}
	if interval > float64(maxInterval) {
		interval = float64(maxInterval)
	}
	return time.Duration(interval)
}

// FixedBackoff waits the same interval before every retry.
type FixedBackoff struct {
	Interval time.Duration
}

func (f FixedBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return f.Interval
}

// Exponential returns the doubling strategy base, 2*base, 4*base, ... capped at 30s.
func Exponential(base time.Duration) BackoffStrategy {
	return ExponentialBackoff{InitialInterval: base, MaxInterval: 30 * time.Second, Multiplier: 2}
}
