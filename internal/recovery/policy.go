package recovery

import (
	"math"
	"time"
)

// RetryPolicy decides whether another attempt is allowed and how long to
// wait before it.
type RetryPolicy interface {
	// ShouldRetry reports whether a retry is permitted after retryCount
	// prior retries.
	ShouldRetry(retryCount int) bool

	// Delay returns the backoff before retry number retryCount.
	Delay(retryCount int) time.Duration

	// MaxAttempts returns the retry budget for this policy.
	MaxAttempts() int
}

// ExponentialBackoff retries with base*factor^n delays capped at MaxDelay.
type ExponentialBackoff struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
}

// ShouldRetry permits retries while the attempt budget remains.
func (p ExponentialBackoff) ShouldRetry(retryCount int) bool {
	return retryCount < p.Attempts
}

// Delay computes the capped exponential backoff for a retry.
func (p ExponentialBackoff) Delay(retryCount int) time.Duration {
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(p.Factor, float64(retryCount)))
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// MaxAttempts returns the retry budget.
func (p ExponentialBackoff) MaxAttempts() int { return p.Attempts }

// Immediate retries without delay up to a fixed attempt count. An Attempts
// of zero means never retry.
type Immediate struct {
	Attempts int
}

// ShouldRetry permits retries while the attempt budget remains.
func (p Immediate) ShouldRetry(retryCount int) bool {
	return retryCount < p.Attempts
}

// Delay is always zero.
func (p Immediate) Delay(retryCount int) time.Duration { return 0 }

// MaxAttempts returns the retry budget.
func (p Immediate) MaxAttempts() int { return p.Attempts }

// defaultPolicies is the fixed per-category retry table.
func defaultPolicies() map[Category]RetryPolicy {
	return map[Category]RetryPolicy{
		CategoryTTSGeneration:    ExponentialBackoff{Attempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 60 * time.Second, Factor: 2},
		CategoryFileProcessing:   Immediate{Attempts: 2},
		CategoryFormatConversion: ExponentialBackoff{Attempts: 2, BaseDelay: time.Second, MaxDelay: 60 * time.Second, Factor: 2},
		CategoryNetwork:          ExponentialBackoff{Attempts: 5, BaseDelay: time.Second, MaxDelay: 60 * time.Second, Factor: 2},
		CategoryResource:         ExponentialBackoff{Attempts: 3, BaseDelay: 5 * time.Second, MaxDelay: 60 * time.Second, Factor: 2},
		CategoryValidation:       Immediate{Attempts: 0},
		CategoryUnknown:          ExponentialBackoff{Attempts: 2, BaseDelay: time.Second, MaxDelay: 60 * time.Second, Factor: 2},
	}
}
