// Package retry computes retry eligibility and backoff delay. It holds no
// state and performs no I/O: the processor calls it synchronously around
// each failed attempt.
package retry

import (
	"math"
	"time"
)

// DelayFunc computes the delay before attempt retryCount (0-based, the
// attempt number that is about to be retried) given a base delay. The
// contract requires DelayFunc(base, 0) == base.
type DelayFunc func(base time.Duration, retryCount int) time.Duration

// Policy bundles the knobs RetryPolicy needs: whether retries are enabled
// at all (a global kill switch, grounded on the teacher's
// RetryConfig{MaxRetries, BaseDelay, MaxDelay} shape), the base delay, a cap,
// and the shape of the backoff curve.
type Policy struct {
	Enabled   bool
	BaseDelay time.Duration
	MaxDelay  time.Duration
	DelayFunc DelayFunc // nil selects ExponentialBackoff
}

// ShouldRetry implements spec.md 4.4: enabled AND handlerShouldRetry AND
// retryCount < maxRetries.
func ShouldRetry(enabled bool, retryCount, maxRetries int, handlerShouldRetry bool) bool {
	return enabled && handlerShouldRetry && retryCount < maxRetries
}

// ComputeDelay returns the delay before the attempt numbered retryCount,
// clamped to p.MaxDelay when positive. Falls back to ExponentialBackoff
// when no DelayFunc is configured.
func (p Policy) ComputeDelay(retryCount int) time.Duration {
	fn := p.DelayFunc
	if fn == nil {
		fn = ExponentialBackoff
	}
	d := fn(p.BaseDelay, retryCount)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// ExponentialBackoff doubles the delay per attempt: base, 2*base, 4*base...
// ExponentialBackoff(base, 0) == base, satisfying the contract.
func ExponentialBackoff(base time.Duration, retryCount int) time.Duration {
	if retryCount <= 0 {
		return base
	}
	multiplier := math.Pow(2, float64(retryCount))
	return time.Duration(float64(base) * multiplier)
}

// LinearBackoff grows the delay by one base unit per attempt: base, 2*base,
// 3*base... LinearBackoff(base, 0) == base, satisfying the contract.
func LinearBackoff(base time.Duration, retryCount int) time.Duration {
	return base * time.Duration(retryCount+1)
}
