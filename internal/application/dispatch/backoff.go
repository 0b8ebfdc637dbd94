package dispatch

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes the delay before retry attempt n (1-based):
// base * 2^(n-1), jittered by a uniform factor in [0.5, 1.5], clamped to
// [base, max].
func Backoff(base, max time.Duration, attempt int) time.Duration {
	return backoffWithJitter(base, max, attempt, 0.5+rand.Float64())
}

func backoffWithJitter(base, max time.Duration, attempt int, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := math.Pow(2, float64(attempt-1))
	withJitter := float64(base) * exp * jitter
	if withJitter < float64(base) {
		return base
	}
	if withJitter > float64(max) {
		return max
	}
	return time.Duration(withJitter)
}
