package router

import "time"

// tokenBucket limits how often a single provider is attempted. It is
// guarded by the router mutex.
type tokenBucket struct {
	rate       float64 // tokens per second
	burst      int
	tokens     float64
	lastRefill time.Time
}

// newTokenBucket returns nil when rate is not positive, meaning unlimited.
func newTokenBucket(rate float64, burst int, now time.Time) *tokenBucket {
	if rate <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &tokenBucket{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastRefill: now,
	}
}

// allow consumes one token if available. A nil bucket always allows.
func (tb *tokenBucket) allow(now time.Time) bool {
	if tb == nil {
		return true
	}

	if elapsed := now.Sub(tb.lastRefill).Seconds(); elapsed > 0 {
		tb.tokens += elapsed * tb.rate
		if tb.tokens > float64(tb.burst) {
			tb.tokens = float64(tb.burst)
		}
	}
	tb.lastRefill = now

	if tb.tokens < 1.0 {
		return false
	}
	tb.tokens -= 1.0
	return true
}
