package crawler

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Default back-off bounds.
const (
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// ExponentialBackoff implements Backoff with jitter: the delay for attempt n
// is drawn from [d/2, d) where d = base * 2^(n-1), capped at max.
type ExponentialBackoff struct {
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewExponentialBackoff builds a policy; non-positive bounds fall back to the
// defaults.
func NewExponentialBackoff(base, maxDelay time.Duration) *ExponentialBackoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if maxDelay <= 0 {
		maxDelay = DefaultBackoffMax
	}
	if maxDelay < base {
		maxDelay = base
	}
	return &ExponentialBackoff{baseDelay: base, maxDelay: maxDelay}
}

// Backoff returns the wait duration after the given failed attempt (>= 1).
// The result is never zero.
func (p *ExponentialBackoff) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	if half <= 0 {
		return time.Duration(delay) + 1
	}
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
