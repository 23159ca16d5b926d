package qrefresh

import (
	"sync"
	"time"
)

/*
RateLimiter caps how often the refresh loop may touch the device. It is a
token bucket: every pass that goes ahead spends a token, and tokens come
back one per refill period up to the burst size. With a 100µs tick and a
cadence near its minimum, the loop would otherwise hammer a slow serial
device with weak measurements.
*/
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
	clock      Clock
}

/*
NewRateLimiter allows bursts of maxTokens passes and adds one token back
every refillRate.
*/
func NewRateLimiter(maxTokens int, refillRate time.Duration, clock Clock) *RateLimiter {
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: clock.Now(),
		clock:      clock,
	}
}

// Observe is a no-op; the bucket only depends on time.
func (rl *RateLimiter) Observe(*Metrics) {}

// Limit spends a token, reporting true when none was left.
func (rl *RateLimiter) Limit() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens > 0 {
		rl.tokens--
		return false
	}
	return true
}

// Renormalize refills the bucket for the time elapsed since the last refill.
func (rl *RateLimiter) Renormalize() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
}

// Tokens reports the passes currently allowed without waiting.
func (rl *RateLimiter) Tokens() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// refill expects rl.mu to be held.
func (rl *RateLimiter) refill() {
	periods := rl.clock.Now().Sub(rl.lastRefill) / rl.refillRate
	if periods <= 0 {
		return
	}

	rl.tokens = min(rl.maxTokens, rl.tokens+int(periods))
	rl.lastRefill = rl.lastRefill.Add(periods * rl.refillRate)
}
