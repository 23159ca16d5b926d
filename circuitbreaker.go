package qrefresh

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

/*
CircuitState represents the state of the circuit breaker.
*/
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // device healthy, commands flow
	CircuitOpen                         // device failing, refresh work is skipped
	CircuitHalfOpen                     // testing whether the device recovered
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

/*
CircuitBreaker isolates the refresh loop from a failing device. Without it
a dead link would have the loop burn a full read timeout on every qubit of
every pass. After maxFailures consecutive failures the breaker opens and
the loop skips device work; once resetTimeout has passed it lets up to
halfOpenMax passes try the device again, closing on success and opening
again on failure.
*/
type CircuitBreaker struct {
	mu               sync.RWMutex
	maxFailures      int
	resetTimeout     time.Duration
	halfOpenMax      int
	failureCount     int
	state            CircuitState
	openTime         time.Time
	halfOpenAttempts int
	clock            Clock
	logger           *log.Logger
}

/*
NewCircuitBreaker opens after maxFailures consecutive device failures and
lets halfOpenMax trial passes through once resetTimeout has elapsed on
clock.
*/
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, halfOpenMax int, clock Clock, logger *log.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  max(1, maxFailures),
		resetTimeout: resetTimeout,
		halfOpenMax:  max(1, halfOpenMax),
		state:        CircuitClosed,
		clock:        clock,
		logger:       logger.With("component", "breaker"),
	}
}

/*
Observe also trips the breaker on link-level failure streaks, which
include failures of foreground commands the loop never saw.
*/
func (cb *CircuitBreaker) Observe(metrics *Metrics) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitClosed && metrics.FailureStreak() >= cb.maxFailures {
		cb.state = CircuitOpen
		cb.openTime = cb.clock.Now()
		cb.logger.Warn("device breaker opened on link failures", "streak", metrics.FailureStreak())
	}
}

// Limit holds back a pass while the breaker does not allow one.
func (cb *CircuitBreaker) Limit() bool {
	return !cb.Allow()
}

// Renormalize moves an open breaker to half-open once the reset timeout has passed.
func (cb *CircuitBreaker) Renormalize() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.clock.Now().Sub(cb.openTime) > cb.resetTimeout {
		cb.state = CircuitHalfOpen
		cb.halfOpenAttempts = 0
		cb.logger.Info("device breaker half-open, retrying")
	}
}

// RecordFailure counts a failed device interaction.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++

	switch cb.state {
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.openTime = cb.clock.Now()
		cb.logger.Warn("device breaker reopened from half-open")
	case CircuitClosed:
		if cb.failureCount >= cb.maxFailures {
			cb.state = CircuitOpen
			cb.openTime = cb.clock.Now()
			cb.logger.Warn("device breaker opened", "failures", cb.failureCount)
		}
	}
}

// RecordSuccess counts a device interaction that completed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.halfOpenAttempts++
		if cb.halfOpenAttempts >= cb.halfOpenMax {
			cb.state = CircuitClosed
			cb.failureCount = 0
			cb.halfOpenAttempts = 0
			cb.logger.Info("device breaker closed")
		}
	case CircuitClosed:
		cb.failureCount = 0
	}
}

// Allow determines if device work may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.clock.Now().Sub(cb.openTime) > cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.halfOpenAttempts = 0
			return true
		}
		return false
	case CircuitHalfOpen:
		return cb.halfOpenAttempts < cb.halfOpenMax
	default:
		return false
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}
