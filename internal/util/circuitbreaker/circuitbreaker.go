// Package circuitbreaker implements the CLOSED/OPEN/HALF_OPEN state
// machine used to short-circuit calls to an unreliable external
// collaborator (the Tier 4 external-metric correlation source), grounded
// on original_source/src/utils/circuit_breaker.{hpp,cpp}.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker tracks consecutive failures and trips open past a threshold,
// probing again after a timeout.
type Breaker struct {
	mu                  sync.Mutex
	threshold           int
	timeout             time.Duration
	state               State
	consecutiveFailures int
	openedAt            time.Time
	now                 func() time.Time
}

// New creates a Breaker that opens after threshold consecutive failures
// and stays open for timeout; after that, Allow moves it to HALF_OPEN and
// lets calls through until the next recorded success or failure.
func New(threshold int, timeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &Breaker{
		threshold: threshold,
		timeout:   timeout,
		state:     Closed,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed, transitioning OPEN->HALF_OPEN
// when the timeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) >= b.timeout {
			b.state = HalfOpen
			return true
		}
		return false
	case HalfOpen:
		return true
	default:
		return true
	}
}

// RecordSuccess reports a successful call. In HALF_OPEN this closes the
// breaker; in CLOSED it resets the failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.state = Closed
}

// RecordFailure reports a failed call. In HALF_OPEN this reopens the
// breaker immediately; in CLOSED it trips to OPEN once consecutive
// failures reach the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.state = Open
		b.openedAt = b.now()
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.threshold {
			b.state = Open
			b.openedAt = b.now()
		}
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current streak of failures recorded
// while CLOSED.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}
