package broker

import (
	"fmt"
	"sync"
	"time"

	"github.com/taskflowio/ltq/internal/adapter/observability"
)

// breakerState is where a circuitBreaker sits relative to its own Redis
// connection: closed lets every claim/publish through, open rejects them
// immediately, half-open lets a handful of probes through to decide whether
// to close again.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker trips after maxFailures consecutive failed round-trips to
// Redis and stays open for resetAfter, so a stalled connection doesn't pile
// up blocked goroutines across every worker's poll loop — while it is open,
// call returns an error without running fn.
type circuitBreaker struct {
	name        string
	maxFailures int
	resetAfter  time.Duration
	halfOpenMax int

	mu           sync.Mutex
	state        breakerState
	failures     int
	successCount int
	openedAt     time.Time
}

func newCircuitBreaker(name string, maxFailures int, resetAfter time.Duration) *circuitBreaker {
	return &circuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		resetAfter:  resetAfter,
		halfOpenMax: 3,
	}
}

// call runs fn if the breaker currently allows it, recording the outcome
// against the breaker's state either way.
func (cb *circuitBreaker) call(fn func() error) error {
	cb.mu.Lock()
	if cb.state == breakerOpen && time.Since(cb.openedAt) >= cb.resetAfter {
		cb.state = breakerHalfOpen
		cb.successCount = 0
	}
	if !cb.allowLocked() {
		state := cb.state
		cb.mu.Unlock()
		observability.RecordCircuitBreakerStatus(cb.name, "call", int(state))
		return fmt.Errorf("broker: circuit breaker %s is open", cb.name)
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	cb.updateLocked(err)
	state := cb.state
	cb.mu.Unlock()
	observability.RecordCircuitBreakerStatus(cb.name, "call", int(state))

	return err
}

func (cb *circuitBreaker) allowLocked() bool {
	switch cb.state {
	case breakerClosed:
		return true
	case breakerHalfOpen:
		return cb.successCount < cb.halfOpenMax
	default:
		return false
	}
}

func (cb *circuitBreaker) updateLocked(err error) {
	if err != nil {
		cb.failures++
		cb.openedAt = time.Now()
		if cb.failures >= cb.maxFailures {
			cb.state = breakerOpen
		}
		return
	}

	if cb.state == breakerClosed {
		cb.failures = 0
		return
	}

	if cb.state == breakerHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.halfOpenMax {
			cb.state = breakerClosed
			cb.successCount = 0
			cb.failures = 0
		}
	}
}
