// Package circuitbreaker protects a connection pool's grow path from
// hammering a database that is down with a storm of doomed TCP connects.
// It does not redirect traffic anywhere else — no failover, no replica
// scoring — it only fails fast and probes for recovery.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State is one of the three classic circuit-breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is returned when the circuit rejects a call outright.
var ErrOpen = errors.New("circuitbreaker: circuit is open")

// Config tunes the breaker.
type Config struct {
	// MaxFailures consecutive failures before the circuit opens.
	MaxFailures int
	// Timeout is how long the circuit stays open before probing again.
	Timeout time.Duration
	// MaxRequests allowed through while half-open.
	MaxRequests int
}

// DefaultConfig mirrors the connect-failure tuning recommended in the pool
// configuration surface.
func DefaultConfig() Config {
	return Config{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		MaxRequests: 3,
	}
}

// Breaker implements the circuit breaker pattern around an arbitrary call.
type Breaker struct {
	config Config
	mu     sync.Mutex

	state            State
	failures         int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	halfOpenRequests int

	totalRequests   uint64
	totalSuccesses  uint64
	totalFailures   uint64
	totalRejections uint64
}

// New creates a breaker starting closed.
func New(config Config) *Breaker {
	return &Breaker{config: config, state: StateClosed, lastStateChange: time.Now()}
}

// Call runs fn if the circuit allows it, recording the outcome.
func (b *Breaker) Call(fn func() error) error {
	if err := b.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	b.afterRequest(err)
	return err
}

func (b *Breaker) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.lastFailureTime) > b.config.Timeout {
			b.setStateLocked(StateHalfOpen)
			// This call is the first half-open probe.
			b.halfOpenRequests = 1
			return nil
		}
		b.totalRejections++
		return ErrOpen
	case StateHalfOpen:
		if b.halfOpenRequests >= b.config.MaxRequests {
			b.totalRejections++
			return ErrOpen
		}
		b.halfOpenRequests++
		return nil
	default:
		return nil
	}
}

func (b *Breaker) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailureLocked()
	} else {
		b.onSuccessLocked()
	}
}

func (b *Breaker) onSuccessLocked() {
	b.totalSuccesses++
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		if b.halfOpenRequests >= b.config.MaxRequests {
			b.setStateLocked(StateClosed)
			b.failures = 0
			b.halfOpenRequests = 0
		}
	}
}

func (b *Breaker) onFailureLocked() {
	b.totalFailures++
	b.failures++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.config.MaxFailures {
			b.setStateLocked(StateOpen)
		}
	case StateHalfOpen:
		b.setStateLocked(StateOpen)
	}
}

func (b *Breaker) setStateLocked(state State) {
	if b.state != state {
		b.state = state
		b.lastStateChange = time.Now()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether calls are currently being rejected.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Stats is a snapshot for metrics/admin surfaces.
type Stats struct {
	State            string
	Failures         int
	TotalRequests    uint64
	TotalSuccesses   uint64
	TotalFailures    uint64
	TotalRejections  uint64
	LastStateChange  time.Time
}

// GetStats returns a point-in-time snapshot.
func (b *Breaker) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:           b.state.String(),
		Failures:        b.failures,
		TotalRequests:   b.totalRequests,
		TotalSuccesses:  b.totalSuccesses,
		TotalFailures:   b.totalFailures,
		TotalRejections: b.totalRejections,
		LastStateChange: b.lastStateChange,
	}
}

// Reset forces the breaker back to closed, e.g. from an admin endpoint.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.halfOpenRequests = 0
	b.lastStateChange = time.Now()
}
