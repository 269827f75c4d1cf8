// Package circuitbreaker stops calling a failing upstream for a cool-down
// period and probes it again before resuming normal traffic.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Call without running fn while the circuit is open.
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker protects upstream calls by opening after repeated failures
// and allowing probe requests in half-open state.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	openedAt         time.Time
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	component        string
	isFailure        func(error) bool
	onStateChange    func(from, to State)
	now              func() time.Time
}

// Config holds circuit breaker parameters.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	Component        string
	// IsFailure decides whether an error counts toward opening the circuit.
	// Defaults to every non-nil error except caller cancellation.
	IsFailure     func(error) bool
	OnStateChange func(from, to State)
}

// New creates a new CircuitBreaker with the given config.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		component:        cfg.Component,
		isFailure:        cfg.IsFailure,
		onStateChange:    cfg.OnStateChange,
		now:              time.Now,
	}
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Component returns the name the breaker was configured with.
func (cb *CircuitBreaker) Component() string {
	return cb.component
}

// Call runs fn when the circuit allows it. While open it returns ErrOpen until
// the timeout elapses, then moves to half-open and lets probes through.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	var transitions [][2]State

	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.timeout {
			cb.mu.Unlock()
			return ErrOpen
		}
		cb.state = StateHalfOpen
		cb.successCount = 0
		transitions = append(transitions, [2]State{StateOpen, StateHalfOpen})
	}
	cb.mu.Unlock()
	cb.notify(transitions)
	transitions = transitions[:0]

	err := fn(ctx)

	cb.mu.Lock()
	switch {
	case err != nil && cb.isFailure(err):
		cb.failureCount++
		if cb.state == StateHalfOpen || cb.failureCount >= cb.failureThreshold {
			transitions = append(transitions, [2]State{cb.state, StateOpen})
			cb.state = StateOpen
			cb.openedAt = cb.now()
			cb.failureCount = 0
		}
	case err == nil:
		cb.successCount++
		cb.failureCount = 0
		if cb.state == StateHalfOpen && cb.successCount >= cb.successThreshold {
			transitions = append(transitions, [2]State{StateHalfOpen, StateClosed})
			cb.state = StateClosed
			cb.successCount = 0
		}
	}
	cb.mu.Unlock()
	cb.notify(transitions)
	return err
}

// notify runs the state-change hook outside the lock.
func (cb *CircuitBreaker) notify(transitions [][2]State) {
	if cb.onStateChange == nil {
		return
	}
	for _, t := range transitions {
		if t[0] != t[1] {
			cb.onStateChange(t[0], t[1])
		}
	}
}

// State returns the current state (for metrics and health).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
