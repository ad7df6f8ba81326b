package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"textreply/backend/pkg/logger"
)

// ErrCircuitOpen is returned by Execute while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit open")

// OpenError is the rejection returned while the breaker is open. It matches
// ErrCircuitOpen and also wraps the failure that last opened the circuit.
type OpenError struct {
	Name string
	Last error
}

func (e *OpenError) Error() string {
	if e.Last == nil {
		return ErrCircuitOpen.Error()
	}
	return fmt.Sprintf("%s: %v", ErrCircuitOpen, e.Last)
}

func (e *OpenError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrCircuitOpen}
	}
	return []error{ErrCircuitOpen, e.Last}
}

// State is the current mode of a circuit breaker
type State string

const (
	// StateClosed lets every call through
	StateClosed State = "closed"
	// StateOpen rejects calls until the retry timeout passes
	StateOpen State = "open"
	// StateHalfOpen lets a limited number of trial calls through
	StateHalfOpen State = "half-open"
)

// Config holds configuration for a circuit breaker
type Config struct {
	Name             string
	FailureThreshold uint
	SuccessThreshold uint
	RetryTimeout     time.Duration
	// IsFailure decides which errors count against the dependency. Nil counts
	// every error.
	IsFailure func(error) bool
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RetryTimeout:     30 * time.Second,
	}
}

// Stats is a snapshot of breaker counters
type Stats struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	TotalRequests   uint64    `json:"totalRequests"`
	TotalFailures   uint64    `json:"totalFailures"`
	TotalRejected   uint64    `json:"totalRejected"`
	TimesOpened     uint64    `json:"timesOpened"`
	LastFailureTime time.Time `json:"lastFailureTime"`
}

// CircuitBreaker stops calling a failing dependency for a while after
// FailureThreshold consecutive failures.
type CircuitBreaker struct {
	cfg Config
	log *logger.Logger
	now func() time.Time

	mu              sync.Mutex
	state           State
	failureCount    uint
	successCount    uint
	inFlightProbes  uint
	nextAttemptTime time.Time
	lastErr         error
	stats           Stats
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cfg Config, log *logger.Logger) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CircuitBreaker{
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		state: StateClosed,
		stats: Stats{Name: cfg.Name},
	}
}

// Execute runs fn unless the breaker is open. Context cancellation by the
// caller does not count as a failure of the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if ok, last := cb.allow(); !ok {
		cb.log.Warn("Circuit breaker rejecting call", "name", cb.cfg.Name)
		return &OpenError{Name: cb.cfg.Name, Last: last}
	}

	start := cb.now()
	err := fn(ctx)

	switch {
	case err == nil:
		cb.onSuccess()
	case ctx.Err() != nil:
		cb.release()
	case cb.cfg.IsFailure != nil && !cb.cfg.IsFailure(err):
		cb.release()
	default:
		cb.onFailure(err)
		cb.log.Warn("Circuit breaker recorded failure",
			"name", cb.cfg.Name,
			"error", err.Error(),
			"duration", cb.now().Sub(start).String(),
		)
	}
	return err
}

func (cb *CircuitBreaker) allow() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.stats.TotalRequests++

	if cb.state == StateOpen && !cb.now().Before(cb.nextAttemptTime) {
		cb.state = StateHalfOpen
		cb.successCount = 0
		cb.inFlightProbes = 0
		cb.log.Info("Circuit breaker half-open", "name", cb.cfg.Name)
	}

	switch cb.state {
	case StateClosed:
		return true, nil
	case StateHalfOpen:
		if cb.successCount+cb.inFlightProbes < cb.cfg.SuccessThreshold {
			cb.inFlightProbes++
			return true, nil
		}
	}

	cb.stats.TotalRejected++
	return false, cb.lastErr
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.inFlightProbes--
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.lastErr = nil
			cb.log.Info("Circuit breaker closed", "name", cb.cfg.Name)
		}
	}
}

func (cb *CircuitBreaker) onFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastErr = err
	cb.stats.TotalFailures++
	cb.stats.LastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.open()
		}
	case StateHalfOpen:
		cb.inFlightProbes--
		cb.open()
	}
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.inFlightProbes > 0 {
		cb.inFlightProbes--
	}
}

// open must be called with mu held.
func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.stats.TimesOpened++
	cb.nextAttemptTime = cb.now().Add(cb.cfg.RetryTimeout)

	cb.log.Info("Circuit breaker opened",
		"name", cb.cfg.Name,
		"failures", cb.failureCount,
		"nextAttempt", cb.nextAttemptTime.Format(time.RFC3339),
	)
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a copy of the breaker counters
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := cb.stats
	s.State = cb.state
	return s
}
