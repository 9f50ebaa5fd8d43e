package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call without contacting the provider.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit is operational and requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit has tripped due to failures and requests are blocked.
	CircuitOpen
	// CircuitHalfOpen means one probe request is in flight.
	CircuitHalfOpen
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

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures before the circuit trips.
	Threshold int
	// ResetAfter is how long the circuit stays open before a probe is allowed.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig returns the defaults used when config leaves them unset.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker trips open after N consecutive provider failures so that a
// dead provider fails requests fast instead of holding each one for the full
// stage timeout.
type CircuitBreaker struct {
	mu               sync.RWMutex
	consecutiveFails int
	threshold        int
	resetAfter       time.Duration
	lastFailure      time.Time
	state            CircuitState
	now              func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.Threshold <= 0 {
		config.Threshold = defaults.Threshold
	}
	if config.ResetAfter <= 0 {
		config.ResetAfter = defaults.ResetAfter
	}
	return &CircuitBreaker{
		threshold:  config.Threshold,
		resetAfter: config.ResetAfter,
		state:      CircuitClosed,
		now:        time.Now,
	}
}

// Allow reports whether a request may proceed. After ResetAfter an open
// circuit lets exactly one probe through.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		since := cb.now().Sub(cb.lastFailure)
		if since > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return nil
		}
		return fmt.Errorf("%w: provider failed %d times, last failure %v ago",
			ErrCircuitOpen, cb.consecutiveFails, since.Round(time.Second))
	case CircuitHalfOpen:
		return fmt.Errorf("%w: probe request in flight", ErrCircuitOpen)
	default:
		return fmt.Errorf("circuit breaker in unknown state: %v", cb.state)
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure increments the failure count and trips the circuit if threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()

	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// ConsecutiveFailures returns the current count of consecutive failures.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.consecutiveFails
}

// GuardedClient routes every call through a CircuitBreaker.
type GuardedClient struct {
	inner   LLMClient
	breaker *CircuitBreaker
}

// NewGuardedClient wraps inner with breaker.
func NewGuardedClient(inner LLMClient, breaker *CircuitBreaker) *GuardedClient {
	return &GuardedClient{inner: inner, breaker: breaker}
}

func (g *GuardedClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, maxTokens int) (*GenerateResponseResult, error) {
	if err := g.breaker.Allow(); err != nil {
		return nil, NewErrorWithContext(ErrorTypeEndpoint, "provider unavailable", false, err, g.inner.GetModel(), g.inner.GetEndpoint(), 0)
	}
	res, err := g.inner.GenerateResponse(ctx, prompt, systemMessage, temperature, maxTokens)
	g.observe(ctx, err)
	return res, err
}

func (g *GuardedClient) GenerateWithImage(ctx context.Context, prompt string, image *ImageInput, systemMessage string, temperature float64, maxTokens int) (*GenerateResponseResult, error) {
	if err := g.breaker.Allow(); err != nil {
		return nil, NewErrorWithContext(ErrorTypeEndpoint, "provider unavailable", false, err, g.inner.GetModel(), g.inner.GetEndpoint(), 0)
	}
	res, err := g.inner.GenerateWithImage(ctx, prompt, image, systemMessage, temperature, maxTokens)
	g.observe(ctx, err)
	return res, err
}

// observe records the outcome. A caller that gave up is not the provider's fault.
func (g *GuardedClient) observe(ctx context.Context, err error) {
	switch {
	case err == nil:
		g.breaker.RecordSuccess()
	case errors.Is(ctx.Err(), context.Canceled):
	default:
		g.breaker.RecordFailure()
	}
}

func (g *GuardedClient) GetModel() string    { return g.inner.GetModel() }
func (g *GuardedClient) GetEndpoint() string { return g.inner.GetEndpoint() }

var _ LLMClient = (*GuardedClient)(nil)
