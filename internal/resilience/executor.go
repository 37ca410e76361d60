package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// ExecutorConfig holds configuration for an Executor.
type ExecutorConfig struct {
	// Name identifies the protected sink.
	Name string

	// Timeout bounds each attempt.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts after the first.
	// Default: 3
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 200ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 5 seconds
	MaxInterval time.Duration

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig
}

// DefaultExecutorConfig returns sensible defaults for a sink executor.
func DefaultExecutorConfig(name string) ExecutorConfig {
	cb := DefaultCircuitBreakerConfig(name)
	return ExecutorConfig{
		Name:            name,
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CircuitBreaker:  &cb,
	}
}

// Executor runs operations through a circuit breaker with retries and keeps
// the outcome of the last call.
type Executor struct {
	config  ExecutorConfig
	breaker *gobreaker.CircuitBreaker[struct{}]

	mu            sync.RWMutex
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewExecutor creates an Executor. Zero fields of cfg take their defaults.
func NewExecutor(cfg ExecutorConfig) *Executor {
	defaults := DefaultExecutorConfig(cfg.Name)
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = defaults.InitialInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = defaults.MaxInterval
	}
	if cfg.CircuitBreaker == nil {
		cfg.CircuitBreaker = defaults.CircuitBreaker
	}

	return &Executor{
		config:  cfg,
		breaker: NewCircuitBreaker[struct{}](*cfg.CircuitBreaker),
	}
}

// Name returns the protected sink name.
func (e *Executor) Name() string {
	return e.config.Name
}

// Execute runs op until it succeeds, the retries are exhausted or ctx ends.
// Errors wrapped with backoff.Permanent are not retried. Returns
// ErrCircuitOpen without calling op while the breaker is open.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.config.InitialInterval
	bo.MaxInterval = e.config.MaxInterval
	bo.MaxElapsedTime = 0

	operation := func() error {
		_, err := e.breaker.Execute(func() (struct{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
			defer cancel()
			return struct{}{}, op(attemptCtx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, e.config.MaxRetries), ctx))
	e.record(err)
	return err
}

func (e *Executor) record(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	if err == nil {
		e.lastSuccessAt = &now
		return
	}
	e.lastFailureAt = &now
	e.lastError = err.Error()
}

// Health reports the breaker state and the last outcomes.
func (e *Executor) Health() *SinkHealth {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return &SinkHealth{
		Name:          e.config.Name,
		CircuitState:  e.breaker.State(),
		Counts:        e.breaker.Counts(),
		LastSuccessAt: e.lastSuccessAt,
		LastFailureAt: e.lastFailureAt,
		LastError:     e.lastError,
	}
}

// SinkHealth represents the health status of a sink.
type SinkHealth struct {
	Name          string
	CircuitState  gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// IsHealthy returns true if the circuit is closed.
func (h *SinkHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded returns true if the circuit is half-open.
func (h *SinkHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}
