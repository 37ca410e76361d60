package resilience_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloclimat/veloclimat/internal/resilience"
)

func fastConfig(name string, failures uint32) resilience.ExecutorConfig {
	cb := resilience.DefaultCircuitBreakerConfig(name)
	cb.ConsecutiveFailures = failures
	return resilience.ExecutorConfig{
		Name:            name,
		Timeout:         time.Second,
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		CircuitBreaker:  &cb,
	}
}

func TestExecutor_RetriesUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	exec := resilience.NewExecutor(fastConfig("nats", 100))

	err := exec.Execute(context.Background(), func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())

	health := exec.Health()
	assert.True(t, health.IsHealthy())
	assert.NotNil(t, health.LastSuccessAt)
}

func TestExecutor_PermanentErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	exec := resilience.NewExecutor(fastConfig("clickhouse", 100))
	cause := errors.New("bad schema")

	err := exec.Execute(context.Background(), func(context.Context) error {
		attempts.Add(1)
		return backoff.Permanent(cause)
	})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, "bad schema", exec.Health().LastError)
}

func TestExecutor_CircuitOpens(t *testing.T) {
	var attempts atomic.Int32
	exec := resilience.NewExecutor(fastConfig("ledger", 2))

	err := exec.Execute(context.Background(), func(context.Context) error {
		attempts.Add(1)
		return errors.New("down")
	})

	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, gobreaker.StateOpen, exec.Health().CircuitState)

	err = exec.Execute(context.Background(), func(context.Context) error {
		attempts.Add(1)
		return nil
	})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestExecutor_AttemptTimeout(t *testing.T) {
	cfg := fastConfig("slow", 100)
	cfg.Timeout = 10 * time.Millisecond
	cfg.MaxRetries = 1
	exec := resilience.NewExecutor(cfg)

	err := exec.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewExecutor_Defaults(t *testing.T) {
	exec := resilience.NewExecutor(resilience.ExecutorConfig{Name: "x"})
	assert.Equal(t, "x", exec.Name())
	assert.Equal(t, gobreaker.StateClosed, exec.Health().CircuitState)
}
