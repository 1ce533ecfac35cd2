package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"oficiogen/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		RetryTimeout:     time.Minute,
	}, logger.Discard())
	cb.now = func() time.Time { return now }

	ctx := context.Background()
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())

	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", FailureThreshold: 1, RetryTimeout: time.Second}, logger.Discard())
	cb.now = func() time.Time { return now }

	ctx := context.Background()
	_ = cb.Execute(ctx, fail)
	now = now.Add(2 * time.Second)
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, StateOpen, cb.GetState())
	assert.Equal(t, uint64(2), cb.GetMetrics()["open_circuit_count"])
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	errUser := errors.New("user error")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, errUser) },
	}, logger.Discard())

	err := cb.Execute(context.Background(), func(context.Context) error { return errUser })
	assert.ErrorIs(t, err, errUser)
	assert.Equal(t, StateClosed, cb.GetState())
}
