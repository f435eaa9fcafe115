package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	config := RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	result, err := RetryWithName(context.Background(), config, func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return "done", nil
	}, "test-op")

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	config := RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	boom := errors.New("boom")
	_, err := Retry(context.Background(), config, func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, attempts)
}

func TestRetryRespectsNonRetryableChecker(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig()
	config.InitialBackoff = time.Millisecond
	config.RetryableChecker = func(err error) bool { return false }

	_, err := Retry(context.Background(), config, func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, errors.New("permanent")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, DefaultRetryConfig(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("should not matter")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsRetryableHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 409} {
		assert.False(t, IsRetryableHTTPStatus(code), "status %d", code)
	}
}

func TestCircuitBreakerTripsAndReturnsOpenError(t *testing.T) {
	breaker := NewCircuitBreaker(Settings{
		Name:             "trip-breaker",
		Timeout:          50 * time.Millisecond,
		Interval:         50 * time.Millisecond,
		FailureThreshold: 2,
		SuccessThreshold: 1,
	}, nil)

	ctx := context.Background()
	failing := func(context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	}

	for i := 0; i < 2; i++ {
		_, err := breaker.Execute(ctx, failing)
		require.Error(t, err)
	}

	assert.False(t, breaker.Allow())

	_, err := breaker.Execute(ctx, func(context.Context) (interface{}, error) {
		return "ok", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerPassesThroughOnSuccess(t *testing.T) {
	breaker := NewCircuitBreaker(Settings{
		Name:             "pass-breaker",
		Timeout:          time.Second,
		Interval:         time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 1,
	}, nil)

	result, err := breaker.Execute(context.Background(), func(context.Context) (interface{}, error) {
		return "response", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "response", result)
}

func TestCircuitBreakerFallback(t *testing.T) {
	breaker := NewCircuitBreaker(Settings{
		Name:             "fallback-breaker",
		Timeout:          time.Second,
		Interval:         time.Second,
		FailureThreshold: 1,
		SuccessThreshold: 1,
	}, func(ctx context.Context, err error) (interface{}, error) {
		return "cached", nil
	})

	ctx := context.Background()
	_, _ = breaker.Execute(ctx, func(context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})

	result, err := breaker.Execute(ctx, func(context.Context) (interface{}, error) {
		return "live", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "cached", result)
}

func TestNoopFallbackSurfacesOpenBreaker(t *testing.T) {
	breaker := NewCircuitBreaker(Settings{
		Name:             "noop-breaker",
		Timeout:          time.Second,
		Interval:         time.Second,
		FailureThreshold: 1,
		SuccessThreshold: 1,
	}, NoopFallback)

	ctx := context.Background()
	_, _ = breaker.Execute(ctx, func(context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})

	result, err := breaker.Execute(ctx, func(context.Context) (interface{}, error) {
		return "live", nil
	})

	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Nil(t, result)
}
