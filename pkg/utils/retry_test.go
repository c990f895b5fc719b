package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func TestRetryWithResultSucceedsAfterFailures(t *testing.T) {
	var retried []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		retried = append(retried, attempt)
	}

	got, err := RetryWithResult(context.Background(), cfg, func(attempt int) (string, error) {
		if attempt < 3 {
			return "", errors.New("boom")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetryReturnsLastError(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(3), func(attempt int) (int, error) {
		calls++
		return 0, errors.New("attempt failed")
	})

	assert.EqualError(t, err, "attempt failed")
	assert.Equal(t, 3, calls)
}

func TestRetryStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 1}

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := RetryWithResult(ctx, cfg, func(attempt int) (string, error) {
			calls++
			return "", errors.New("unavailable")
		})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
		assert.LessOrEqual(t, calls, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not stop after cancellation")
	}
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, time.Second, CalculateBackoff(0, time.Second, 10*time.Second, 2))
	assert.Equal(t, 2*time.Second, CalculateBackoff(1, time.Second, 10*time.Second, 2))
	assert.Equal(t, 4*time.Second, CalculateBackoff(2, time.Second, 10*time.Second, 2))
	assert.Equal(t, 10*time.Second, CalculateBackoff(8, time.Second, 10*time.Second, 2))
}
