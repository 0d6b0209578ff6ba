package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("busy"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoValHonoursShouldRetryAndExhausts(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("conflict")
	cfg := fastConfig()
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, sentinel) }
	retries := 0
	cfg.OnRetry = func(int, error) { retries++ }

	calls := 0
	val, err := DoVal(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return calls, sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Zero(t, val)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestDoValStopsWhenContextDone(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := DoVal(ctx, fastConfig(), func(context.Context) (string, error) {
		calls++
		return "", NewTransientError(errors.New("timeout"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestComputeBackoffIsCapped(t *testing.T) {
	t.Parallel()
	cfg := applyDefaults(RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second})
	assert.Equal(t, time.Second, computeBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, computeBackoff(1, cfg))
	assert.Equal(t, 3*time.Second, computeBackoff(5, cfg))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()
	assert.True(t, IsTransientHTTPStatus(429))
	assert.True(t, IsTransientHTTPStatus(503))
	assert.False(t, IsTransientHTTPStatus(400))
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(errors.New("read: connection reset by peer")))
}
