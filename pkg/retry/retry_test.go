package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient failure %d", attempts)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	transient := errors.New("still down")

	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		return transient
	})

	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, attempts)
}

func TestDoCancellationIsNotRetried(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		return context.Canceled
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDoRespectsRetryableErrorList(t *testing.T) {
	retryable := errors.New("retryable")
	fatal := errors.New("fatal")

	cfg := fastConfig()
	cfg.RetryableErrors = []error{retryable}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
}

func TestDoWithResultReturnsValue(t *testing.T) {
	attempts := 0

	got, err := DoWithResult(context.Background(), fastConfig(), func() ([]float32, error) {
		attempts++
		if attempts < 2 {
			return nil, fmt.Errorf("transient")
		}
		return []float32{0.1, 0.2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, got)
	assert.Equal(t, 2, attempts)
}

func TestDoWithResultPropagatesFailure(t *testing.T) {
	boom := errors.New("boom")

	got, err := DoWithResult(context.Background(), fastConfig(), func() (string, error) {
		return "", boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, got)
}
