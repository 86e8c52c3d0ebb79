package clients

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventrelay/eventrelay/pkg/errors"
)

func TestDelayDoublesFromInitial(t *testing.T) {
	rp := TransportRetryPolicy()

	assert.Equal(t, 1*time.Second, rp.Delay(0))
	assert.Equal(t, 2*time.Second, rp.Delay(1))
	assert.Equal(t, 4*time.Second, rp.Delay(2))
	assert.Equal(t, 8*time.Second, rp.Delay(3))
}

func TestDelayCapsAtMax(t *testing.T) {
	rp := &RetryPolicy{
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
	assert.Equal(t, 5*time.Second, rp.Delay(10))
}

func TestExecuteSucceedsAfterTransientFailures(t *testing.T) {
	rp := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 2.0}

	calls := 0
	err := rp.ExecuteWithCondition(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New(errors.ErrorTypeConnection, "transient")
		}
		return nil
	}, errors.IsRetryable)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteReturnsNonRetryableUnchanged(t *testing.T) {
	rp := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 2.0}

	terminal := errors.New(errors.ErrorTypeDeliveryRejected, "bad payload")
	calls := 0
	err := rp.ExecuteWithCondition(context.Background(), func() error {
		calls++
		return terminal
	}, errors.IsRetryable)

	assert.Equal(t, 1, calls)
	// Identity matters: the caller inspects the type of exactly this error.
	assert.Same(t, terminal, err)
}

func TestExecuteExhaustionRecordsAttempts(t *testing.T) {
	rp := &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2.0}

	calls := 0
	err := rp.ExecuteWithCondition(context.Background(), func() error {
		calls++
		return errors.New(errors.ErrorTypeConnection, "transient")
	}, errors.IsRetryable)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Equal(t, 3, errors.Detail(err, "attempts"))
}

func TestExecuteRespectsContextCancellation(t *testing.T) {
	rp := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Minute, Multiplier: 2.0}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := rp.ExecuteWithCondition(ctx, func() error {
		return errors.New(errors.ErrorTypeConnection, "transient")
	}, errors.IsRetryable)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestNoRetryPolicySingleAttempt(t *testing.T) {
	rp := NoRetryPolicy()

	calls := 0
	err := rp.Execute(context.Background(), func() error {
		calls++
		return fmt.Errorf("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, RetryableStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		assert.False(t, RetryableStatus(code), "status %d", code)
	}
}

func TestStatusErrorTypes(t *testing.T) {
	err := StatusError(http.StatusTooManyRequests)
	assert.Equal(t, errors.ErrorTypeRateLimit, err.Type)
	assert.True(t, errors.IsRetryable(err))

	err = StatusError(http.StatusServiceUnavailable)
	assert.Equal(t, errors.ErrorTypeConnection, err.Type)
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, http.StatusServiceUnavailable, errors.Detail(err, "status"))
}
