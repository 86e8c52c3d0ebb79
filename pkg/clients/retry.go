package clients

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/eventrelay/eventrelay/pkg/errors"
)

// RetryPolicy defines retry behavior for a single logical request.
// Retrying here is transport-level only; a run is never retried as a whole.
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64
}

// TransportRetryPolicy returns the policy both endpoints use: 5 attempts
// with the delay doubling from a 1s base, mirroring the retry budget the
// ingestion API documents for transient failures.
func TransportRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     2 * time.Minute,
		Multiplier:   2.0,
	}
}

// NoRetryPolicy returns a policy that does not retry
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 1,
	}
}

// Execute runs a function with the retry policy
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	return rp.ExecuteWithCondition(ctx, fn, func(error) bool { return true })
}

// ExecuteWithCondition runs a function, retrying only while shouldRetry
// accepts the returned error. A rejected error is returned unchanged so
// callers can keep its type.
func (rp *RetryPolicy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	var lastErr error

	for attempt := 0; attempt < rp.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		if !shouldRetry(err) {
			return err
		}

		lastErr = err

		if attempt == rp.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(rp.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "retry cancelled")
		case <-timer.C:
		}
	}

	return errors.Wrap(lastErr, errors.TypeOf(lastErr), "all attempts failed").
		WithDetail("attempts", rp.MaxAttempts)
}

// delay calculates the backoff for a given zero-based attempt
func (rp *RetryPolicy) delay(attempt int) time.Duration {
	d := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))

	if rp.MaxDelay > 0 && d > float64(rp.MaxDelay) {
		d = float64(rp.MaxDelay)
	}

	if rp.RandomizeFactor > 0 {
		delta := d * rp.RandomizeFactor
		d = d - delta + rand.Float64()*2*delta
	}

	return time.Duration(d)
}

// Delay returns the backoff for a specific attempt (for testing/preview)
func (rp *RetryPolicy) Delay(attempt int) time.Duration {
	return rp.delay(attempt)
}

// RetryableStatus reports whether an HTTP status code indicates a transient
// condition the transport policy should retry.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// StatusError converts a retryable HTTP status into a typed, retryable error.
func StatusError(code int) *errors.Error {
	errType := errors.ErrorTypeConnection
	if code == http.StatusTooManyRequests {
		errType = errors.ErrorTypeRateLimit
	}
	return errors.Newf(errType, "transient response status %d", code).
		WithDetail("status", code)
}
