// Package retry wraps fallible operations with bounded attempts, exponential
// backoff and jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// ExhaustedError is returned when every attempt failed with a retryable error
type ExhaustedError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts exhausted for %s: %v", e.Attempts, e.Operation, e.Last)
}

// Unwrap returns the error of the final attempt
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Policy describes how an operation is retried.
//
// The delay before retrying after failed attempt n is
// min(BaseDelay * ExponentialBase^(n-1), MaxDelay) scaled by a uniform
// factor in [0.5, 1.0).
type Policy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64

	// RetryOn lists sentinel errors matched with errors.Is. Retryable covers
	// typed errors. When both are empty every error retries.
	RetryOn   []error
	Retryable func(error) bool

	// OnRetry is called before each sleep with the failed attempt number.
	OnRetry func(attempt int, err error)

	// Sleep and Jitter are replaceable for tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func() float64
}

// DefaultPolicy mirrors the retry section defaults of the configuration
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
	}
}

// Backoff returns the un-jittered delay before retrying after failed attempt n (1-based)
func (p Policy) Backoff(attempt int) time.Duration {
	base := p.ExponentialBase
	if base < 1 {
		base = 1
	}
	d := float64(p.BaseDelay) * math.Pow(base, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

func (p Policy) shouldRetry(err error) bool {
	if len(p.RetryOn) == 0 && p.Retryable == nil {
		return true
	}
	if p.Retryable != nil && p.Retryable(err) {
		return true
	}
	for _, target := range p.RetryOn {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (p Policy) jitter() float64 {
	if p.Jitter != nil {
		return p.Jitter()
	}
	return 0.5 + rand.Float64()*0.5
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempts run out. Non-retryable errors are returned unchanged; exhaustion
// is reported as *ExhaustedError. A cancelled context stops before the next
// attempt and returns the context error.
func (p Policy) Do(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	_, err := Value(ctx, p, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Value is Do for operations that return a result
func Value[T any](ctx context.Context, p Policy, operation string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !p.shouldRetry(err) {
			return zero, err
		}
		last = err

		if attempt == attempts {
			break
		}

		delay := time.Duration(float64(p.Backoff(attempt)) * p.jitter())
		logrus.WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt,
			"max":       attempts,
			"delay":     delay.String(),
		}).Warnf("Attempt failed, retrying: %v", err)

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		if err := p.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Operation: operation, Attempts: attempts, Last: last}
}
