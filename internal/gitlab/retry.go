package gitlab

import (
	"context"
	"errors"
	"time"
)

const (
	backoffAttemptsRequiredMessageConstant = "backoff policy requires at least one attempt"
)

var errBackoffAttemptsRequired = errors.New(backoffAttemptsRequiredMessageConstant)

// BackoffPolicy describes the shared exponential backoff applied to transient failures.
type BackoffPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// RetryableOperation is the unit of work driven by WithRetry.
type RetryableOperation func(executionContext context.Context) error

// WithRetry executes operation under the backoff policy. Transient remote
// failures consume an attempt and back off exponentially. Rate-limited
// responses wait the remote-indicated delay without consuming an attempt;
// the next issue still flows through the caller's breaker and limiter.
// Every other failure surfaces immediately.
func WithRetry(executionContext context.Context, policy BackoffPolicy, operation RetryableOperation) error {
	if policy.MaxAttempts <= 0 {
		return errBackoffAttemptsRequired
	}

	currentDelay := policy.BaseDelay
	attemptsConsumed := 0
	var lastError error

	for attemptsConsumed < policy.MaxAttempts {
		lastError = operation(executionContext)
		if lastError == nil {
			return nil
		}

		var rateLimitedError RateLimitedError
		if errors.As(lastError, &rateLimitedError) {
			if sleepError := sleepWithContext(executionContext, rateLimitedError.RetryAfter); sleepError != nil {
				return sleepError
			}
			continue
		}

		if !IsTransient(lastError) {
			return lastError
		}

		attemptsConsumed++
		if attemptsConsumed >= policy.MaxAttempts {
			break
		}

		if sleepError := sleepWithContext(executionContext, currentDelay); sleepError != nil {
			return sleepError
		}
		currentDelay = time.Duration(float64(currentDelay) * policy.Multiplier)
	}

	return lastError
}
