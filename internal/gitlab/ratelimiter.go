package gitlab

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	rateLimiterRateRequiredMessageConstant = "requests per second must be positive"
	singleTokenCostConstant                = 1.0
)

var errRateLimiterRateRequired = errors.New(rateLimiterRateRequiredMessageConstant)

// RateLimiter implements token-bucket admission control shared by every
// concurrent operation against one remote instance. Bucket capacity equals
// the configured rate, replenished continuously and capped at capacity.
type RateLimiter struct {
	requestsPerSecond float64
	mutex             sync.Mutex
	availableTokens   float64
	lastRefill        time.Time
	timeSource        func() time.Time
	sleepFunction     func(context.Context, time.Duration) error
}

// NewRateLimiter constructs a limiter admitting requestsPerSecond requests on average.
func NewRateLimiter(requestsPerSecond float64) (*RateLimiter, error) {
	if requestsPerSecond <= 0 {
		return nil, errRateLimiterRateRequired
	}

	return &RateLimiter{
		requestsPerSecond: requestsPerSecond,
		availableTokens:   requestsPerSecond,
		lastRefill:        time.Now(),
		timeSource:        time.Now,
		sleepFunction:     sleepWithContext,
	}, nil
}

// Acquire blocks until one admission token is available. It never rejects a
// caller; the only early return is context cancellation during the wait.
func (limiter *RateLimiter) Acquire(executionContext context.Context) error {
	limiter.mutex.Lock()

	currentTime := limiter.timeSource()
	elapsedSeconds := currentTime.Sub(limiter.lastRefill).Seconds()
	limiter.availableTokens = minFloat(
		limiter.requestsPerSecond,
		limiter.availableTokens+elapsedSeconds*limiter.requestsPerSecond,
	)
	limiter.lastRefill = currentTime

	if limiter.availableTokens >= singleTokenCostConstant {
		limiter.availableTokens -= singleTokenCostConstant
		limiter.mutex.Unlock()
		return nil
	}

	limiter.availableTokens -= singleTokenCostConstant
	waitDuration := time.Duration(
		-limiter.availableTokens / limiter.requestsPerSecond * float64(time.Second),
	)
	limiter.mutex.Unlock()

	sleepError := limiter.sleepFunction(executionContext, waitDuration)
	if sleepError != nil {
		limiter.mutex.Lock()
		limiter.availableTokens = minFloat(
			limiter.requestsPerSecond,
			limiter.availableTokens+singleTokenCostConstant,
		)
		limiter.mutex.Unlock()
	}

	return sleepError
}

// CanProceed reports whether an admission token is currently available without consuming one.
func (limiter *RateLimiter) CanProceed() bool {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	elapsedSeconds := limiter.timeSource().Sub(limiter.lastRefill).Seconds()
	projectedTokens := minFloat(
		limiter.requestsPerSecond,
		limiter.availableTokens+elapsedSeconds*limiter.requestsPerSecond,
	)
	return projectedTokens >= singleTokenCostConstant
}

func sleepWithContext(executionContext context.Context, sleepDuration time.Duration) error {
	if sleepDuration <= 0 {
		return nil
	}

	waitTimer := time.NewTimer(sleepDuration)
	defer waitTimer.Stop()

	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-waitTimer.C:
		return nil
	}
}

func minFloat(firstValue float64, secondValue float64) float64 {
	if firstValue < secondValue {
		return firstValue
	}
	return secondValue
}
