package gitlab

import (
	"errors"
	"sync"
	"time"
)

const (
	breakerThresholdRequiredMessageConstant = "failure threshold must be positive"
	breakerTimeoutRequiredMessageConstant   = "reset timeout must be positive"
)

var (
	errBreakerThresholdRequired = errors.New(breakerThresholdRequiredMessageConstant)
	errBreakerTimeoutRequired   = errors.New(breakerTimeoutRequiredMessageConstant)
)

// BreakerState enumerates the circuit breaker states.
type BreakerState int

// Circuit breaker states.
const (
	BreakerStateClosed BreakerState = iota
	BreakerStateOpen
	BreakerStateHalfOpen
)

// CircuitBreaker gates calls against one remote instance, failing fast while
// the remote is considered unhealthy. One breaker instance is shared by every
// concurrent operation against that remote.
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	mutex           sync.Mutex
	state           BreakerState
	failureCount    int
	lastFailureTime time.Time
	probeInFlight   bool
	timeSource      func() time.Time
	transitionHooks []func(BreakerState)
}

// NewCircuitBreaker constructs a breaker opening after failureThreshold
// consecutive failures and probing again after resetTimeout.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) (*CircuitBreaker, error) {
	if failureThreshold <= 0 {
		return nil, errBreakerThresholdRequired
	}
	if resetTimeout <= 0 {
		return nil, errBreakerTimeoutRequired
	}

	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		state:            BreakerStateClosed,
		timeSource:       time.Now,
	}, nil
}

// OnStateTransition registers a hook invoked whenever the breaker changes state.
func (breaker *CircuitBreaker) OnStateTransition(transitionHook func(BreakerState)) {
	breaker.mutex.Lock()
	defer breaker.mutex.Unlock()
	breaker.transitionHooks = append(breaker.transitionHooks, transitionHook)
}

// Allow decides whether a call may proceed. Open rejects with CircuitOpenError
// until resetTimeout elapses; afterwards exactly one caller is admitted as the
// half-open probe while concurrent callers keep failing fast.
func (breaker *CircuitBreaker) Allow() error {
	breaker.mutex.Lock()
	defer breaker.mutex.Unlock()

	switch breaker.state {
	case BreakerStateClosed:
		return nil
	case BreakerStateHalfOpen:
		if breaker.probeInFlight {
			return CircuitOpenError{RetryIn: breaker.remainingResetWindow()}
		}
		breaker.probeInFlight = true
		return nil
	default:
		remainingWindow := breaker.remainingResetWindow()
		if remainingWindow > 0 {
			return CircuitOpenError{RetryIn: remainingWindow}
		}
		breaker.transitionLocked(BreakerStateHalfOpen)
		breaker.probeInFlight = true
		return nil
	}
}

// RecordSuccess resets the consecutive failure counter and closes the breaker.
func (breaker *CircuitBreaker) RecordSuccess() {
	breaker.mutex.Lock()
	defer breaker.mutex.Unlock()

	breaker.failureCount = 0
	breaker.probeInFlight = false
	if breaker.state != BreakerStateClosed {
		breaker.transitionLocked(BreakerStateClosed)
	}
}

// ReleaseProbe returns an admission that never turned into a request, leaving
// the state and failure counter untouched so a later caller can still probe.
func (breaker *CircuitBreaker) ReleaseProbe() {
	breaker.mutex.Lock()
	defer breaker.mutex.Unlock()

	breaker.probeInFlight = false
}

// RecordFailure counts a consecutive failure, opening the breaker at the
// threshold. A half-open probe failure reopens immediately and restarts the
// reset clock.
func (breaker *CircuitBreaker) RecordFailure() {
	breaker.mutex.Lock()
	defer breaker.mutex.Unlock()

	breaker.lastFailureTime = breaker.timeSource()

	if breaker.state == BreakerStateHalfOpen {
		breaker.probeInFlight = false
		breaker.transitionLocked(BreakerStateOpen)
		return
	}

	breaker.failureCount++
	if breaker.state == BreakerStateClosed && breaker.failureCount >= breaker.failureThreshold {
		breaker.transitionLocked(BreakerStateOpen)
	}
}

// State reports the current breaker state.
func (breaker *CircuitBreaker) State() BreakerState {
	breaker.mutex.Lock()
	defer breaker.mutex.Unlock()
	return breaker.state
}

func (breaker *CircuitBreaker) remainingResetWindow() time.Duration {
	elapsedSinceFailure := breaker.timeSource().Sub(breaker.lastFailureTime)
	if elapsedSinceFailure >= breaker.resetTimeout {
		return 0
	}
	return breaker.resetTimeout - elapsedSinceFailure
}

func (breaker *CircuitBreaker) transitionLocked(nextState BreakerState) {
	breaker.state = nextState
	for _, transitionHook := range breaker.transitionHooks {
		transitionHook(nextState)
	}
}
