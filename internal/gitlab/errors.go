package gitlab

import (
	"errors"
	"fmt"
	"time"
)

const (
	authenticationErrorTemplateConstant = "authentication rejected by %s"
	notFoundErrorTemplateConstant       = "resource not found: %s"
	rateLimitedErrorTemplateConstant    = "rate limit exceeded, retry after %s"
	conflictErrorTemplateConstant       = "conflicting resource state: %s"
	circuitOpenErrorTemplateConstant    = "circuit breaker open, retry in %s"
	remoteErrorTemplateConstant         = "remote request failed with status %d: %s"
	transportErrorTemplateConstant      = "network transport failure: %v"
)

// AuthenticationError reports credential rejection by a remote instance. It is fatal to the run.
type AuthenticationError struct {
	InstanceURL string
}

// Error describes the authentication failure.
func (authenticationError AuthenticationError) Error() string {
	return fmt.Sprintf(authenticationErrorTemplateConstant, authenticationError.InstanceURL)
}

// NotFoundError reports a missing resource on the remote.
type NotFoundError struct {
	Endpoint string
}

// Error describes the missing resource.
func (notFoundError NotFoundError) Error() string {
	return fmt.Sprintf(notFoundErrorTemplateConstant, notFoundError.Endpoint)
}

// RateLimitedError reports a 429 response carrying the remote's requested delay.
type RateLimitedError struct {
	RetryAfter time.Duration
}

// Error describes the throttled request.
func (rateLimitedError RateLimitedError) Error() string {
	return fmt.Sprintf(rateLimitedErrorTemplateConstant, rateLimitedError.RetryAfter)
}

// ConflictError reports a destination-side collision. Body carries the raw
// error text for collision pattern matching.
type ConflictError struct {
	Body string
}

// Error describes the conflict.
func (conflictError ConflictError) Error() string {
	return fmt.Sprintf(conflictErrorTemplateConstant, conflictError.Body)
}

// CircuitOpenError reports a request rejected without a network call because
// the breaker for that remote is open.
type CircuitOpenError struct {
	RetryIn time.Duration
}

// Error describes the fast failure.
func (circuitOpenError CircuitOpenError) Error() string {
	return fmt.Sprintf(circuitOpenErrorTemplateConstant, circuitOpenError.RetryIn)
}

// RemoteError reports any other unsuccessful response or transport failure.
type RemoteError struct {
	StatusCode int
	Body       string
	Cause      error
}

// Error describes the remote failure.
func (remoteError RemoteError) Error() string {
	if remoteError.Cause != nil {
		return fmt.Sprintf(transportErrorTemplateConstant, remoteError.Cause)
	}
	return fmt.Sprintf(remoteErrorTemplateConstant, remoteError.StatusCode, remoteError.Body)
}

// Unwrap exposes the underlying transport error, when present.
func (remoteError RemoteError) Unwrap() error {
	return remoteError.Cause
}

// Transient reports whether the failure is worth retrying: transport-level
// failures and server-side 5xx responses qualify, client errors do not.
func (remoteError RemoteError) Transient() bool {
	if remoteError.Cause != nil {
		return true
	}
	return remoteError.StatusCode >= 500
}

// IsTransient classifies an arbitrary error as retryable under the backoff policy.
func IsTransient(candidateError error) bool {
	var remoteError RemoteError
	if errors.As(candidateError, &remoteError) {
		return remoteError.Transient()
	}
	return false
}

// IsFatal reports whether the error must abort the whole run rather than a single entity.
func IsFatal(candidateError error) bool {
	var authenticationError AuthenticationError
	return errors.As(candidateError, &authenticationError)
}
