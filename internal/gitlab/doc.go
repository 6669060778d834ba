// Package gitlab provides the remote API client for a single GitLab instance,
// including token-bucket rate limiting, circuit breaking, retry policy, and
// the error taxonomy consumed by the migration engine.
package gitlab
