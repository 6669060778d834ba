// Package execshell wraps git and git-lfs invocation with structured logging
// and typed failures, so repository transfer code never touches os/exec
// directly.
package execshell
