// Package gitmirror transfers full repository contents between instances
// using mirror clones, including large-file storage objects when enabled.
package gitmirror
