// Package migration contains the orchestration core: per-kind migration
// strategies, the bounded-concurrency batch orchestrator, the conflict
// resolver, and the engine that sequences phases and threads identifier
// mappings between them.
package migration
