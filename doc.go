// Package listora contains the shared types and utilities of the Listora
// write layer: a concurrency-safe mutation front for a shared,
// non-transactional, rate-limited spreadsheet-style backend.
//
// The backend offers only whole-range reads, appends and clear-and-rewrite,
// each a full network round trip. Listora layers keyed in-process locking,
// pre-write snapshots with rollback, optimistic row-count validation and
// bounded retry on top of those primitives so that many concurrent
// chat-command handlers can safely mutate the same per-channel table.
//
// Lock state lives in one process's memory only. Running multiple Listora
// processes against the same backend requires a shared coordination
// primitive and is explicitly unsupported.
package listora
