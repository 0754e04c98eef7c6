// Package store provides SQLite-backed durable storage for automaton
// snapshots.
//
// A snapshot is a flat set of tagged entries (tag → bytes) plus a little
// catalogue metadata:
//   - snapshots: id, logical sequence number, label, step
//   - snapshot_entries: one row per tag, deleted with their snapshot
//
// The store never interprets entry values; package snapshot owns the tag
// vocabulary and the encodings.
//
// # Critical Patterns
//
// Logical Ordering
//   - Snapshots are ordered by seq INTEGER, assigned inside the write
//     transaction, NEVER by timestamps
//   - All listings use ORDER BY seq ASC, id COLLATE BINARY ASC
//
// Atomic Writes
//   - A snapshot and all of its entries are written in one transaction, so
//     a crash never leaves a partial snapshot visible
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity (entry cascade)
package store
