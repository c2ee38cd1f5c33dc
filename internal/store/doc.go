// Package store provides SQLite-backed durable key/value storage for session
// and notification state.
//
// Every persisted value is a string keyed by one of the names in keys.go.
// Reads go through Get/GetMany; all writes go through Commit, which applies a
// Batch of sets and deletes inside one transaction. A crash mid-commit leaves
// either the full batch or none of it.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// The schema is embedded from schema.sql and versioned with PRAGMA user_version.
package store
