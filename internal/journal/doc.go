// Package journal provides SQLite-backed durable storage for the loop's
// observable records:
//
//   - Error log: one row per recovery decision, append-only
//   - Publish history: one row per successful post, append-only
//   - Checkpoints: full UnifiedState snapshot per cycle boundary
//
// The journal is the inspection surface for operators (`gonzo status`) and
// the resume point for `gonzo replay`. Reads never mutate. Writes are
// idempotent where a retry could duplicate them (checkpoints keyed by
// cycle, publish history keyed by candidate).
//
// Database configuration follows the usual SQLite single-writer setup:
// WAL mode, NORMAL synchronous, busy timeout, foreign keys on, a single
// connection.
package journal
