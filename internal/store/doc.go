// Package store provides the SQLite send log.
//
// The log is the durability boundary of the tool: one row per send attempt,
// keyed by (email, send_date). The daily limit, the per-company cap and the
// "already contacted" checks are all answered from it, so re-running the
// process on the same day never exceeds the limit.
//
// # Database Configuration
//
//   - WAL mode
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single connection; the process is the only writer
//
// Dates are local calendar days formatted as YYYY-MM-DD. Timestamps are
// RFC 3339 in UTC.
package store
