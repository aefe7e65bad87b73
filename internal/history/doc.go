// Package history keeps a SQLite audit trail of finished jobs.
//
// The workflow manager upserts one row per job on every terminal transition.
// Rows are read by GET /v1/history and `reelsight history`. The table is an
// index only; jobs are never resumed or re-queued from it.
package history
