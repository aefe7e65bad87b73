// Package progress aggregates per-stage percentages into a single job
// percentage using a static weight table.
package progress
