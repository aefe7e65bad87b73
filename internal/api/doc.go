// Package api defines the wire-format types of the reelsightd HTTP API and the
// Client the CLI uses to call it.
//
// # Key Types
//
// Job: transport representation of a job snapshot with per-stage progress.
//
// Event: one server-sent event from a job stream.
//
// HistoryEntry, UsageResponse, HealthResponse: the listing and diagnostic
// payloads.
//
// # Converters
//
// FromSnapshot, FromEvent, FromHistory, and FromHealth translate internal
// models so handlers never encode internal types directly.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Result documents are passed through as json.RawMessage to avoid
// double-encoding. Storage keys of uploads never leave the daemon.
package api
