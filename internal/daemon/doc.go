// Package daemon coordinates the long-running reelsightd process.
//
// It wires the workflow manager and object store into a single lifecycle
// with flock-based locking to prevent multiple instances, and serves the
// HTTP API: multipart job submission with per-owner result quotas, job status,
// cancellation and resume, server-sent event streams, stored results, history,
// and dependency health.
//
// Keep orchestration logic here: pipeline stages live in their own packages
// while the daemon focuses on startup, shutdown, and the transport surface.
package daemon
