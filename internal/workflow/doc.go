// Package workflow supervises pipeline jobs.
//
// The Manager owns the lifecycle around pipeline.Machine: it registers new
// jobs in the injected job.Registry, runs each one on its own goroutine,
// cancels and resumes them on request, and reacts to terminal transitions by
// recording history, sending notifications, and scheduling removal of the
// job workspace after the configured cleanup delay. Failed jobs keep their
// workspace so they can be resumed.
//
// Resumed jobs share the workspace of the job they resume from; a pending
// cleanup for that workspace is cancelled when the resume is accepted and
// skipped while any job using it is still running.
package workflow
