// Package pipeline sequences stage handlers over a job.
//
// Machine.Run executes the configured handlers in order, feeding each the
// previous stage's output. Every progress report from a handler is aggregated
// with the stage weight table and published as a snapshot event. Stage outputs
// are persisted under work/<workspace>/stages/ so a later job can resume from
// any stage. When the last stage finishes, the machine writes the result
// document to results/<jobId>.json and publishes the completion event.
//
// The machine never retries a failed stage. Cancellation is observed between
// stages; a final stage that finishes after cancel still completes the job.
package pipeline
