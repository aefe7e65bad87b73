// Package extraction implements the fan-out frame extraction stage.
//
// The stage probes the uploaded media for its duration, spreads timestamps at
// the configured interval, and extracts one JPEG per timestamp through the
// bounded concurrency runner. Each frame is a work unit with its own retry
// budget; failed units are recorded in the output rather than failing the
// stage. Only a run with zero extracted frames fails, with ErrNoFrames.
//
// Frames are written to work/<workspace>/frames/ so later stages and resumed
// jobs can read them back from the store.
package extraction
