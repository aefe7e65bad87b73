// Package runner executes independent work units with bounded concurrency.
//
// Run fans a slice of inputs out over a private worker pool, retries failed
// units with capped exponential backoff, and returns one ordered Result per
// input. Per-unit failures stay in their result slot; only argument errors
// are returned from Run itself.
package runner
