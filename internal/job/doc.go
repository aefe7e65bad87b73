// Package job defines the in-memory job model, its lifecycle transitions, and
// the explicit registry the workflow manager is constructed with.
//
// A Job is guarded by its own mutex. Only the pipeline machine and the cancel
// path mutate it; everyone else reads deterministic Snapshot values.
package job
