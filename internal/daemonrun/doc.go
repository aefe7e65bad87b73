// Package daemonrun builds and runs the reelsightd process: logging, the
// object store, job history, the four pipeline stages, the workflow manager,
// and the HTTP daemon. Both cmd/reelsightd and `reelsight run` call Run.
package daemonrun
