// Package preflight provides readiness checks for the external binaries and
// services reelsight depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs each failure as a warning;
//     jobs are still accepted so a transient provider outage does not block
//     the API.
//   - The CLI "reelsight check" command prints every result and exits
//     non-zero when any check fails.
//
// The LLM reachability check makes a single attempt with a 30 second
// timeout.
package preflight
