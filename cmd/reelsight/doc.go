// Command reelsight is the command-line client for reelsightd.
//
// It uploads videos, follows job progress over the daemon's event stream,
// fetches results and history, runs dependency checks, and can run the
// daemon in the foreground with `reelsight run`.
package main
