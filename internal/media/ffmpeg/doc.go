// Package ffmpeg wraps the ffprobe and ffmpeg command line tools used to
// inspect uploaded media and pull still frames out of it.
//
// Both helpers shell out through exec.CommandContext so cancelling the job
// context terminates the child process.
package ffmpeg
