// Package daemon coordinates the long-running slowmo process.
//
// It wraps the monitor loop and the optional metrics endpoint in a single
// lifecycle with flock-based locking on the state directory, so a second
// daemon pointed at the same directories refuses to start instead of racing
// the first one for files.
//
// Keep orchestration logic here: per-file behaviour lives in monitor,
// render, and lifecycle.
package daemon
