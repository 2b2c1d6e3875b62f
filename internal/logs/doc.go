// Package logs reads the daemon's per-run log files for `slowmo logs`.
//
// The daemon writes one file per run and repoints slowmo.log at the newest.
// Follow re-resolves that pointer on every poll, so a follower survives a
// daemon restart and starts at the top of the new run's file.
package logs
