// Package logging builds slowmo's slog loggers.
//
// A daemon run logs to the console and to its own file in paths.log_dir
// (see RunLogPath); each record reaches every sink exactly once and a failing
// sink only bumps DroppedWrites. The console layout puts the alert, component,
// file identity and run id at fixed positions; the JSON layout keeps them as
// plain keys.
package logging
