// Package main hosts the slowmo CLI entrypoint and command graph.
//
// The Cobra command tree starts the watch-folder daemon, runs a dry scan of
// the input directory, prints the render journal, and scaffolds or validates
// configuration. Configuration is resolved once per invocation through the
// shared commandContext; the daemon itself lives in internal/daemonrun.
package main
