// Package ffprobe provides a typed view of ffprobe JSON output.
//
// Callers build the command line with Args, run it however they run
// processes, and hand stdout to Parse. Helper methods on Result pick the
// primary video stream and decode ffprobe's rational and ratio strings.
package ffprobe
