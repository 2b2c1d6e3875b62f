// Package preflight provides readiness checks for the directories and
// binaries slowmo depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll once at startup and refuses to start when a
//     required directory is unusable.
//   - The CLI "slowmo status" command prints every result, passing or not.
package preflight
