// Package platform hides host-specific file operations behind a small
// interface so the lifecycle state machine stays platform-agnostic.
package platform

import "runtime"

// Capabilities are the host file operations the lifecycle manager needs
// beyond plain os calls.
type Capabilities interface {
	// ClearReadOnly removes a read-only attribute inherited from source
	// footage. It is best-effort; callers log and continue on error.
	ClearReadOnly(path string) error
	// ForceRemove deletes path even when it carries a read-only attribute.
	ForceRemove(path string) error
	// Name identifies the implementation in logs.
	Name() string
}

// Default returns the capabilities for the running host.
func Default() Capabilities {
	return native{}
}

// OS reports the host platform key used for per-platform configuration.
func OS() string {
	return runtime.GOOS
}
