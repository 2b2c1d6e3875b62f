// Package notifications pushes operator alerts and render announcements to
// ntfy.
//
// Publishing is best effort: callers log a failed delivery and carry on. When
// no topic is configured NewService returns a no-op implementation.
package notifications
