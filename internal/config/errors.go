package config

import "fmt"

// Error reports an unusable configuration. Field is the dotted TOML key when
// the problem can be pinned to one.
type Error struct {
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return "config: " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fieldError(field, format string, args ...any) *Error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}
