package hyperopt

import (
	"errors"
	"fmt"
)

// Error categories. Callers match with errors.Is; ErrConfig and
// ErrIncompatibleData abort a run before any evaluation happens.
var (
	// ErrConfig marks an invalid run configuration.
	ErrConfig = errors.New("invalid configuration")
	// ErrIncompatibleData marks persisted state that cannot be resumed:
	// trials from an older schema, a different search space, or optimizer
	// snapshots that do not match the current topology.
	ErrIncompatibleData = errors.New("incompatible persisted data")
	// ErrExhausted marks an optimizer that cannot produce new points.
	ErrExhausted = errors.New("search space exhausted")
)

// Error carries engine error context that can be wrapped with additional
// information.
type Error struct {
	// Kind is the error category, one of the sentinels above.
	Kind error
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the category sentinel and the underlying error to
// errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	var out []error
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// NewError creates an engine error of the given category.
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewErrorf creates an engine error with a formatted message.
func NewErrorf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps an existing error under a category. Returns nil when err
// is nil.
func WrapError(kind error, err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}
