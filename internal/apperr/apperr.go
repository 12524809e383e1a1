// Package apperr holds the error kinds shared by every service.
// Services wrap one of these sentinels with fmt.Errorf("...: %w") and the
// HTTP layer maps them to status codes with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrUnavailable        = errors.New("not available")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)

// Error attaches a client-facing message to one of the sentinels above.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func New(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error { return New(ErrValidation, format, args...) }

func NotFound(format string, args ...any) error { return New(ErrNotFound, format, args...) }

func Conflict(format string, args ...any) error { return New(ErrConflict, format, args...) }

func Unavailable(format string, args ...any) error { return New(ErrUnavailable, format, args...) }

func Forbidden(format string, args ...any) error { return New(ErrForbidden, format, args...) }

func Unauthorized(format string, args ...any) error { return New(ErrUnauthorized, format, args...) }

// Message returns the client-facing text of err. Errors that carry no
// apperr.Error in their chain produce fallback.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return fallback
}

// Is is errors.Is, kept here so callers need a single import.
func Is(err, kind error) bool { return errors.Is(err, kind) }
