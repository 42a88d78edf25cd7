// Package errors provides the coded error taxonomy shared by every ogloc surface.
//
// Each failure carries a machine-readable [Code] that survives wrapping, so the
// CLI can pick an exit code and the HTTP server a status without re-deriving
// the cause:
//   - DUMP_*: Record store loading failures
//   - NOT_FOUND, NO_RENDERABLE_VERSION, REMOTE_*: Resolution failures
//   - RENDER_*: Document compilation failures
//   - CACHE_INTERNAL, INTERNAL_ERROR: Everything else
//
// # Usage
//
//	err := errors.New(errors.ErrCodeNotFound, "crate %s not found", name)
//	if errors.Is(err, errors.ErrCodeNotFound) {
//	    // Handle missing crate
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeRemoteUnavailable, origErr, "lookup %s", name)
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Dump loading errors.
const (
	// ErrCodeMissingSection aborts a load: a required CSV section is absent or unreadable.
	ErrCodeMissingSection Code = "DUMP_MISSING_SECTION"
	// ErrCodeMalformedRow marks a single skipped row. It never escapes the loader.
	ErrCodeMalformedRow Code = "DUMP_MALFORMED_ROW"
	// ErrCodeDumpIO covers archive level failures (bad gzip, truncated tar).
	ErrCodeDumpIO Code = "DUMP_IO"
)

// Resolution errors.
const (
	ErrCodeNotFound            Code = "NOT_FOUND"
	ErrCodeNoRenderableVersion Code = "NO_RENDERABLE_VERSION"
	ErrCodeRemoteUnavailable   Code = "REMOTE_UNAVAILABLE"
	ErrCodeRemoteTimeout       Code = "REMOTE_TIMEOUT"
	ErrCodeRemoteMalformed     Code = "REMOTE_MALFORMED"
	ErrCodeInvalidPackage      Code = "INVALID_PACKAGE"
	ErrCodeInvalidVersion      Code = "INVALID_VERSION"
	ErrCodeInvalidInput        Code = "INVALID_INPUT"
)

// Render errors.
const (
	ErrCodeRenderCompile  Code = "RENDER_COMPILE"
	ErrCodeRenderResource Code = "RENDER_RESOURCE"
	ErrCodeRenderInternal Code = "RENDER_INTERNAL"
)

// Pipeline errors.
const (
	ErrCodeCacheInternal Code = "CACHE_INTERNAL"
	ErrCodeInternal      Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether the outermost *Error in err's chain has the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Ensure returns err unchanged when it already carries a code and wraps it
// with code otherwise. nil stays nil.
func Ensure(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if GetCode(err) != "" {
		return err
	}
	return Wrap(code, err, format, args...)
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsContext reports whether err comes from a canceled or expired context
// rather than from the operation itself.
func IsContext(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
