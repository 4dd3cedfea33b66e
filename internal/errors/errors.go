package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Fern error code.
type ErrorCode string

const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"       // 400
	ErrInvalidConfig        ErrorCode = "INVALID_CONFIG"        // 400
	ErrNotFound             ErrorCode = "NOT_FOUND"             // 404
	ErrFileNotFound         ErrorCode = "FILE_NOT_FOUND"        // 404
	ErrCancelled            ErrorCode = "CANCELLED"             // 499
	ErrLexicalImpossibility ErrorCode = "LEXICAL_IMPOSSIBILITY" // 500 (invariant violation)
	ErrInternal             ErrorCode = "INTERNAL"              // 500
	ErrBackend              ErrorCode = "BACKEND_ERROR"         // 502
	ErrUnexpectedStreamEnd  ErrorCode = "UNEXPECTED_STREAM_END" // 502
)

// FernError represents a structured error with code, status, and details.
type FernError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *FernError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *FernError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *FernError {
	return &FernError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInvalidConfig creates a 400 error for a configuration value out of range.
func NewInvalidConfig(field, msg string) *FernError {
	return &FernError{
		Code:    ErrInvalidConfig,
		Status:  400,
		Message: fmt.Sprintf("%s: %s", field, msg),
		Details: map[string]any{"field": field},
	}
}

// NewNotFound creates a 404 error for when a stored suggestion cannot be found.
func NewNotFound(identifier string) *FernError {
	return &FernError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("suggestion not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *FernError {
	return &FernError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewCancelled creates an error for an operation stopped by its context.
func NewCancelled(op string) *FernError {
	return &FernError{
		Code:    ErrCancelled,
		Status:  499,
		Message: op + " cancelled",
	}
}

// NewLexicalImpossibility creates an error for a token the lexer cannot classify.
// It signals a logic defect, not bad input.
func NewLexicalImpossibility(match string, offset int) *FernError {
	return &FernError{
		Code:    ErrLexicalImpossibility,
		Status:  500,
		Message: fmt.Sprintf("unclassifiable token %q at offset %d", match, offset),
		Details: map[string]any{"match": match, "offset": offset},
	}
}

// NewBackend creates a 502 error for a transport or protocol failure while
// talking to the text-generation backend.
func NewBackend(err error) *FernError {
	msg := "backend request failed"
	if err != nil {
		msg = err.Error()
	}
	return &FernError{
		Code:    ErrBackend,
		Status:  502,
		Message: msg,
		cause:   err,
	}
}

// NewBackendStatus creates a 502 error for a non-2xx backend response.
func NewBackendStatus(status int, body string) *FernError {
	return &FernError{
		Code:    ErrBackend,
		Status:  502,
		Message: fmt.Sprintf("backend responded %d: %s", status, body),
		Details: map[string]any{"upstream_status": status},
	}
}

// NewUnexpectedStreamEnd creates a 502 error for a stream that closed without
// a terminal chunk.
func NewUnexpectedStreamEnd(received int) *FernError {
	return &FernError{
		Code:    ErrUnexpectedStreamEnd,
		Status:  502,
		Message: "unexpected end of stream",
		Details: map[string]any{"chunks_received": received},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the original error is kept in Details for logging.
func NewInternal(err error) *FernError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &FernError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		cause:   err,
	}
}

// Is checks if an error is (or wraps) a FernError with the given code.
func Is(err error, code ErrorCode) bool {
	var fErr *FernError
	if stderrors.As(err, &fErr) {
		return fErr.Code == code
	}
	return false
}

// IsBackendFailure reports whether err belongs to the backend failure class
// (transport errors and streams that ended without completing).
func IsBackendFailure(err error) bool {
	return Is(err, ErrBackend) || Is(err, ErrUnexpectedStreamEnd)
}
