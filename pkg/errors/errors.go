// Package errors defines custom error types and error handling utilities for the UBI pricing service.
// Every failure surfaced by the core carries one of the taxonomy codes below and maps to an HTTP status.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable failure kind.
type Code string

const (
	// CodeInvalidInput: score or premium out of domain. Rejected immediately, never retried.
	CodeInvalidInput Code = "INVALID_INPUT"
	// CodeModelUnavailable: the risk model is missing, failing or too slow.
	CodeModelUnavailable Code = "MODEL_UNAVAILABLE"
	// CodeValidation: a candidate pricing table violates bounds or monotonicity.
	CodeValidation Code = "VALIDATION_ERROR"
	// CodeNotFound: unknown policy, trip, user or score.
	CodeNotFound Code = "NOT_FOUND"
	// CodePersistence: repository read or write failure.
	CodePersistence Code = "PERSISTENCE_ERROR"
	// CodeInternal: anything else.
	CodeInternal Code = "INTERNAL_ERROR"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// AppError represents a structured error with additional metadata
type AppError interface {
	error

	// Code returns the taxonomy code
	Code() Code

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) AppError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) AppError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

type baseError struct {
	code        Code
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, msg)
}

func (e *baseError) Code() Code          { return e.code }
func (e *baseError) HTTPStatus() int     { return e.httpStatus }
func (e *baseError) Description() string { return e.description }
func (e *baseError) Unwrap() error       { return e.cause }

// WithCause adds a cause error to the error chain
func (e *baseError) WithCause(cause error) AppError {
	e.cause = cause
	return e
}

// WithMetadata adds additional context metadata
func (e *baseError) WithMetadata(key string, value interface{}) AppError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

// Metadata returns all metadata
func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// ================================================================================
// Error Constructors
// ================================================================================

// NewError creates a new AppError with the specified parameters
func NewError(code Code, httpStatus int, description string, message string) AppError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// New creates an AppError whose HTTP status is derived from the code.
func New(code Code, message string) AppError {
	return NewError(code, statusFor(code), describe(code), message)
}

// Wrap wraps err into an AppError with the given code.
func Wrap(err error, code Code, message string) AppError {
	return New(code, message).WithCause(err)
}

// ErrInvalidInput creates an INVALID_INPUT error
func ErrInvalidInput(format string, args ...interface{}) AppError {
	return New(CodeInvalidInput, fmt.Sprintf(format, args...))
}

// ErrModelUnavailable creates a MODEL_UNAVAILABLE error
func ErrModelUnavailable(cause error) AppError {
	return Wrap(cause, CodeModelUnavailable, "risk model unavailable")
}

// ErrValidation creates a VALIDATION_ERROR carrying the individual violations
func ErrValidation(violations []string) AppError {
	return New(CodeValidation, fmt.Sprintf("pricing table rejected: %d violation(s)", len(violations))).
		WithMetadata("violations", violations)
}

// ErrNotFound creates a NOT_FOUND error for the given resource
func ErrNotFound(resource string, id interface{}) AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %v", resource, id)).
		WithMetadata("resource", resource).
		WithMetadata("id", id)
}

// ErrPersistence creates a PERSISTENCE_ERROR
func ErrPersistence(op string, cause error) AppError {
	return Wrap(cause, CodePersistence, op).WithMetadata("operation", op)
}

func statusFor(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func describe(code Code) string {
	switch code {
	case CodeInvalidInput:
		return "The request contains a value outside its allowed domain."
	case CodeModelUnavailable:
		return "The risk model could not produce a prediction."
	case CodeValidation:
		return "The pricing configuration failed validation."
	case CodeNotFound:
		return "The requested resource does not exist."
	case CodePersistence:
		return "A storage operation failed."
	default:
		return "An unexpected error occurred."
	}
}

// ================================================================================
// Error Validation Utilities
// ================================================================================

// AsAppError extracts the first AppError in err's chain
func AsAppError(err error) (AppError, bool) {
	var appErr AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err, or CodeInternal for foreign errors
func CodeOf(err error) Code {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code()
	}
	return CodeInternal
}

// HasCode reports whether err's chain carries an AppError with the given code
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func IsInvalidInput(err error) bool     { return HasCode(err, CodeInvalidInput) }
func IsModelUnavailable(err error) bool { return HasCode(err, CodeModelUnavailable) }
func IsValidation(err error) bool       { return HasCode(err, CodeValidation) }
func IsNotFound(err error) bool         { return HasCode(err, CodeNotFound) }
func IsPersistence(err error) bool      { return HasCode(err, CodePersistence) }

// ================================================================================
// Error Response Builder
// ================================================================================

// ErrorResponse represents the JSON structure for error responses
type ErrorResponse struct {
	Error            string                 `json:"error"`
	ErrorDescription string                 `json:"error_description"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToErrorResponse converts any error to an ErrorResponse and its HTTP status
func ToErrorResponse(err error) (int, *ErrorResponse) {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus(), &ErrorResponse{
			Error:            string(appErr.Code()),
			ErrorDescription: appErr.Error(),
			Metadata:         appErr.Metadata(),
		}
	}
	return http.StatusInternalServerError, &ErrorResponse{
		Error:            string(CodeInternal),
		ErrorDescription: "An unexpected error occurred",
	}
}

// ShouldLogError determines if an error should be logged at error level
func ShouldLogError(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus() >= 500
	}
	return true
}
