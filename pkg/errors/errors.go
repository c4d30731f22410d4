// Package errors defines the structured error taxonomy of the authorization store service.
// Every error carries a machine readable code, an HTTP status for the protocol layer and
// optional metadata. Raw token values must never be placed into metadata.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/turtacn/authstore/pkg/constants"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// AppError represents a structured error with additional metadata.
type AppError interface {
	error

	// Code returns the error code of the taxonomy entry.
	Code() constants.ErrorCode

	// HTTPStatus returns the HTTP status code the protocol layer should answer with.
	HTTPStatus() int

	// Description returns a human-readable description of the error class.
	Description() string

	// Unwrap returns the underlying error for error chain support.
	Unwrap() error

	// WithCause adds a cause error to the error chain.
	WithCause(cause error) AppError

	// WithMetadata adds additional context metadata.
	WithMetadata(key string, value interface{}) AppError

	// Metadata returns all metadata.
	Metadata() map[string]interface{}

	// Retryable reports whether the caller may retry the operation unchanged.
	Retryable() bool
}

// ================================================================================
// Base Error Implementation
// ================================================================================

type baseError struct {
	code        constants.ErrorCode
	httpStatus  int
	description string
	message     string
	retryable   bool
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface.
func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *baseError) Code() constants.ErrorCode { return e.code }

func (e *baseError) HTTPStatus() int { return e.httpStatus }

func (e *baseError) Description() string { return e.description }

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Retryable() bool { return e.retryable }

func (e *baseError) WithCause(cause error) AppError {
	e.cause = cause
	return e
}

func (e *baseError) WithMetadata(key string, value interface{}) AppError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// Is matches any AppError carrying the same code, so sentinel comparisons
// with errors.Is work across freshly constructed instances.
func (e *baseError) Is(target error) bool {
	var other *baseError
	if stderrors.As(target, &other) {
		return other.code == e.code
	}
	return false
}

// ================================================================================
// Error Constructor
// ================================================================================

// NewError creates a new AppError with the specified parameters.
func NewError(code constants.ErrorCode, httpStatus int, description string, message string) AppError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Taxonomy Constructors
// ================================================================================

// ErrValidation is returned when an input is missing required fields or is malformed.
// Nothing is persisted.
func ErrValidation(message string) AppError {
	return NewError(
		constants.ErrCodeValidation,
		http.StatusBadRequest,
		"The request is missing a required field or includes an invalid value.",
		message,
	)
}

// ErrNotFound is returned when a record or key does not exist, or exists but is not
// accessible to the requesting tenant. Both cases are indistinguishable to callers.
func ErrNotFound(message string) AppError {
	return NewError(
		constants.ErrCodeNotFound,
		http.StatusNotFound,
		"The requested resource was not found.",
		message,
	)
}

// ErrPersistenceContention is returned on serialization failures, lock timeouts and
// transaction deadlines. The operation may be retried by the caller.
func ErrPersistenceContention(message string) AppError {
	e := NewError(
		constants.ErrCodePersistenceContention,
		http.StatusServiceUnavailable,
		"The store could not complete the transaction because of concurrent access. Retry the request.",
		message,
	).(*baseError)
	e.retryable = true
	return e
}

// ErrCryptoFailure is returned when encryption or decryption fails or times out.
// The operation is aborted and no partial data is returned or stored.
func ErrCryptoFailure(message string) AppError {
	return NewError(
		constants.ErrCodeCryptoFailure,
		http.StatusInternalServerError,
		"A cryptographic operation failed.",
		message,
	)
}

// ErrNoSigningKey is returned when no active signing key is available.
func ErrNoSigningKey(message string) AppError {
	e := NewError(
		constants.ErrCodeNoSigningKey,
		http.StatusServiceUnavailable,
		"No active signing key is available.",
		message,
	).(*baseError)
	e.retryable = true
	return e
}

// ErrConfiguration is returned when the service is started with an invalid configuration.
func ErrConfiguration(message string) AppError {
	return NewError(
		constants.ErrCodeConfiguration,
		http.StatusInternalServerError,
		"The service configuration is invalid.",
		message,
	)
}

// ErrUnavailable is returned when an external dependency cannot be reached.
func ErrUnavailable(dependency string) AppError {
	e := NewError(
		constants.ErrCodeUnavailable,
		http.StatusServiceUnavailable,
		"A dependency of the service is unavailable.",
		fmt.Sprintf("%s is unavailable", dependency),
	).(*baseError)
	e.retryable = true
	return e.WithMetadata("dependency", dependency)
}

// ErrInternal is returned for unexpected failures.
func ErrInternal(message string) AppError {
	return NewError(
		constants.ErrCodeInternal,
		http.StatusInternalServerError,
		"The server encountered an unexpected condition.",
		message,
	)
}

// ================================================================================
// Error Inspection Utilities
// ================================================================================

// AsAppError extracts an AppError from the error chain.
func AsAppError(err error) (AppError, bool) {
	if err == nil {
		return nil, false
	}
	var appErr AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in the chain, or ErrCodeInternal.
func CodeOf(err error) constants.ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code()
	}
	return constants.ErrCodeInternal
}

func hasCode(err error, code constants.ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code() == code
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return hasCode(err, constants.ErrCodeValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return hasCode(err, constants.ErrCodeNotFound) }

// IsContention reports whether err is a retryable persistence contention error.
func IsContention(err error) bool { return hasCode(err, constants.ErrCodePersistenceContention) }

// IsCryptoFailure reports whether err is a crypto failure.
func IsCryptoFailure(err error) bool { return hasCode(err, constants.ErrCodeCryptoFailure) }

// IsNoSigningKey reports whether err signals that no signing key is available.
func IsNoSigningKey(err error) bool { return hasCode(err, constants.ErrCodeNoSigningKey) }

// IsRetryable reports whether err may be retried unchanged.
func IsRetryable(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Retryable()
}

// HTTPStatusOf maps err to an HTTP status, 500 when err is not an AppError.
func HTTPStatusOf(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// Is and As are re-exported so callers only import one errors package.
var (
	Is  = stderrors.Is
	As  = stderrors.As
	New = stderrors.New
)
