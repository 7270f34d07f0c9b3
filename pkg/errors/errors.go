// Package errors defines the typed error taxonomy shared across the
// registry, retrieval, router and discovery packages.
package errors

import (
	"errors"
	"net/http"
)

// Type is a taxonomy string identifying the class of failure. It is part of
// the wire contract (logged, and used to select an HTTP status) so values
// are stable once shipped.
type Type string

// Error taxonomy, per the error-handling design: input errors, not-found,
// state errors, backend errors, timeout, and validation-at-boundary.
const (
	ErrInvalidArgument    Type = "invalid_argument"
	ErrNameConflict       Type = "name_conflict"
	ErrSchemaInvalid      Type = "schema_invalid"
	ErrNotFound           Type = "not_found"
	ErrToolInactive       Type = "tool_inactive"
	ErrExecutorDisabled   Type = "executor_disabled"
	ErrBackendUnavailable Type = "backend_unavailable"
	ErrBackendError       Type = "backend_error"
	ErrTimeout            Type = "timeout"
	ErrValidationFailed   Type = "validation_failed"
	ErrEmbeddingShape     Type = "embedding_shape"
	ErrInternal           Type = "internal"
)

// Error is the typed error carried across package boundaries. Message is
// safe to return to a caller; Cause may contain details that are only
// logged, never serialized to a client response for 5xx-mapped types.
type Error struct {
	Type    Type
	Message string
	Cause   error
}

// Error implements the error interface, formatting as "type: message[:
// cause]".
func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Type) + ": " + e.Message
	}
	return string(e.Type) + ": " + e.Message + ": " + e.Cause.Error()
}

// Unwrap exposes Cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Code maps a Type to an HTTP status code.
func (e *Error) Code() int {
	switch e.Type {
	case ErrInvalidArgument, ErrSchemaInvalid, ErrValidationFailed, ErrEmbeddingShape:
		return http.StatusBadRequest
	case ErrNameConflict:
		return http.StatusConflict
	case ErrNotFound:
		return http.StatusNotFound
	case ErrToolInactive, ErrExecutorDisabled:
		return http.StatusUnprocessableEntity
	case ErrBackendUnavailable:
		return http.StatusServiceUnavailable
	case ErrBackendError:
		return http.StatusBadGateway
	case ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NewError constructs an *Error of the given type.
func NewError(t Type, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// NewInvalidArgumentError constructs an ErrInvalidArgument.
func NewInvalidArgumentError(message string, cause error) *Error {
	return NewError(ErrInvalidArgument, message, cause)
}

// NewNameConflictError constructs an ErrNameConflict.
func NewNameConflictError(message string, cause error) *Error {
	return NewError(ErrNameConflict, message, cause)
}

// NewSchemaInvalidError constructs an ErrSchemaInvalid.
func NewSchemaInvalidError(message string, cause error) *Error {
	return NewError(ErrSchemaInvalid, message, cause)
}

// NewNotFoundError constructs an ErrNotFound.
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewToolInactiveError constructs an ErrToolInactive.
func NewToolInactiveError(message string, cause error) *Error {
	return NewError(ErrToolInactive, message, cause)
}

// NewExecutorDisabledError constructs an ErrExecutorDisabled.
func NewExecutorDisabledError(message string, cause error) *Error {
	return NewError(ErrExecutorDisabled, message, cause)
}

// NewBackendUnavailableError constructs an ErrBackendUnavailable.
func NewBackendUnavailableError(message string, cause error) *Error {
	return NewError(ErrBackendUnavailable, message, cause)
}

// NewBackendError constructs an ErrBackendError.
func NewBackendError(message string, cause error) *Error {
	return NewError(ErrBackendError, message, cause)
}

// NewTimeoutError constructs an ErrTimeout.
func NewTimeoutError(message string, cause error) *Error {
	return NewError(ErrTimeout, message, cause)
}

// NewValidationFailedError constructs an ErrValidationFailed.
func NewValidationFailedError(message string, cause error) *Error {
	return NewError(ErrValidationFailed, message, cause)
}

// NewEmbeddingShapeError constructs an ErrEmbeddingShape.
func NewEmbeddingShapeError(message string, cause error) *Error {
	return NewError(ErrEmbeddingShape, message, cause)
}

// NewInternalError constructs an ErrInternal.
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

func is(err error, t Type) bool {
	if err == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == t
}

// IsInvalidArgument reports whether err is (or wraps) an ErrInvalidArgument.
func IsInvalidArgument(err error) bool { return is(err, ErrInvalidArgument) }

// IsNameConflict reports whether err is (or wraps) an ErrNameConflict.
func IsNameConflict(err error) bool { return is(err, ErrNameConflict) }

// IsSchemaInvalid reports whether err is (or wraps) an ErrSchemaInvalid.
func IsSchemaInvalid(err error) bool { return is(err, ErrSchemaInvalid) }

// IsNotFound reports whether err is (or wraps) an ErrNotFound.
func IsNotFound(err error) bool { return is(err, ErrNotFound) }

// IsToolInactive reports whether err is (or wraps) an ErrToolInactive.
func IsToolInactive(err error) bool { return is(err, ErrToolInactive) }

// IsExecutorDisabled reports whether err is (or wraps) an ErrExecutorDisabled.
func IsExecutorDisabled(err error) bool { return is(err, ErrExecutorDisabled) }

// IsBackendUnavailable reports whether err is (or wraps) an ErrBackendUnavailable.
func IsBackendUnavailable(err error) bool { return is(err, ErrBackendUnavailable) }

// IsBackendErrorType reports whether err is (or wraps) an ErrBackendError.
func IsBackendErrorType(err error) bool { return is(err, ErrBackendError) }

// IsTimeout reports whether err is (or wraps) an ErrTimeout.
func IsTimeout(err error) bool { return is(err, ErrTimeout) }

// IsValidationFailed reports whether err is (or wraps) an ErrValidationFailed.
func IsValidationFailed(err error) bool { return is(err, ErrValidationFailed) }

// IsInternal reports whether err is (or wraps) an ErrInternal.
func IsInternal(err error) bool { return is(err, ErrInternal) }

// Code extracts an HTTP status code from err, defaulting to 500 when err is
// not (and does not wrap) an *Error, and delegating to an httperr-style
// Coder interface for errors from outside this package.
func Code(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code()
	}
	var coder interface{ HTTPStatus() int }
	if errors.As(err, &coder) {
		return coder.HTTPStatus()
	}
	return http.StatusInternalServerError
}
