package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err: &Error{
				Type:    ErrInvalidArgument,
				Message: "test message",
				Cause:   errors.New("underlying error"),
			},
			want: "invalid_argument: test message: underlying error",
		},
		{
			name: "error without cause",
			err: &Error{
				Type:    ErrBackendError,
				Message: "test message",
				Cause:   nil,
			},
			want: "backend_error: test message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("Error.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &Error{
		Type:    ErrInternal,
		Message: "test message",
		Cause:   cause,
	}

	if got := err.Unwrap(); got != cause {
		t.Errorf("Error.Unwrap() = %v, want %v", got, cause)
	}

	errNoCause := &Error{
		Type:    ErrInternal,
		Message: "test message",
		Cause:   nil,
	}

	if got := errNoCause.Unwrap(); got != nil {
		t.Errorf("Error.Unwrap() = %v, want nil", got)
	}
}

func TestNewError(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewError(ErrInvalidArgument, "test message", cause)

	if err.Type != ErrInvalidArgument {
		t.Errorf("NewError().Type = %v, want %v", err.Type, ErrInvalidArgument)
	}
	if err.Message != "test message" {
		t.Errorf("NewError().Message = %v, want %v", err.Message, "test message")
	}
	if err.Cause != cause {
		t.Errorf("NewError().Cause = %v, want %v", err.Cause, cause)
	}
}

func TestNewErrorConstructors(t *testing.T) {
	cause := errors.New("cause")

	tests := []struct {
		name        string
		constructor func(string, error) *Error
		wantType    Type
	}{
		{"NewInvalidArgumentError", NewInvalidArgumentError, ErrInvalidArgument},
		{"NewNameConflictError", NewNameConflictError, ErrNameConflict},
		{"NewSchemaInvalidError", NewSchemaInvalidError, ErrSchemaInvalid},
		{"NewNotFoundError", NewNotFoundError, ErrNotFound},
		{"NewToolInactiveError", NewToolInactiveError, ErrToolInactive},
		{"NewExecutorDisabledError", NewExecutorDisabledError, ErrExecutorDisabled},
		{"NewBackendUnavailableError", NewBackendUnavailableError, ErrBackendUnavailable},
		{"NewBackendError", NewBackendError, ErrBackendError},
		{"NewTimeoutError", NewTimeoutError, ErrTimeout},
		{"NewValidationFailedError", NewValidationFailedError, ErrValidationFailed},
		{"NewEmbeddingShapeError", NewEmbeddingShapeError, ErrEmbeddingShape},
		{"NewInternalError", NewInternalError, ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor("test message", cause)
			if err.Type != tt.wantType {
				t.Errorf("%s().Type = %v, want %v", tt.name, err.Type, tt.wantType)
			}
			if err.Message != "test message" {
				t.Errorf("%s().Message = %v, want %v", tt.name, err.Message, "test message")
			}
			if err.Cause != cause {
				t.Errorf("%s().Cause = %v, want %v", tt.name, err.Cause, cause)
			}
		})
	}
}

func TestErrorTypeCheckers(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		checker func(error) bool
		want    bool
	}{
		{"IsInvalidArgument with matching error", NewInvalidArgumentError("test", nil), IsInvalidArgument, true},
		{"IsInvalidArgument with non-matching error", NewBackendError("test", nil), IsInvalidArgument, false},
		{"IsInvalidArgument with non-Error type", errors.New("regular error"), IsInvalidArgument, false},
		{"IsNameConflict with matching error", NewNameConflictError("test", nil), IsNameConflict, true},
		{"IsNotFound with matching error", NewNotFoundError("test", nil), IsNotFound, true},
		{"IsToolInactive with matching error", NewToolInactiveError("test", nil), IsToolInactive, true},
		{"IsExecutorDisabled with matching error", NewExecutorDisabledError("test", nil), IsExecutorDisabled, true},
		{"IsBackendUnavailable with matching error", NewBackendUnavailableError("test", nil), IsBackendUnavailable, true},
		{"IsTimeout with matching error", NewTimeoutError("test", nil), IsTimeout, true},
		{"IsValidationFailed with matching error", NewValidationFailedError("test", nil), IsValidationFailed, true},
		{"IsInternal with matching error", NewInternalError("test", nil), IsInternal, true},
		{"IsInternal with nil error", nil, IsInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.checker(tt.err)
			if got != tt.want {
				t.Errorf("%s() = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestError_Code(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"invalid argument maps to 400", NewInvalidArgumentError("bad", nil), http.StatusBadRequest},
		{"name conflict maps to 409", NewNameConflictError("dup", nil), http.StatusConflict},
		{"not found maps to 404", NewNotFoundError("missing", nil), http.StatusNotFound},
		{"tool inactive maps to 422", NewToolInactiveError("inactive", nil), http.StatusUnprocessableEntity},
		{"backend unavailable maps to 503", NewBackendUnavailableError("down", nil), http.StatusServiceUnavailable},
		{"backend error maps to 502", NewBackendError("upstream", nil), http.StatusBadGateway},
		{"timeout maps to 504", NewTimeoutError("slow", nil), http.StatusGatewayTimeout},
		{"internal maps to 500", NewInternalError("oops", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Code(); got != tt.want {
				t.Errorf("Code() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCode(t *testing.T) {
	if got := Code(nil); got != http.StatusOK {
		t.Errorf("Code(nil) = %v, want %v", got, http.StatusOK)
	}
	if got := Code(errors.New("plain")); got != http.StatusInternalServerError {
		t.Errorf("Code(plain) = %v, want %v", got, http.StatusInternalServerError)
	}
	wrapped := NewNotFoundError("missing", nil)
	if got := Code(wrapped); got != http.StatusNotFound {
		t.Errorf("Code(wrapped) = %v, want %v", got, http.StatusNotFound)
	}
}
