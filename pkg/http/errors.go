package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	domrepo "BrentShift/internal/domain/repository"
	domsvc "BrentShift/internal/domain/service"
)

// AppError represents application-level error with HTTP status.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Field:   field,
		Status:  status,
		Params:  make(map[string]interface{}),
	}
}

// WithParam sets a single error param.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// NotFoundError creates a 404 error.
func NotFoundError(message string) *AppError {
	return NewAppError("ERR_NOT_FOUND", "", message, http.StatusNotFound)
}

// BadRequestError creates a 400 error.
func BadRequestError(message string) *AppError {
	return NewAppError("ERR_BAD_REQUEST", "", message, http.StatusBadRequest)
}

// UnprocessableError creates a 422 error.
func UnprocessableError(message string) *AppError {
	return NewAppError("ERR_UNPROCESSABLE", "", message, http.StatusUnprocessableEntity)
}

// TooManyRequestsError creates a 429 error.
func TooManyRequestsError(message string) *AppError {
	return NewAppError("ERR_RATE_LIMITED", "", message, http.StatusTooManyRequests)
}

// InternalError creates a 500 error.
func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", "", message, http.StatusInternalServerError)
}


// FromError maps the engine and store sentinels onto HTTP errors. Unknown errors become 500
// without leaking their text.
func FromError(err error) *AppError {
	var appErr *AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, domrepo.ErrNotFound):
		return NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, domsvc.ErrConfiguration):
		return BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, domsvc.ErrDomain),
		errors.Is(err, domsvc.ErrInsufficientSamples),
		errors.Is(err, domsvc.ErrEmptyChain):
		return UnprocessableError(err.Error()).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewAppError("ERR_TIMEOUT", "", "request timed out", http.StatusGatewayTimeout).WithError(err)
	default:
		return InternalError("Something went wrong").WithError(err)
	}
}
