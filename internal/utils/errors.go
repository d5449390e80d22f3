package utils

import (
	"errors"
	"net/http"
)

// ErrorKind is the machine-readable failure category returned to clients.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindNotFound        ErrorKind = "not_found"
	KindForbidden       ErrorKind = "forbidden"
	KindInvalidState    ErrorKind = "invalid_state"
	KindInvalidThread   ErrorKind = "invalid_thread"
	KindUpstreamTimeout ErrorKind = "upstream_timeout"
	KindUpstreamError   ErrorKind = "upstream_error"
	KindAuthExpired     ErrorKind = "auth_expired"
	KindAuthInvalid     ErrorKind = "auth_invalid"
	KindInternal        ErrorKind = "internal"
)

// AppError is the error type surfaced to API clients. Message is safe to
// expose; internal causes stay in the logs. CorrelationID lets support match
// a failure report against the audit trail.
type AppError struct {
	StatusCode    int       `json:"-"`
	Kind          ErrorKind `json:"kind"`
	Message       string    `json:"error"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

// WithCorrelation returns a copy carrying the request's correlation id.
func (e *AppError) WithCorrelation(id string) *AppError {
	cp := *e
	cp.CorrelationID = id
	return &cp
}

// AsAppError unwraps err into an *AppError, or wraps it as an internal error.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("Internal server error")
}

func NewValidationError(message string) *AppError {
	return &AppError{StatusCode: http.StatusBadRequest, Kind: KindValidation, Message: message}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{StatusCode: http.StatusNotFound, Kind: KindNotFound, Message: message}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{StatusCode: http.StatusForbidden, Kind: KindForbidden, Message: message}
}

func NewInvalidStateError(message string) *AppError {
	return &AppError{StatusCode: http.StatusConflict, Kind: KindInvalidState, Message: message}
}

func NewInvalidThreadError(message string) *AppError {
	return &AppError{StatusCode: http.StatusBadRequest, Kind: KindInvalidThread, Message: message}
}

func NewUpstreamTimeoutError(message string) *AppError {
	return &AppError{StatusCode: http.StatusGatewayTimeout, Kind: KindUpstreamTimeout, Message: message}
}

func NewUpstreamError(message string) *AppError {
	return &AppError{StatusCode: http.StatusBadGateway, Kind: KindUpstreamError, Message: message}
}

func NewAuthExpiredError(message string) *AppError {
	return &AppError{StatusCode: http.StatusUnauthorized, Kind: KindAuthExpired, Message: message}
}

func NewAuthInvalidError(message string) *AppError {
	return &AppError{StatusCode: http.StatusUnauthorized, Kind: KindAuthInvalid, Message: message}
}

func NewInternalError(message string) *AppError {
	return &AppError{StatusCode: http.StatusInternalServerError, Kind: KindInternal, Message: message}
}
