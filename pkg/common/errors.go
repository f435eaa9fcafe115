package common

import (
	"errors"
	"net/http"
)

// Sentinel errors for the client core. Wrapped by AppError so callers can
// branch with errors.Is while handlers map to HTTP status codes.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrMissingRecord    = errors.New("no existing record to update")
	ErrInvalidFile      = errors.New("invalid file")
	ErrRemoteCall       = errors.New("remote call failed")
	ErrNotFound         = errors.New("resource not found")
	ErrBadRequest       = errors.New("bad request")
	ErrInternalServer   = errors.New("internal server error")
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
	Err       error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap exposes the wrapped sentinel for errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewNotAuthenticatedError reports a missing session token or professional id.
// The operation fails fast, before any network call.
func NewNotAuthenticatedError(message string) *AppError {
	return &AppError{
		Code:      http.StatusUnauthorized,
		ErrorCode: "NOT_AUTHENTICATED",
		Message:   message,
		Err:       ErrNotAuthenticated,
	}
}

// NewMissingRecordError reports an update attempted against a requirement
// that has no backing remote record.
func NewMissingRecordError(message string) *AppError {
	return &AppError{
		Code:      http.StatusConflict,
		ErrorCode: "MISSING_RECORD",
		Message:   message,
		Err:       ErrMissingRecord,
	}
}

// NewInvalidFileError reports a file rejected by the upload gate.
func NewInvalidFileError(message string) *AppError {
	return &AppError{
		Code:      http.StatusBadRequest,
		ErrorCode: "INVALID_FILE",
		Message:   message,
		Err:       ErrInvalidFile,
	}
}

// NewRemoteCallError reports a network failure or non-success upstream
// response, carrying the remote-provided message when available.
func NewRemoteCallError(message string, err error) *AppError {
	if message == "" {
		message = "request to the marketplace service failed"
	}
	return &AppError{
		Code:      http.StatusBadGateway,
		ErrorCode: "REMOTE_CALL_FAILED",
		Message:   message,
		Err:       errors.Join(ErrRemoteCall, err),
	}
}

func NewNotFoundError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Message: message,
		Err:     errors.Join(ErrNotFound, err),
	}
}

func NewBadRequestError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Message: message,
		Err:     errors.Join(ErrBadRequest, err),
	}
}

func NewInternalServerError(message string) *AppError {
	return &AppError{
		Code:    http.StatusInternalServerError,
		Message: message,
		Err:     ErrInternalServer,
	}
}
