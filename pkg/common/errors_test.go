package common

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorConstructorsWrapSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		sentinel error
		code     int
	}{
		{"not authenticated", NewNotAuthenticatedError("please log in"), ErrNotAuthenticated, http.StatusUnauthorized},
		{"missing record", NewMissingRecordError("no identity record"), ErrMissingRecord, http.StatusConflict},
		{"invalid file", NewInvalidFileError("file too large"), ErrInvalidFile, http.StatusBadRequest},
		{"remote call", NewRemoteCallError("upstream said no", nil), ErrRemoteCall, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			assert.Equal(t, tt.code, tt.err.Code)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestRemoteCallErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewRemoteCallError("", cause)

	assert.True(t, errors.Is(err, ErrRemoteCall))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "request to the marketplace service failed", err.Message)
}

func TestAppErrorMessagePrecedence(t *testing.T) {
	err := &AppError{Code: 500, Message: "boom", Err: errors.New("cause")}
	assert.Equal(t, "boom", err.Error())

	err = &AppError{Code: 500, Err: errors.New("cause")}
	assert.Equal(t, "cause", err.Error())
}
