package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comunidad-service/internal/service"
)

func TestGetStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrInvalidIdentifier, http.StatusBadRequest},
		{service.ErrInvalidCode, http.StatusBadRequest},
		{fmt.Errorf("%w: project_id is required", service.ErrInvalidInput), http.StatusBadRequest},
		{service.ErrTooManyRequests, http.StatusTooManyRequests},
		{service.ErrAttemptsExceeded, http.StatusTooManyRequests},
		{service.ErrChallengeNotFound, http.StatusNotFound},
		{service.ErrAccountNotFound, http.StatusNotFound},
		{service.ErrCodeExpired, http.StatusGone},
		{service.ErrAccountExists, http.StatusConflict},
		{service.ErrInvalidTransition, http.StatusConflict},
		{service.ErrVerificationRequired, http.StatusPreconditionFailed},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrAccountNotActive, http.StatusForbidden},
		{errors.New("scylla timeout"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, getStatusCode(tt.err), "error %v", tt.err)
	}
}

func TestRespondWithServiceErrorCodeMismatch(t *testing.T) {
	rec := httptest.NewRecorder()
	respondWithServiceError(rec, &service.CodeMismatchError{Remaining: 2}, "Failed to verify code")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var response Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.False(t, response.Success)

	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 2, data["remaining_attempts"])
}

func TestRespondWithServiceErrorSentinel(t *testing.T) {
	rec := httptest.NewRecorder()
	respondWithServiceError(rec, service.ErrTooManyRequests, "Failed to send verification code")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var response Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.False(t, response.Success)
	assert.Equal(t, service.ErrTooManyRequests.Error(), response.Error)
}
