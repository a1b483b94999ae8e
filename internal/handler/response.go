package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"comunidad-service/internal/models"
	"comunidad-service/internal/service"
	"comunidad-service/internal/util"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta represents pagination metadata
type Meta struct {
	PageToken string `json:"page_token,omitempty"`
	Total     int    `json:"total,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
}

// successResponse creates a successful response
func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

// errorResponse creates an error response
func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	util.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	respondWithJSON(w, statusCode, errorResponse(err, message))
}

// respondWithServiceError maps a service error to a status code. Code
// mismatches carry the remaining attempt count in the response data.
func respondWithServiceError(w http.ResponseWriter, err error, message string) {
	var mismatch *service.CodeMismatchError
	if errors.As(err, &mismatch) {
		util.Warn("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", http.StatusUnauthorized),
			util.String("message", message),
		)
		response := errorResponse(err, message)
		response.Data = map[string]interface{}{"remaining_attempts": mismatch.Remaining}
		respondWithJSON(w, http.StatusUnauthorized, response)
		return
	}

	respondWithError(w, getStatusCode(err), err, message)
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrChallengeNotFound),
		errors.Is(err, service.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidIdentifier),
		errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrTooManyRequests),
		errors.Is(err, service.ErrAttemptsExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrCodeExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrAccountExists),
		errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrVerificationRequired):
		return http.StatusPreconditionFailed
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAccountNotActive):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// sanitizeAccount removes encrypted contact data before sending in response
func sanitizeAccount(account *models.Account) {
	account.IdentifierEncrypted = ""
	account.IdentifierDEK = ""
	account.IdentifierKeyID = ""
}
