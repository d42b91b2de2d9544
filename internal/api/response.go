package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"newsroom/internal/account"
	"newsroom/internal/constants"
)

// Envelope is embedded in every response body.
type Envelope struct {
	Success bool `json:"success"`
}

var envelopeOK = Envelope{Success: true}

type ErrorResponse struct {
	Envelope
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Envelope
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, MessageResponse{Envelope: envelopeOK, Message: message})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, constants.ErrCodeInvalidRequest, message)
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, constants.ErrCodeUnauthorized, message)
}

func forbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, constants.ErrCodeForbidden, message)
}

func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, constants.ErrCodeNotFound, message)
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, constants.ErrCodeInternal, "An internal error occurred")
}

// writeServiceError maps account errors onto the response envelope. Unknown
// errors are logged and returned as an opaque 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, account.ErrValidation):
		badRequest(w, err.Error())
	case errors.Is(err, account.ErrDuplicateAccount):
		writeError(w, http.StatusConflict, constants.ErrCodeConflict, "An account with this email already exists")
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, constants.ErrCodeInvalidCredentials, "Invalid email or password")
	case errors.Is(err, account.ErrAccountBlocked):
		writeError(w, http.StatusForbidden, constants.ErrCodeAccountBlocked, "Account is blocked")
	case errors.Is(err, account.ErrInvalidOTP):
		writeError(w, http.StatusUnauthorized, constants.ErrCodeInvalidOTP, "Invalid verification code")
	case errors.Is(err, account.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, constants.ErrCodeInvalidToken, "Invalid or expired token")
	case errors.Is(err, account.ErrNotFound):
		notFound(w, "User not found")
	default:
		slog.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		internalError(w)
	}
}
