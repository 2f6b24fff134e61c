package api

import (
	"encoding/json"
	"net/http"
)

// Códigos de erro do corpo {code, message, details}.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeValidation          = "VALIDATION_ERROR"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeRateLimited         = "RATE_LIMITED"
	CodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	CodeRequestInProgress   = "REQUEST_IN_PROGRESS"
	CodePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	CodeServerBusy          = "SERVER_BUSY"
	CodeInternal            = "INTERNAL_ERROR"
)

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, APIError{Code: code, Message: message, Details: details})
}
