// Package respond provides utilities for sending HTTP responses in JSON
// format. All error responses share a single envelope shape so clients can
// handle gateway and inference errors uniformly.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Machine-readable error codes carried in the error envelope.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeInternalError     = "INTERNAL_ERROR"
)

// ErrorBody is the JSON envelope for error responses.
type ErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`
}

// RateLimitBody extends the error envelope with retry information for 429
// responses.
type RateLimitBody struct {
	ErrorBody
	RetryAfter int    `json:"retry_after"`
	Limit      int    `json:"limit"`
	LimitType  string `json:"limit_type"`
}

// JSON writes a JSON response with the given status code and data.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			// Headers are already sent, so the error can only be logged.
			slog.Default().Error("failed to encode JSON response",
				slog.Int("status_code", code),
				slog.Any("error", err))
		}
	}
}

// Error writes a JSON error envelope with the given status code and message.
func Error(w http.ResponseWriter, code int, msg string) {
	JSON(w, code, ErrorBody{Error: msg})
}

// ErrorWithCode writes a JSON error envelope carrying a machine-readable code
// alongside the human-readable message.
func ErrorWithCode(w http.ResponseWriter, status int, msg, detail, code string) {
	JSON(w, status, ErrorBody{Error: msg, Detail: detail, Code: code})
}

// ValidationError writes a 422 response for malformed or out-of-contract
// request payloads.
func ValidationError(w http.ResponseWriter, detail string) {
	ErrorWithCode(w, http.StatusUnprocessableEntity,
		"validation failed", detail, CodeValidationError)
}

// InternalError logs the underlying error and writes a generic 500 response.
// The original error never reaches the client.
func InternalError(w http.ResponseWriter, err error) {
	slog.Default().Error("internal server error", slog.Any("error", err))
	ErrorWithCode(w, http.StatusInternalServerError,
		"internal server error", "", CodeInternalError)
}
