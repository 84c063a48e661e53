// Package handler implements the gateway's HTTP surface: the authenticated
// embedding and usage endpoints plus health, readiness and metrics.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/hemmokarja/High-Performance-ML-API/internal/gateway/auth"
	"github.com/hemmokarja/High-Performance-ML-API/internal/gateway/proxy"
	"github.com/hemmokarja/High-Performance-ML-API/internal/observability/logging"
	"github.com/hemmokarja/High-Performance-ML-API/internal/respond"
)

// MaxInputChars is the longest accepted input text after trimming.
const MaxInputChars = 1024

type embedRequest struct {
	InputText string `json:"input_text"`
}

type embedResponse struct {
	Embedding []float32       `json:"embedding"`
	Model     string          `json:"model"`
	RateLimit *rateLimitState `json:"rate_limit,omitempty"`
}

type rateLimitState struct {
	RequestsLastMinute int `json:"requests_last_minute"`
	RequestsLastHour   int `json:"requests_last_hour"`
	LimitMinute        int `json:"limit_minute"`
	LimitHour          int `json:"limit_hour"`
}

// Embed handles POST /v1/embed. The request is validated at the edge so
// malformed input never reaches the inference queue, then forwarded through
// the shared proxy client.
func Embed(client *proxy.Client, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.WithCorrelationID(r.Context(), logger)

		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.ValidationError(w, "request body must be JSON with an input_text field")
			return
		}

		text := strings.TrimSpace(req.InputText)
		if text == "" {
			respond.ValidationError(w, "input_text must not be empty")
			return
		}
		if utf8.RuneCountInString(text) > MaxInputChars {
			respond.ValidationError(w, "input_text must be at most 1024 characters")
			return
		}

		result, err := client.Embed(r.Context(), text)
		if err != nil {
			status := upstreamStatus(err)
			log.Error("inference request failed",
				slog.Int("status", status),
				slog.Any("error", err))
			respond.ErrorWithCode(w, status,
				upstreamMessage(status), "", respond.CodeInternalError)
			return
		}

		resp := embedResponse{
			Embedding: result.Embedding,
			Model:     result.Model,
		}
		if user := auth.UserFromContext(r.Context()); user != nil && user.RateLimitInfo != nil {
			resp.RateLimit = &rateLimitState{
				RequestsLastMinute: user.RateLimitInfo.RequestsLastMinute,
				RequestsLastHour:   user.RateLimitInfo.RequestsLastHour,
				LimitMinute:        user.RateLimitInfo.LimitMinute,
				LimitHour:          user.RateLimitInfo.LimitHour,
			}
		}
		respond.JSON(w, http.StatusOK, resp)
	}
}

func upstreamStatus(err error) int {
	switch {
	case errors.Is(err, proxy.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, proxy.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func upstreamMessage(status int) string {
	switch status {
	case http.StatusGatewayTimeout:
		return "inference request timed out"
	case http.StatusBadGateway:
		return "inference service unavailable"
	default:
		return "internal server error"
	}
}
