// Package handler implements the inference service's HTTP surface: the
// embedding endpoint over the batching scheduler plus health, readiness and
// metrics.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/hemmokarja/High-Performance-ML-API/internal/inference/batcher"
	"github.com/hemmokarja/High-Performance-ML-API/internal/inference/model"
	"github.com/hemmokarja/High-Performance-ML-API/internal/middleware"
	"github.com/hemmokarja/High-Performance-ML-API/internal/observability/logging"
	"github.com/hemmokarja/High-Performance-ML-API/internal/observability/tracing"
	"github.com/hemmokarja/High-Performance-ML-API/internal/respond"
)

// MaxInputChars mirrors the gateway's input ceiling. The inference service
// revalidates because it can be deployed behind other callers.
const MaxInputChars = 1024

type embedRequest struct {
	InputText string `json:"input_text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// Embed handles POST /embed: validate, run through the batching scheduler,
// return the vector.
func Embed(p batcher.Predictor, m model.Model, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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

		ctx, span := tracing.GetTracer().Start(r.Context(), "batcher.predict")
		vec, err := p.Predict(ctx, text)
		span.End()
		if err != nil {
			writePredictError(w, r, err, logger)
			return
		}

		respond.JSON(w, http.StatusOK, embedResponse{
			Embedding: vec,
			Model:     m.Name(),
		})
	}
}

func writePredictError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	log := logging.WithCorrelationID(r.Context(), logger)

	switch {
	case errors.Is(err, batcher.ErrQueueFull):
		log.Warn("request queue saturated")
		respond.ErrorWithCode(w, http.StatusServiceUnavailable,
			"server overloaded", "request queue full", respond.CodeInternalError)
	case errors.Is(err, batcher.ErrNotStarted), errors.Is(err, batcher.ErrShuttingDown):
		respond.ErrorWithCode(w, http.StatusServiceUnavailable,
			"service unavailable", "", respond.CodeInternalError)
	default:
		log.Error("inference failed", slog.Any("error", err))
		respond.InternalError(w, err)
	}
}

type healthResponse struct {
	Status          string `json:"status"`
	Model           string `json:"model"`
	Device          string `json:"device"`
	QueueSize       int    `json:"queue_size"`
	InflightBatches int    `json:"inflight_batches"`
}

// Health handles GET /health with live scheduler gauges.
func Health(p batcher.Predictor, m model.Model) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, healthResponse{
			Status:          "healthy",
			Model:           m.Name(),
			Device:          m.Device(),
			QueueSize:       p.QueueSize(),
			InflightBatches: p.InflightBatches(),
		})
	}
}

// Ready handles GET /ready.
func Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// Routes assembles the inference route table.
func Routes(p batcher.Predictor, m model.Model, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /embed", Embed(p, m, logger))
	mux.Handle("GET /health", Health(p, m))
	mux.Handle("GET /ready", Ready())
	mux.Handle("GET /metrics", middleware.MetricsHandler())
	return mux
}
