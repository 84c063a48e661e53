// Package logging provides structured logging utilities using the standard
// library's log/slog package. Both services emit JSON logs with a "service"
// attribute and carry the correlation ID on every request-scoped entry.
package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/hemmokarja/High-Performance-ML-API/internal/correlation"
)

// NewLogger creates a new structured logger with JSON output, tagged with the
// service name ("gateway" or "inference").
// The log level can be controlled via the LOG_LEVEL environment variable.
// Supported levels: debug, info, warn, error
// Default level: info
func NewLogger(service string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: Level(),
	})
	return slog.New(handler).With(slog.String("service", service))
}

// Level reads the log level from the LOG_LEVEL environment variable.
func Level() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithCorrelationID returns a logger that includes the correlation ID from
// the context. This ties together log entries across the gateway and the
// inference service for a single request.
func WithCorrelationID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	id := correlation.FromContext(ctx)
	if id == "" {
		return logger
	}
	return logger.With(slog.String("correlation_id", id))
}
