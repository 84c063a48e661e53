// Package logging provides structured logging utilities with context propagation.
//
// This package wraps the standard library's log/slog package with helper functions
// for common logging patterns used throughout the application.
//
// Key features:
//   - JSON output with a per-service attribute
//   - Correlation ID propagation
//   - Configurable log levels via LOG_LEVEL
//
// Example usage:
//
//	func main() {
//	    logger := logging.NewLogger("gateway")
//	    logger.Info("application started", slog.String("version", "1.0"))
//	}
//
//	func handleRequest(ctx context.Context) {
//	    logger := logging.WithCorrelationID(ctx, slog.Default())
//	    logger.Info("processing request")
//	}
package logging
