// Package tracing provides OpenTelemetry tracing integration for the
// embedding serving stack. Spans are propagated from the gateway to the
// inference service in W3C Trace Context format, so a single trace covers
// both hops of a request.
package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the shared tracer for both service binaries.
var tracer = otel.Tracer("embedding-serving")

// GetTracer returns the tracer for creating spans.
//
// Example usage:
//
//	ctx, span := tracing.GetTracer().Start(ctx, "batcher.predict")
//	defer span.End()
func GetTracer() trace.Tracer {
	return tracer
}

// Inject writes the trace context from ctx into outbound request headers.
// The gateway uses this when forwarding to the inference service.
func Inject(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}
