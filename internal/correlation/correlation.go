// Package correlation provides middleware and utilities for correlating
// requests across the gateway and inference services. Every request carries a
// correlation ID that appears in logs on both sides of the hop.
package correlation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// IDKey is the context key for storing correlation IDs.
	IDKey contextKey = "correlation_id"

	// HeaderCorrelationID is the canonical HTTP header for correlation IDs.
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderRequestID is accepted as an alternate inbound header for clients
	// that already tag their requests.
	HeaderRequestID = "X-Request-ID"
)

// Generate mints a new correlation ID with the given service prefix, e.g.
// "gw-9f1c...". The prefix identifies which service originated the ID.
func Generate(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}

// FromContext retrieves the correlation ID from the context.
// Returns an empty string if no correlation ID is found.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(IDKey).(string); ok {
		return id
	}
	return ""
}

// WithID adds a correlation ID to the context.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, IDKey, id)
}

// Middleware propagates or mints correlation IDs for HTTP requests.
//
// An inbound X-Correlation-ID wins over X-Request-ID; if neither is present a
// new ID is minted with the given service prefix. The ID is set on the
// response header before the handler runs and stored in the request context.
func Middleware(prefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderCorrelationID)
			if id == "" {
				id = r.Header.Get(HeaderRequestID)
			}
			if id == "" {
				id = Generate(prefix)
			}

			w.Header().Set(HeaderCorrelationID, id)

			ctx := WithID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
