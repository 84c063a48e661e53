package correlation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	id := Generate("gw")

	assert.True(t, strings.HasPrefix(id, "gw-"))
	_, err := uuid.Parse(strings.TrimPrefix(id, "gw-"))
	assert.NoError(t, err, "suffix should be a valid UUID")
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{
			name:     "with correlation ID",
			ctx:      WithID(context.Background(), "gw-test-123"),
			expected: "gw-test-123",
		},
		{
			name:     "without correlation ID",
			ctx:      context.Background(),
			expected: "",
		},
		{
			name:     "with invalid type in context",
			ctx:      context.WithValue(context.Background(), IDKey, 12345),
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FromContext(tt.ctx))
		})
	}
}

func TestMiddleware_PropagatesInboundHeaders(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{
			name:     "correlation ID header",
			headers:  map[string]string{HeaderCorrelationID: "gw-abc"},
			expected: "gw-abc",
		},
		{
			name:     "request ID header",
			headers:  map[string]string{HeaderRequestID: "client-xyz"},
			expected: "client-xyz",
		},
		{
			name: "correlation ID wins over request ID",
			headers: map[string]string{
				HeaderCorrelationID: "gw-abc",
				HeaderRequestID:     "client-xyz",
			},
			expected: "gw-abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := Middleware("gw")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expected, captured)
			assert.Equal(t, tt.expected, rec.Header().Get(HeaderCorrelationID))
		})
	}
}

func TestMiddleware_MintsNewID(t *testing.T) {
	var captured string
	handler := Middleware("inf")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.True(t, strings.HasPrefix(captured, "inf-"))
	assert.Equal(t, captured, rec.Header().Get(HeaderCorrelationID))
}

func TestMiddleware_HeaderSetBeforeHandlerWrites(t *testing.T) {
	handler := Middleware("gw")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The response header must already be populated when the handler
		// starts writing the body.
		assert.NotEmpty(t, w.Header().Get(HeaderCorrelationID))
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
}

func TestMiddleware_UniquePerRequest(t *testing.T) {
	ids := make(map[string]bool)
	handler := Middleware("gw")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids[FromContext(r.Context())] = true
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	}

	assert.Equal(t, 10, len(ids))
}
