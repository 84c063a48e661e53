package handler

import (
	"log/slog"
	"net/http"

	"github.com/hemmokarja/High-Performance-ML-API/internal/gateway/apikey"
	"github.com/hemmokarja/High-Performance-ML-API/internal/gateway/auth"
	"github.com/hemmokarja/High-Performance-ML-API/internal/gateway/proxy"
	"github.com/hemmokarja/High-Performance-ML-API/internal/middleware"
	"github.com/hemmokarja/High-Performance-ML-API/pkg/ratelimit"
)

// Routes assembles the gateway's route table. Health, readiness and metrics
// are public; the v1 API sits behind API key authentication and rate
// limiting.
func Routes(client *proxy.Client, keys *apikey.Store, limiter ratelimit.Limiter, logger *slog.Logger) http.Handler {
	authn := auth.Middleware(keys, limiter, logger)

	protected := http.NewServeMux()
	protected.Handle("POST /v1/embed", Embed(client, logger))
	protected.Handle("GET /v1/usage", Usage(limiter, logger))

	mux := http.NewServeMux()
	mux.Handle("GET /health", Health(client))
	mux.Handle("GET /ready", Ready())
	mux.Handle("GET /metrics", middleware.MetricsHandler())
	mux.Handle("/v1/", authn(protected))

	return mux
}
