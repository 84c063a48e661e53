package handler

import (
	"net/http"

	"github.com/hemmokarja/High-Performance-ML-API/internal/gateway/proxy"
	"github.com/hemmokarja/High-Performance-ML-API/internal/respond"
)

// Version is the gateway build version reported by the health endpoint.
// Overridable at build time with -ldflags "-X ...handler.Version=v1.2.3".
var Version = "dev"

type healthResponse struct {
	Status           string         `json:"status"`
	GatewayVersion   string         `json:"gateway_version"`
	InferenceService map[string]any `json:"inference_service"`
}

// Health handles GET /health. The upstream health document is embedded so
// one probe answers for the whole serving path; the upstream call carries
// its own 2 s deadline and degrades to an unhealthy map rather than failing.
func Health(client *proxy.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, healthResponse{
			Status:           "healthy",
			GatewayVersion:   Version,
			InferenceService: client.Health(r.Context()),
		})
	}
}

// Ready handles GET /ready. The gateway is ready as soon as its routes are
// wired; dependency health is reported by /health instead.
func Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
