package handler

import (
	"log/slog"
	"net/http"

	"github.com/hemmokarja/High-Performance-ML-API/internal/gateway/auth"
	"github.com/hemmokarja/High-Performance-ML-API/internal/observability/logging"
	"github.com/hemmokarja/High-Performance-ML-API/internal/respond"
	"github.com/hemmokarja/High-Performance-ML-API/pkg/ratelimit"
)

type usageResponse struct {
	UserID string           `json:"user_id"`
	Usage  *ratelimit.Usage `json:"usage"`
	Limits usageLimits      `json:"limits"`
}

type usageLimits struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
}

// Usage handles GET /v1/usage. It reads window counts without admitting a
// request, so polling usage never consumes quota.
func Usage(limiter ratelimit.Limiter, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFromContext(r.Context())
		if user == nil {
			respond.Error(w, http.StatusUnauthorized, "Invalid API key")
			return
		}

		usage, err := limiter.Usage(r.Context(), user.ID)
		if err != nil {
			logging.WithCorrelationID(r.Context(), logger).Error("usage lookup failed",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
			respond.InternalError(w, err)
			return
		}

		respond.JSON(w, http.StatusOK, usageResponse{
			UserID: user.ID,
			Usage:  usage,
			Limits: usageLimits{
				PerMinute: user.RateLimitMinute,
				PerHour:   user.RateLimitHour,
			},
		})
	}
}
