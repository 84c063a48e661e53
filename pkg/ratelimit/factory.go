package ratelimit

import (
	"context"
	"log/slog"
)

// New selects the limiter backend for the gateway.
//
// With bypass set, every request is admitted regardless of Redis
// availability. Otherwise Redis is tried first; if it is unreachable the
// gateway degrades to a no-op limiter with a warning rather than refusing to
// start, trading enforcement for availability.
func New(ctx context.Context, redisURL string, bypass bool, logger *slog.Logger) Limiter {
	if bypass {
		logger.Warn("rate limiting bypassed, all requests will be admitted")
		setBackendGauge("disabled")
		return NewNoopLimiter()
	}

	if redisURL == "memory://" {
		logger.Info("rate limiting enabled", slog.String("backend", "memory"))
		setBackendGauge("memory")
		return NewMemoryLimiter(nil)
	}

	limiter, err := NewRedisLimiter(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, rate limiting disabled",
			slog.String("redis_url", redisURL),
			slog.Any("error", err))
		setBackendGauge("disabled")
		return NewNoopLimiter()
	}
	if !limiter.Available(ctx) {
		_ = limiter.Close()
		logger.Warn("redis unavailable, rate limiting disabled",
			slog.String("redis_url", redisURL))
		setBackendGauge("disabled")
		return NewNoopLimiter()
	}

	logger.Info("rate limiting enabled", slog.String("backend", "redis"))
	setBackendGauge("redis")
	return limiter
}
