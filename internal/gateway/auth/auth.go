// Package auth implements Bearer API key authentication and per-user rate
// limit admission for the gateway.
//
// The middleware runs before every protected handler: it resolves the API
// key to a user, checks the user's quota, and stores both the user identity
// and the admission counts in the request context for downstream handlers.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hemmokarja/High-Performance-ML-API/internal/correlation"
	"github.com/hemmokarja/High-Performance-ML-API/internal/gateway/apikey"
	"github.com/hemmokarja/High-Performance-ML-API/internal/respond"
	"github.com/hemmokarja/High-Performance-ML-API/pkg/ratelimit"
)

type ctxKey string

const ctxUser ctxKey = "auth_user"

// User is the authenticated identity attached to the request context.
type User struct {
	ID              string
	Name            string
	RateLimitMinute int
	RateLimitHour   int
	RateLimitInfo   *ratelimit.Info
}

// UserFromContext retrieves the authenticated user from the context.
// Returns nil when the request did not pass through the middleware.
func UserFromContext(ctx context.Context) *User {
	if u, ok := ctx.Value(ctxUser).(*User); ok {
		return u
	}
	return nil
}

func withUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxUser, u)
}

// Middleware authenticates the Bearer API key and enforces the user's rate
// limits.
//
// Unknown, missing and revoked keys all produce the same 401 so probing
// cannot distinguish them. Denied quota checks produce a 429 with
// Retry-After, X-RateLimit-Limit and X-RateLimit-Reset headers.
func Middleware(keys *apikey.Store, limiter ratelimit.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			record := keys.Lookup(key)
			if record == nil {
				logger.Warn("authentication failed",
					slog.String("correlation_id", correlation.FromContext(r.Context())),
					slog.String("key_hash", apikey.HashKey(key)[:16]))
				unauthorized(w)
				return
			}

			user := &User{
				ID:              record.UserID,
				Name:            record.Name,
				RateLimitMinute: record.RateLimitMinute,
				RateLimitHour:   record.RateLimitHour,
			}

			info, err := limiter.Check(r.Context(), user.ID, user.RateLimitMinute, user.RateLimitHour)

			var limErr *ratelimit.LimitExceededError
			switch {
			case errors.As(err, &limErr):
				logger.Info("rate limit exceeded",
					slog.String("correlation_id", correlation.FromContext(r.Context())),
					slog.String("user_id", user.ID),
					slog.String("limit_type", limErr.LimitType),
					slog.Int("retry_after", limErr.RetryAfter))
				tooManyRequests(w, limErr)
				return
			case err != nil:
				// Backend failure after startup: fail open so a Redis blip
				// does not take the API down.
				logger.Error("rate limit check failed, admitting request",
					slog.String("correlation_id", correlation.FromContext(r.Context())),
					slog.String("user_id", user.ID),
					slog.Any("error", err))
				info = &ratelimit.Info{
					LimitMinute: user.RateLimitMinute,
					LimitHour:   user.RateLimitHour,
				}
			}

			user.RateLimitInfo = info
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// bearerToken extracts the credential from an Authorization header.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	respond.Error(w, http.StatusUnauthorized, "Invalid API key")
}

func tooManyRequests(w http.ResponseWriter, limErr *ratelimit.LimitExceededError) {
	w.Header().Set("Retry-After", strconv.Itoa(limErr.RetryAfter))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limErr.Limit))
	w.Header().Set("X-RateLimit-Reset",
		strconv.FormatInt(time.Now().Add(time.Duration(limErr.RetryAfter)*time.Second).Unix(), 10))

	respond.JSON(w, http.StatusTooManyRequests, respond.RateLimitBody{
		ErrorBody: respond.ErrorBody{
			Error: "rate limit exceeded",
			Code:  respond.CodeRateLimitExceeded,
		},
		RetryAfter: limErr.RetryAfter,
		Limit:      limErr.Limit,
		LimitType:  limErr.LimitType,
	})
}
