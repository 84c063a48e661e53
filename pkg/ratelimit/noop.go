package ratelimit

import (
	"context"
	"time"
)

// NoopLimiter admits every request and reports zero usage. It backs the
// bypass switch and the degraded mode entered when Redis is unreachable at
// startup.
type NoopLimiter struct{}

// NewNoopLimiter creates a limiter that never denies.
func NewNoopLimiter() *NoopLimiter { return &NoopLimiter{} }

// Check implements Limiter. Counts are always zero so clients can tell the
// limiter is not enforcing.
func (l *NoopLimiter) Check(ctx context.Context, userID string, limitMinute, limitHour int) (*Info, error) {
	recordAllowed("disabled")
	return &Info{
		LimitMinute: limitMinute,
		LimitHour:   limitHour,
	}, nil
}

// Usage implements Limiter.
func (l *NoopLimiter) Usage(ctx context.Context, userID string) (*Usage, error) {
	return &Usage{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Backend:   l.Backend(),
	}, nil
}

// Reset implements Limiter.
func (l *NoopLimiter) Reset(ctx context.Context, userID string) error { return nil }

// Available implements Limiter. There is no backing store to fail.
func (l *NoopLimiter) Available(ctx context.Context) bool { return true }

// Backend implements Limiter.
func (l *NoopLimiter) Backend() string { return "disabled" }

// Close implements Limiter.
func (l *NoopLimiter) Close() error { return nil }
