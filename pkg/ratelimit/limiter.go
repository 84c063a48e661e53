// Package ratelimit provides per-user sliding window rate limiting with
// pluggable backends.
//
// Admission is checked against two windows at once (per-minute and per-hour)
// and a request is admitted only if it fits in both. The Redis backend makes
// the check atomic across gateway replicas; the in-memory backend serves
// single-node deployments and tests; the no-op backend admits everything.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Window durations for the two admission windows.
const (
	MinuteWindow = time.Minute
	HourWindow   = time.Hour
)

// Limit type identifiers reported on denials and in usage responses.
const (
	LimitTypeMinute = "minute"
	LimitTypeHour   = "hour"
)

// Limiter is the admission interface used by the gateway.
//
// All methods must be safe for concurrent use.
type Limiter interface {
	// Check atomically decides whether one more request from userID fits in
	// both windows, and records it if so. On denial it returns a
	// *LimitExceededError alongside the current counts.
	Check(ctx context.Context, userID string, limitMinute, limitHour int) (*Info, error)

	// Usage reports current window counts for userID without admitting a
	// request.
	Usage(ctx context.Context, userID string) (*Usage, error)

	// Reset clears all recorded requests for userID.
	Reset(ctx context.Context, userID string) error

	// Available cheaply probes the backing store, e.g. with a ping.
	Available(ctx context.Context) bool

	// Backend names the backing store ("redis", "memory" or "disabled").
	Backend() string

	// Close releases backend resources.
	Close() error
}

// Info describes the outcome of an admission check.
type Info struct {
	LimitMinute        int `json:"limit_minute"`
	LimitHour          int `json:"limit_hour"`
	RequestsLastMinute int `json:"requests_last_minute"`
	RequestsLastHour   int `json:"requests_last_hour"`
}

// Usage reports current window counts for a user.
type Usage struct {
	RequestsLastMinute int    `json:"requests_last_minute"`
	RequestsLastHour   int    `json:"requests_last_hour"`
	Timestamp          string `json:"timestamp"`
	Backend            string `json:"backend"`
}

// LimitExceededError is returned by Check when a request does not fit in one
// of the windows.
type LimitExceededError struct {
	// LimitType is "minute" or "hour", whichever window denied first.
	LimitType string
	// Limit is the configured ceiling of the denying window.
	Limit int
	// RetryAfter is the whole number of seconds until the oldest request in
	// the denying window slides out. Always at least 1.
	RetryAfter int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %s, retry after %ds",
		e.Limit, e.LimitType, e.RetryAfter)
}

// Clock abstracts time for the in-memory backend so tests can control the
// window edges precisely.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock backed by the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// MockClock is a manually advanced Clock for tests.
type MockClock struct {
	now time.Time
}

// NewMockClock returns a MockClock frozen at t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mock's current time.
func (m *MockClock) Now() time.Time {
	return m.now
}

// Advance moves the mock's time forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}

// Set moves the mock's time to t.
func (m *MockClock) Set(t time.Time) {
	m.now = t
}

// retryAfterSeconds computes the whole seconds until the oldest timestamp in
// a full window slides out. The floor of one second keeps Retry-After headers
// meaningful even at the window edge.
func retryAfterSeconds(oldest, now time.Time, window time.Duration) int {
	secs := int(oldest.Add(window).Sub(now).Seconds())
	if oldest.Add(window).Sub(now) > time.Duration(secs)*time.Second {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
