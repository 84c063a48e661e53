package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a Limiter backed by per-user timestamp slices. It mirrors
// the Redis backend's semantics for single-node deployments and tests, but
// its state is process-local: replicas each enforce their own quota.
type MemoryLimiter struct {
	mu    sync.Mutex
	users map[string][]time.Time
	clock Clock
}

// NewMemoryLimiter creates an in-memory limiter. A nil clock defaults to the
// system clock.
func NewMemoryLimiter(clock Clock) *MemoryLimiter {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MemoryLimiter{
		users: make(map[string][]time.Time),
		clock: clock,
	}
}

// Check implements Limiter. The hour window is a superset of the minute
// window, so one timestamp slice pruned at the hour horizon serves both
// counts.
func (l *MemoryLimiter) Check(ctx context.Context, userID string, limitMinute, limitHour int) (*Info, error) {
	start := time.Now()
	defer func() { observeCheckDuration("memory", time.Since(start)) }()

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	stamps := l.prune(userID, now)

	minuteCount, hourCount := countWindows(stamps, now)

	info := &Info{
		LimitMinute:        limitMinute,
		LimitHour:          limitHour,
		RequestsLastMinute: minuteCount,
		RequestsLastHour:   hourCount,
	}

	if minuteCount >= limitMinute {
		recordDenied("memory", LimitTypeMinute)
		oldest := oldestInWindow(stamps, now, MinuteWindow)
		return info, &LimitExceededError{
			LimitType:  LimitTypeMinute,
			Limit:      limitMinute,
			RetryAfter: retryAfterSeconds(oldest, now, MinuteWindow),
		}
	}
	if hourCount >= limitHour {
		recordDenied("memory", LimitTypeHour)
		return info, &LimitExceededError{
			LimitType:  LimitTypeHour,
			Limit:      limitHour,
			RetryAfter: retryAfterSeconds(stamps[0], now, HourWindow),
		}
	}

	l.users[userID] = append(stamps, now)
	info.RequestsLastMinute++
	info.RequestsLastHour++
	recordAllowed("memory")
	return info, nil
}

// Usage implements Limiter.
func (l *MemoryLimiter) Usage(ctx context.Context, userID string) (*Usage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	stamps := l.prune(userID, now)
	minuteCount, hourCount := countWindows(stamps, now)

	return &Usage{
		RequestsLastMinute: minuteCount,
		RequestsLastHour:   hourCount,
		Timestamp:          now.UTC().Format(time.RFC3339),
		Backend:            l.Backend(),
	}, nil
}

// Reset implements Limiter.
func (l *MemoryLimiter) Reset(ctx context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.users, userID)
	return nil
}

// Available implements Limiter. The store is process-local.
func (l *MemoryLimiter) Available(ctx context.Context) bool { return true }

// Backend implements Limiter.
func (l *MemoryLimiter) Backend() string { return "memory" }

// Close implements Limiter.
func (l *MemoryLimiter) Close() error { return nil }

// prune drops timestamps outside the hour horizon and deletes empty entries
// so idle users do not accumulate. Callers must hold the mutex.
func (l *MemoryLimiter) prune(userID string, now time.Time) []time.Time {
	cutoff := now.Add(-HourWindow)
	stamps := l.users[userID]

	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.users, userID)
		return nil
	}
	l.users[userID] = kept
	return kept
}

// countWindows counts timestamps in both windows. Timestamps are appended in
// order, so the slice is sorted ascending.
func countWindows(stamps []time.Time, now time.Time) (minuteCount, hourCount int) {
	minuteCutoff := now.Add(-MinuteWindow)
	for _, ts := range stamps {
		hourCount++
		if ts.After(minuteCutoff) {
			minuteCount++
		}
	}
	return minuteCount, hourCount
}

// oldestInWindow returns the oldest timestamp inside the given window.
func oldestInWindow(stamps []time.Time, now time.Time, window time.Duration) time.Time {
	cutoff := now.Add(-window)
	for _, ts := range stamps {
		if ts.After(cutoff) {
			return ts
		}
	}
	return now
}
