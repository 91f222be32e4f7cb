// Package ratelimit counts model round-trips per user over a sliding window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Status is a snapshot of a user's counter.
type Status struct {
	Allowed bool      `json:"allowed"`
	Count   int64     `json:"count"`
	Limit   int64     `json:"limit"`
	ResetAt time.Time `json:"reset_at"`
}

// Limiter checks and increments per-user counters. Implementations are safe
// for concurrent use.
type Limiter interface {
	// Check reports whether another request fits in the window ending now
	// without counting it.
	Check(ctx context.Context, userID string) (Status, error)
	// Increment counts one request and returns the resulting status.
	Increment(ctx context.Context, userID string) (Status, error)
}

// MemoryLimiter keeps a sliding log of request times per user in process
// memory.
type MemoryLimiter struct {
	mu     sync.Mutex
	limit  int64
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:  int64(limit),
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Check implements Limiter.
func (m *MemoryLimiter) Check(ctx context.Context, userID string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	hits := m.prune(userID, now)
	return m.status(hits, now, int64(len(hits)) < m.limit), nil
}

// Increment implements Limiter.
func (m *MemoryLimiter) Increment(ctx context.Context, userID string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	hits := append(m.prune(userID, now), now)
	m.hits[userID] = hits
	return m.status(hits, now, int64(len(hits)) <= m.limit), nil
}

// prune drops hits that have left the window ending at now.
func (m *MemoryLimiter) prune(userID string, now time.Time) []time.Time {
	hits := m.hits[userID]
	cutoff := now.Add(-m.window)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == len(hits) {
		delete(m.hits, userID)
		return nil
	}
	hits = hits[i:]
	m.hits[userID] = hits
	return hits
}

func (m *MemoryLimiter) status(hits []time.Time, now time.Time, allowed bool) Status {
	return Status{
		Allowed: allowed,
		Count:   int64(len(hits)),
		Limit:   m.limit,
		ResetAt: resetAt(hits, now, m.window),
	}
}

// resetAt is when the oldest hit leaves the window and frees a slot.
func resetAt(hits []time.Time, now time.Time, window time.Duration) time.Time {
	if len(hits) == 0 {
		return now.Add(window)
	}
	return hits[0].Add(window)
}
