// Package ratelimit enforces "at most N requests per trailing window"
// per identity, using an exact sliding window over a timestamp log.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"showcase-api/internal/memstore"
)

type Result struct {
	Allowed    bool  `json:"allowed"`
	Limit      int   `json:"limit"`
	Remaining  int   `json:"remaining"`
	ResetAt    int64 `json:"reset_at"`
	RetryAfter int   `json:"retry_after,omitempty"`
}

type Limiter struct {
	// mu makes each prune-then-append sequence atomic per call; the
	// store's own lock only covers individual map operations.
	mu      sync.Mutex
	entries *memstore.Store[[]time.Time]
	now     func() time.Time
}

func NewLimiter(sweepInterval, entryTTL time.Duration) *Limiter {
	return &Limiter{
		entries: memstore.New[[]time.Time](sweepInterval, entryTTL),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	l.entries.WithClock(now)
	return l
}

// Check records one request for identity and reports whether it fits
// inside the window. A denied request does not consume a slot.
func (l *Limiter) Check(identity string, limit int, window time.Duration) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	threshold := now.Add(-window)

	hits, _ := l.entries.Get(identity)
	retained := prune(hits, threshold)

	if len(retained) >= limit {
		l.entries.Set(identity, retained)
		oldest := retained[0]
		return Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    oldest.Add(window).Unix(),
			RetryAfter: retryAfterSeconds(oldest.Add(window).Sub(now)),
		}
	}

	retained = append(retained, now)
	l.entries.Set(identity, retained)

	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(retained),
		ResetAt:   retained[0].Add(window).Unix(),
	}
}

// Status runs the same computation as Check without consuming a slot.
func (l *Limiter) Status(identity string, limit int, window time.Duration) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	threshold := now.Add(-window)

	hits, _ := l.entries.Get(identity)
	retained := prune(hits, threshold)

	if len(retained) >= limit {
		oldest := retained[0]
		return Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    oldest.Add(window).Unix(),
			RetryAfter: retryAfterSeconds(oldest.Add(window).Sub(now)),
		}
	}

	resetAt := now.Add(window).Unix()
	if len(retained) > 0 {
		resetAt = retained[0].Add(window).Unix()
	}

	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(retained),
		ResetAt:   resetAt,
	}
}

func (l *Limiter) Reset(identity string) {
	l.entries.Delete(identity)
}

func (l *Limiter) Clear() {
	l.entries.Clear()
}

// Tracked reports how many identities currently hold window state.
func (l *Limiter) Tracked() int {
	return l.entries.Len()
}

func prune(hits []time.Time, threshold time.Time) []time.Time {
	retained := make([]time.Time, 0, len(hits)+1)
	for _, hit := range hits {
		if hit.After(threshold) {
			retained = append(retained, hit)
		}
	}
	return retained
}

func retryAfterSeconds(until time.Duration) int {
	seconds := int(math.Ceil(until.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
