// Package memstore provides a mutex-guarded in-memory map whose idle
// entries are reclaimed by a lazy, rate-limited sweep. Eviction only
// bounds memory for abandoned keys; callers that need time-based
// semantics compute them from data inside their own entries.
package memstore

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value      V
	lastAccess time.Time
}

type Store[V any] struct {
	mu            sync.Mutex
	entries       map[string]entry[V]
	sweepInterval time.Duration
	entryTTL      time.Duration
	lastSweep     time.Time
	now           func() time.Time
}

func New[V any](sweepInterval, entryTTL time.Duration) *Store[V] {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	if entryTTL <= 0 {
		entryTTL = time.Hour
	}

	return &Store[V]{
		entries:       make(map[string]entry[V]),
		sweepInterval: sweepInterval,
		entryTTL:      entryTTL,
		now:           time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (s *Store[V]) WithClock(now func() time.Time) *Store[V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.maybeSweep(now)

	item, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}

	item.lastAccess = now
	s.entries[key] = item

	return item.value, true
}

func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.maybeSweep(now)

	s.entries[key] = entry[V]{value: value, lastAccess: now}
}

func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
}

func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func (s *Store[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]entry[V])
}

// maybeSweep removes idle entries, at most once per sweepInterval.
// Caller must hold the lock.
func (s *Store[V]) maybeSweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.sweepInterval {
		return
	}
	s.lastSweep = now

	threshold := now.Add(-s.entryTTL)
	for key, item := range s.entries {
		if item.lastAccess.Before(threshold) {
			delete(s.entries, key)
		}
	}
}
