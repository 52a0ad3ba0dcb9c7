package auth

import (
	"math"
	"sync"
	"time"

	"showcase-api/internal/memstore"
)

const (
	defaultMaxFailures  = 5
	defaultLockDuration = 15 * time.Minute
)

// lockoutState tracks one identity's failed-attempt history. An identity
// moves Clear -> Accumulating -> LockedOut and back to Clear when the
// lockout expires; expiry is evaluated lazily on the next call, never by
// a timer.
type lockoutState struct {
	failures int
	lockedAt *time.Time
}

type AttemptStatus struct {
	Allowed    bool
	Remaining  int
	RetryAfter int
}

// LockoutLimiter converts repeated failed login attempts for one
// identity (client address or account handle) into a temporary lockout.
// State lives in process memory only; a restart clears all history.
type LockoutLimiter struct {
	// mu makes each read-modify-write sequence atomic per call.
	mu           sync.Mutex
	entries      *memstore.Store[lockoutState]
	maxFailures  int
	lockDuration time.Duration
	now          func() time.Time
}

func NewLockoutLimiter(maxFailures int, lockDuration time.Duration, sweepInterval, entryTTL time.Duration) *LockoutLimiter {
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	if lockDuration <= 0 {
		lockDuration = defaultLockDuration
	}

	return &LockoutLimiter{
		entries:      memstore.New[lockoutState](sweepInterval, entryTTL),
		maxFailures:  maxFailures,
		lockDuration: lockDuration,
		now:          time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (l *LockoutLimiter) WithClock(now func() time.Time) *LockoutLimiter {
	l.now = now
	l.entries.WithClock(now)
	return l
}

// CheckAllowed reports whether the identity may attempt a login. An
// expired lockout is cleared here as a side effect.
func (l *LockoutLimiter) CheckAllowed(identity string) AttemptStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.entries.Get(identity)
	if !ok {
		return AttemptStatus{Allowed: true, Remaining: l.maxFailures}
	}

	now := l.now().UTC()
	if state.lockedAt != nil {
		lockEnd := state.lockedAt.Add(l.lockDuration)
		if now.Before(lockEnd) {
			return AttemptStatus{RetryAfter: ceilSeconds(lockEnd.Sub(now))}
		}

		// Lockout ran out; the identity starts clean.
		l.entries.Delete(identity)
		return AttemptStatus{Allowed: true, Remaining: l.maxFailures}
	}

	if state.failures >= l.maxFailures {
		return AttemptStatus{RetryAfter: ceilSeconds(l.lockDuration)}
	}

	return AttemptStatus{Allowed: true, Remaining: l.maxFailures - state.failures}
}

// RecordFailure registers one failed attempt and locks the identity out
// once the failure ceiling is reached.
func (l *LockoutLimiter) RecordFailure(identity string) AttemptStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()

	state, _ := l.entries.Get(identity)
	if state.lockedAt != nil && !now.Before(state.lockedAt.Add(l.lockDuration)) {
		state = lockoutState{}
	}

	state.failures++
	if state.failures >= l.maxFailures {
		state.lockedAt = &now
		l.entries.Set(identity, state)
		return AttemptStatus{RetryAfter: ceilSeconds(l.lockDuration)}
	}

	l.entries.Set(identity, state)
	return AttemptStatus{Allowed: true, Remaining: l.maxFailures - state.failures}
}

// RecordSuccess wipes the identity's history entirely, whatever state it
// was in.
func (l *LockoutLimiter) RecordSuccess(identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries.Delete(identity)
}

func (l *LockoutLimiter) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries.Clear()
}

// Tracked reports how many identities currently hold attempt state.
func (l *LockoutLimiter) Tracked() int {
	return l.entries.Len()
}

func ceilSeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
