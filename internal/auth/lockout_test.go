package auth

import (
	"testing"
	"time"
)

func newTestLimiter(current *time.Time, maxFailures int, lockDuration time.Duration) *LockoutLimiter {
	limiter := NewLockoutLimiter(maxFailures, lockDuration, time.Minute, time.Hour)
	return limiter.WithClock(func() time.Time { return *current })
}

func TestLockout_CleanIdentityIsAllowed(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&current, 5, 15*time.Minute)

	status := limiter.CheckAllowed("alice")
	if !status.Allowed || status.Remaining != 5 {
		t.Fatalf("expected clean identity with full budget, got %+v", status)
	}
}

func TestLockout_FailuresAccumulateThenLock(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&current, 5, 15*time.Minute)

	for i := 1; i <= 4; i++ {
		status := limiter.RecordFailure("alice")
		if !status.Allowed {
			t.Fatalf("expected failure %d to leave identity unlocked, got %+v", i, status)
		}
		if status.Remaining != 5-i {
			t.Fatalf("expected remaining %d after failure %d, got %d", 5-i, i, status.Remaining)
		}
	}

	fifth := limiter.RecordFailure("alice")
	if fifth.Allowed {
		t.Fatalf("expected fifth failure to lock, got %+v", fifth)
	}
	if fifth.RetryAfter != 15*60 {
		t.Fatalf("expected retry-after of full lock duration, got %d", fifth.RetryAfter)
	}

	check := limiter.CheckAllowed("alice")
	if check.Allowed || check.RetryAfter <= 0 {
		t.Fatalf("expected locked identity to be denied with retry hint, got %+v", check)
	}
}

func TestLockout_RetryAfterShrinksOverTime(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&current, 1, 10*time.Minute)

	limiter.RecordFailure("alice")

	current = current.Add(4 * time.Minute)
	status := limiter.CheckAllowed("alice")
	if status.Allowed || status.RetryAfter != 6*60 {
		t.Fatalf("expected 6 minutes remaining, got %+v", status)
	}
}

func TestLockout_ExpiresLazily(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&current, 2, 10*time.Minute)

	limiter.RecordFailure("alice")
	limiter.RecordFailure("alice")
	if status := limiter.CheckAllowed("alice"); status.Allowed {
		t.Fatalf("expected identity to be locked")
	}

	current = current.Add(10*time.Minute + time.Second)
	status := limiter.CheckAllowed("alice")
	if !status.Allowed || status.Remaining != 2 {
		t.Fatalf("expected expired lockout to clear to a full budget, got %+v", status)
	}
	if limiter.Tracked() != 0 {
		t.Fatalf("expected expired entry to be deleted, tracked=%d", limiter.Tracked())
	}
}

func TestLockout_FailureAfterExpiryStartsFresh(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&current, 3, 10*time.Minute)

	for i := 0; i < 3; i++ {
		limiter.RecordFailure("alice")
	}

	current = current.Add(11 * time.Minute)
	status := limiter.RecordFailure("alice")
	if !status.Allowed || status.Remaining != 2 {
		t.Fatalf("expected failure after expiry to count from zero, got %+v", status)
	}
}

func TestLockout_SuccessClearsHistory(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&current, 3, 10*time.Minute)

	limiter.RecordFailure("alice")
	limiter.RecordFailure("alice")
	limiter.RecordSuccess("alice")

	status := limiter.CheckAllowed("alice")
	if !status.Allowed || status.Remaining != 3 {
		t.Fatalf("expected success to fully clear history, got %+v", status)
	}

	// Success also clears an active lockout.
	for i := 0; i < 3; i++ {
		limiter.RecordFailure("bob")
	}
	limiter.RecordSuccess("bob")
	if status := limiter.CheckAllowed("bob"); !status.Allowed {
		t.Fatalf("expected success during lockout to clear it, got %+v", status)
	}
}

func TestLockout_IdentitiesAreIndependent(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&current, 1, 10*time.Minute)

	limiter.RecordFailure("alice")
	if status := limiter.CheckAllowed("alice"); status.Allowed {
		t.Fatalf("expected alice to be locked")
	}
	if status := limiter.CheckAllowed("bob"); !status.Allowed {
		t.Fatalf("expected bob to be unaffected, got %+v", status)
	}
}
