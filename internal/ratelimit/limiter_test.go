package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(current *time.Time) *Limiter {
	return NewLimiter(time.Minute, time.Hour).WithClock(func() time.Time { return *current })
}

func TestLimiter_SlidingWindow(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&current)

	expected := []bool{true, true, true, false}
	for i, want := range expected {
		result := limiter.Check("token-1", 3, time.Second)
		if result.Allowed != want {
			t.Fatalf("call %d: expected allowed=%v, got %+v", i+1, want, result)
		}
		current = current.Add(100 * time.Millisecond)
	}

	// Once the window fully elapses, requests are admitted again.
	current = current.Add(time.Second)
	if result := limiter.Check("token-1", 3, time.Second); !result.Allowed {
		t.Fatalf("expected request after window to be allowed, got %+v", result)
	}
}

func TestLimiter_RemainingAndRetryAfter(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&current)

	first := limiter.Check("token-1", 2, 10*time.Second)
	if !first.Allowed || first.Remaining != 1 || first.Limit != 2 {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if first.ResetAt != current.Add(10*time.Second).Unix() {
		t.Fatalf("expected reset derived from oldest hit, got %d", first.ResetAt)
	}

	second := limiter.Check("token-1", 2, 10*time.Second)
	if !second.Allowed || second.Remaining != 0 {
		t.Fatalf("unexpected second result: %+v", second)
	}

	current = current.Add(4 * time.Second)
	denied := limiter.Check("token-1", 2, 10*time.Second)
	if denied.Allowed {
		t.Fatalf("expected denial, got %+v", denied)
	}
	if denied.RetryAfter != 6 {
		t.Fatalf("expected retry-after of 6s until oldest hit exits window, got %d", denied.RetryAfter)
	}
}

func TestLimiter_DeniedRequestConsumesNoSlot(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&current)

	limiter.Check("token-1", 1, 10*time.Second)
	for i := 0; i < 5; i++ {
		current = current.Add(time.Second)
		limiter.Check("token-1", 1, 10*time.Second)
	}

	// Only the single admitted hit occupies the window, so the slot frees
	// exactly 10s after it, not after the last denied attempt.
	current = current.Add(5 * time.Second)
	if result := limiter.Check("token-1", 1, 10*time.Second); !result.Allowed {
		t.Fatalf("expected slot to free after the admitted hit aged out, got %+v", result)
	}
}

func TestLimiter_StatusDoesNotMutate(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&current)

	for i := 0; i < 10; i++ {
		status := limiter.Status("token-1", 3, time.Second)
		if !status.Allowed || status.Remaining != 3 {
			t.Fatalf("status call %d consumed a slot: %+v", i+1, status)
		}
	}

	if result := limiter.Check("token-1", 3, time.Second); result.Remaining != 2 {
		t.Fatalf("expected first real check to see a full budget, got %+v", result)
	}
}

func TestLimiter_IdentitiesAreIndependent(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&current)

	limiter.Check("token-1", 1, time.Minute)
	if result := limiter.Check("token-1", 1, time.Minute); result.Allowed {
		t.Fatalf("expected token-1 to be exhausted")
	}
	if result := limiter.Check("token-2", 1, time.Minute); !result.Allowed {
		t.Fatalf("expected token-2 to have its own budget, got %+v", result)
	}
}

func TestLimiter_ResetAndClear(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&current)

	limiter.Check("token-1", 1, time.Minute)
	limiter.Check("token-2", 1, time.Minute)

	limiter.Reset("token-1")
	if result := limiter.Check("token-1", 1, time.Minute); !result.Allowed {
		t.Fatalf("expected reset identity to be admitted, got %+v", result)
	}
	if result := limiter.Check("token-2", 1, time.Minute); result.Allowed {
		t.Fatalf("expected untouched identity to stay exhausted")
	}

	limiter.Clear()
	if limiter.Tracked() != 0 {
		t.Fatalf("expected clear to drop all state, tracked=%d", limiter.Tracked())
	}
}
