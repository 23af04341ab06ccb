package tg

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyRetriesRateLimit(t *testing.T) {
	var waits []time.Duration
	p := RetryPolicy{
		MaxAttempts: 5,
		DefaultWait: time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &RateLimitedError{RetryAfter: 7 * time.Second}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(waits) != 2 || waits[0] != 7*time.Second {
		t.Fatalf("waits = %v, want two 7s waits", waits)
	}
}

func TestRetryPolicyDefaultWait(t *testing.T) {
	var waited time.Duration
	p := RetryPolicy{
		MaxAttempts: 2,
		DefaultWait: 3 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			waited = d
			return nil
		},
	}
	calls := 0
	_ = p.Do(context.Background(), func() error {
		calls++
		return &RateLimitedError{}
	})
	if waited != 3*time.Second {
		t.Fatalf("waited %s, want default 3s", waited)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want bounded at 2", calls)
	}
}

func TestRetryPolicyPermanentErrorImmediate(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Sleep: func(context.Context, time.Duration) error {
		t.Fatal("must not sleep on a permanent error")
		return nil
	}}
	boom := errors.New("boom")
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicyExhaustedReturnsRateLimit(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, DefaultWait: time.Second, Sleep: func(context.Context, time.Duration) error { return nil }}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return &RateLimitedError{RetryAfter: time.Second}
	})
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want rate limit error", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}
