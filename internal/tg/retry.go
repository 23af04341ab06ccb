package tg

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy wraps one outbound operation with bounded retries on
// rate-limit signals. Any other error is returned immediately; the
// caller decides whether that is a permanent per-item failure.
type RetryPolicy struct {
	MaxAttempts int
	DefaultWait time.Duration
	// Sleep is replaceable in tests. Nil means a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, DefaultWait: 3 * time.Second}
}

// Do runs op, waiting out every rate-limit signal and retrying the same
// operation, up to MaxAttempts tries. The operation is never silently
// dropped: the result is either nil or the last error.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = op()
		if err == nil {
			return nil
		}
		var rl *RateLimitedError
		if !errors.As(err, &rl) {
			return err
		}
		wait := rl.RetryAfter
		if wait <= 0 {
			wait = p.DefaultWait
		}
		if serr := p.sleep(ctx, wait); serr != nil {
			return serr
		}
	}
	return err
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
