package probe

import (
	"context"
	"time"

	"github.com/webmon/webmon/internal/domain"
)

// RetryChecker re-runs the inner check until it succeeds or the
// attempts are exhausted. Used by the one-shot check command only; the
// scheduler loop records raw outcomes.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, target string) domain.CheckResult {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last domain.CheckResult
	for i := 0; i < attempts; i++ {
		last = r.Inner.Check(ctx, target)
		if last.Success {
			return last
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return last
			case <-time.After(r.Backoff):
			}
		}
	}
	if attempts > 1 && last.Error != "" {
		last.Error = last.Error + " (after retries)"
	}
	return last
}
