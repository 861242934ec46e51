package probe

import (
	"context"
	"testing"
	"time"

	"github.com/webmon/webmon/internal/domain"
)

// fake checker you can control
type fakeChecker struct {
	results []domain.CheckResult
	i       int
}

func (f *fakeChecker) Check(ctx context.Context, target string) domain.CheckResult {
	if f.i >= len(f.results) {
		return domain.CheckResult{Success: false, Error: "no more"}
	}
	r := f.results[f.i]
	f.i++
	return r
}

func TestRetryChecker_SucceedsAfterRetry(t *testing.T) {
	f := &fakeChecker{
		results: []domain.CheckResult{
			{Success: false, Error: "first fail"},
			{Success: true, StatusCode: 200},
		},
	}
	rc := &RetryChecker{
		Inner:    f,
		Attempts: 3,
		Backoff:  10 * time.Millisecond,
	}
	out := rc.Check(context.Background(), "https://example.com")
	if !out.Success {
		t.Fatalf("expected success after retry, got %+v", out)
	}
}

func TestRetryChecker_AllFailAnnotates(t *testing.T) {
	f := &fakeChecker{
		results: []domain.CheckResult{
			{Success: false, Error: "fail1"},
			{Success: false, Error: "fail2"},
		},
	}
	rc := &RetryChecker{
		Inner:    f,
		Attempts: 2,
		Backoff:  time.Millisecond,
	}
	out := rc.Check(context.Background(), "https://example.com")
	if out.Success {
		t.Fatalf("expected failure, got %+v", out)
	}
	if out.Error != "fail2 (after retries)" {
		t.Fatalf("expected annotated last error, got %q", out.Error)
	}
}

func TestRetryChecker_RespectsContextCancel(t *testing.T) {
	f := &fakeChecker{
		results: []domain.CheckResult{
			{Success: false, Error: "fail"},
		},
	}
	rc := &RetryChecker{Inner: f, Attempts: 10, Backoff: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		rc.Check(ctx, "https://example.com")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retry loop did not bail on cancelled context")
	}
}
