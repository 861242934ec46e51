package probe

import (
	"context"

	"github.com/webmon/webmon/internal/domain"
)

// Checker performs a single availability check for a target URL.
// Implementations never return a Go error: every network failure is
// folded into the CheckResult so the scheduler loop needs no per-check
// error handling.
type Checker interface {
	Check(ctx context.Context, target string) domain.CheckResult
}
