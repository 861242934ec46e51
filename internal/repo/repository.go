package repo

import (
	"context"

	"github.com/webmon/webmon/internal/domain"
)

// HistoryStore persists the append-only check-result history of a job.
// Entries are never rewritten in place: they are appended one at a time
// and deleted wholesale on cleanup.
type HistoryStore interface {
	// Append records one result as the newest entry.
	Append(ctx context.Context, jobID domain.JobID, r domain.CheckResult) error

	// ReadLast returns up to n of the newest entries in original
	// (oldest-first) order. A history with fewer entries returns them all.
	ReadLast(ctx context.Context, jobID domain.JobID, n int) ([]domain.CheckResult, error)

	// Scan streams every entry oldest-first into fn until fn returns
	// false or the history is exhausted. Entries that fail to parse
	// (partial writes from a killed process) are skipped, not fatal.
	Scan(ctx context.Context, jobID domain.JobID, fn func(domain.CheckResult) bool) error

	// Delete removes the job's history. Removing an absent history is a no-op.
	Delete(ctx context.Context, jobID domain.JobID) error
}
