package stats

import (
	"context"
	"time"

	"github.com/webmon/webmon/internal/domain"
	"github.com/webmon/webmon/internal/repo"
)

// Compute folds a job's entire history into a Dashboard in one pass.
// An empty history yields zero values (uptime 0, no timestamps), never
// a division by zero. NextRun is projected only for alive jobs: a dead
// job has no future run.
func Compute(ctx context.Context, job domain.Job, store repo.HistoryStore) (domain.Dashboard, error) {
	d := domain.Dashboard{JobID: job.ID, URL: job.URL, Alive: job.Alive}

	var (
		latencySum float64
		latencyN   int
		first      time.Time
		last       time.Time
	)
	err := store.Scan(ctx, job.ID, func(r domain.CheckResult) bool {
		d.TotalPings++
		if r.Success {
			d.SuccessCount++
		} else {
			d.Failures++
		}
		if r.LatencyMS > 0 {
			latencySum += r.LatencyMS
			latencyN++
		}
		if first.IsZero() {
			first = r.CheckedAt
		}
		last = r.CheckedAt
		if d.URL == "" {
			// history survives stop; take the URL from it when the
			// marker is already gone
			d.URL = r.URL
		}
		return true
	})
	if err != nil {
		return domain.Dashboard{}, err
	}

	if d.TotalPings > 0 {
		d.UptimePct = float64(d.SuccessCount) / float64(d.TotalPings) * 100
		f, l := first, last
		d.FirstRun, d.LastRun = &f, &l
		if job.Alive && job.Interval > 0 {
			next := last.Add(job.Interval)
			d.NextRun = &next
		}
	}
	if latencyN > 0 {
		d.AvgLatencyMS = latencySum / float64(latencyN)
	}
	return d, nil
}
