package domain

import "time"

// Dashboard is a derived view over a job's history, computed on demand
// and never persisted. NextRun is nil for dead jobs and for jobs with
// no history yet.
type Dashboard struct {
	JobID        JobID      `json:"job_id"`
	URL          string     `json:"url"`
	TotalPings   int        `json:"total_pings"`
	SuccessCount int        `json:"success_count"`
	Failures     int        `json:"failures"`
	UptimePct    float64    `json:"uptime_pct"`
	AvgLatencyMS float64    `json:"avg_latency_ms"`
	FirstRun     *time.Time `json:"first_run,omitempty"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	Alive        bool       `json:"alive"`
}
