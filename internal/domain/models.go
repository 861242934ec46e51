package domain

import "time"

type JobID string

// Job is one background monitoring task. Alive is derived from the
// registry at read time (marker file present + process running), it is
// never persisted.
type Job struct {
	ID          JobID         `json:"job_id"`
	PID         int           `json:"pid"`
	URL         string        `json:"url"`
	Interval    time.Duration `json:"interval"`
	MaxChecks   int           `json:"max_checks,omitempty"` // 0 = unbounded
	CreatedAt   time.Time     `json:"created_at"`
	HistoryFile string        `json:"history_file,omitempty"`
	MarkerFile  string        `json:"marker_file,omitempty"`
	Alive       bool          `json:"alive"`
}

// CheckResult is the outcome of a single HTTP probe. StatusCode is 0
// when the request failed before a status was received; Error carries
// the transport failure text in that case.
type CheckResult struct {
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code,omitempty"`
	Success    bool      `json:"success"`
	LatencyMS  float64   `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}
