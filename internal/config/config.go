package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const markerPrefix = "job-"

// Config carries every knob the core needs. It is passed explicitly
// into constructors; nothing reads it from ambient globals, so tests
// can point DataDir at a temp directory.
type Config struct {
	DataDir       string        // marker, history and operational log files live here
	Interval      time.Duration // default time between checks
	Timeout       time.Duration // per-request HTTP timeout
	SuccessCodes  map[int]bool  // HTTP status codes considered healthy
	UserAgent     string
	RetryAttempts int // one-shot check retries
	RetryBackoff  time.Duration

	WebhookURL     string // optional: POSTed to on failed checks
	WebhookPayload string // optional JSON template with {url} etc. placeholders

	Addr            string // API bind address
	AllowedOrigins  []string
	PublicAPIKeys   []string
	AdminAPIKeys    []string
	RateLimitPerMin int
	RateLimitBurst  int
}

func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:         filepath.Join(home, ".webmon"),
		Interval:        60 * time.Second,
		Timeout:         10 * time.Second,
		SuccessCodes:    map[int]bool{200: true, 201: true, 202: true, 204: true},
		UserAgent:       "webmon/0.1.0",
		RetryAttempts:   1,
		RetryBackoff:    300 * time.Millisecond,
		Addr:            "127.0.0.1:8080",
		RateLimitPerMin: 120,
		RateLimitBurst:  60,
	}
}

func FromEnv() Config {
	cfg := Default()

	if v := os.Getenv("WEBMON_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if d, ok := envSeconds("WEBMON_INTERVAL"); ok {
		cfg.Interval = d
	}
	if d, ok := envSeconds("WEBMON_TIMEOUT"); ok {
		cfg.Timeout = d
	}
	if v := os.Getenv("WEBMON_SUCCESS_CODES"); v != "" {
		if codes := ParseSuccessCodes(v); len(codes) > 0 {
			cfg.SuccessCodes = codes
		}
	}
	if v := os.Getenv("WEBMON_USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
	if n, ok := envInt("RETRY_ATTEMPTS"); ok && n > 0 {
		cfg.RetryAttempts = n
	}
	if n, ok := envInt("RETRY_BACKOFF_MS"); ok && n >= 0 {
		cfg.RetryBackoff = time.Duration(n) * time.Millisecond
	}
	cfg.WebhookURL = os.Getenv("WEBMON_WEBHOOK_URL")
	cfg.WebhookPayload = os.Getenv("WEBMON_WEBHOOK_PAYLOAD")

	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Addr = v
	}
	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	cfg.PublicAPIKeys = splitList(os.Getenv("PUBLIC_API_KEYS"))
	cfg.AdminAPIKeys = splitList(os.Getenv("ADMIN_API_KEYS"))
	if n, ok := envInt("RATE_LIMIT_RPM"); ok && n >= 0 {
		cfg.RateLimitPerMin = n
	}
	if n, ok := envInt("RATE_LIMIT_BURST"); ok && n > 0 {
		cfg.RateLimitBurst = n
	}

	return cfg
}

// MarkerPath returns the marker (PID) file path for a job id.
func (c Config) MarkerPath(jobID string) string {
	return filepath.Join(c.DataDir, markerPrefix+jobID+".json")
}

// HistoryPath returns the append-only check-result log path for a job id.
func (c Config) HistoryPath(jobID string) string {
	return filepath.Join(c.DataDir, jobID+".history")
}

// JobLogPath returns the operational log path (background process
// stdout/stderr) for a job id. Distinct from the history file.
func (c Config) JobLogPath(jobID string) string {
	return filepath.Join(c.DataDir, jobID+".log")
}

// MarkerGlob matches every marker file under DataDir.
func (c Config) MarkerGlob() string {
	return filepath.Join(c.DataDir, markerPrefix+"*.json")
}

// EnsureDataDir creates DataDir if missing.
func (c Config) EnsureDataDir() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: empty data dir")
	}
	return os.MkdirAll(c.DataDir, 0o755)
}

// ParseSuccessCodes parses a comma-separated status code list like
// "200,201,204". Unparseable items are ignored.
func ParseSuccessCodes(s string) map[int]bool {
	out := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil && n > 0 {
			out[n] = true
		}
	}
	return out
}

func envSeconds(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	// accept plain seconds ("30") or a Go duration ("30s", "2m")
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second, true
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d, true
	}
	return 0, false
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
