package config

import (
	"os"
	"testing"
	"time"
)

func TestFromEnv_ParsesAndDefaults(t *testing.T) {
	t.Setenv("WEBMON_DATA_DIR", "/tmp/webmon-test")
	t.Setenv("WEBMON_INTERVAL", "30")
	t.Setenv("WEBMON_TIMEOUT", "5s")
	t.Setenv("WEBMON_SUCCESS_CODES", "200, 301,302")
	t.Setenv("API_ADDR", ":9090")
	t.Setenv("PUBLIC_API_KEYS", "pub_a,pub_b")
	t.Setenv("ADMIN_API_KEYS", "adm_x")
	t.Setenv("RETRY_ATTEMPTS", "5")
	t.Setenv("RETRY_BACKOFF_MS", "250")
	t.Setenv("RATE_LIMIT_RPM", "111")
	t.Setenv("RATE_LIMIT_BURST", "22")

	cfg := FromEnv()

	if cfg.DataDir != "/tmp/webmon-test" || cfg.Addr != ":9090" {
		t.Fatalf("datadir/addr wrong: %+v", cfg)
	}
	if cfg.Interval != 30*time.Second || cfg.Timeout != 5*time.Second {
		t.Fatalf("durations wrong: interval=%v timeout=%v", cfg.Interval, cfg.Timeout)
	}
	if !cfg.SuccessCodes[301] || cfg.SuccessCodes[204] {
		t.Fatalf("success codes not overridden: %+v", cfg.SuccessCodes)
	}
	if len(cfg.PublicAPIKeys) != 2 || cfg.PublicAPIKeys[0] != "pub_a" {
		t.Fatalf("public keys wrong: %+v", cfg.PublicAPIKeys)
	}
	if len(cfg.AdminAPIKeys) != 1 || cfg.AdminAPIKeys[0] != "adm_x" {
		t.Fatalf("admin keys wrong: %+v", cfg.AdminAPIKeys)
	}
	if cfg.RetryAttempts != 5 || cfg.RetryBackoff != 250*time.Millisecond {
		t.Fatalf("retry tuning wrong: %+v", cfg)
	}
	if cfg.RateLimitPerMin != 111 || cfg.RateLimitBurst != 22 {
		t.Fatalf("rate limits wrong: %+v", cfg)
	}

	// ensure defaults don't crash if missing env
	os.Unsetenv("API_ADDR")
	_ = FromEnv()
}

func TestDefault_SuccessCodes(t *testing.T) {
	cfg := Default()
	for _, code := range []int{200, 201, 202, 204} {
		if !cfg.SuccessCodes[code] {
			t.Fatalf("expected %d in default success codes", code)
		}
	}
	if cfg.SuccessCodes[500] {
		t.Fatalf("500 should not be a default success code")
	}
}

func TestPaths_UseDataDir(t *testing.T) {
	cfg := Config{DataDir: "/data"}
	if got := cfg.MarkerPath("abc"); got != "/data/job-abc.json" {
		t.Fatalf("marker path: %q", got)
	}
	if got := cfg.HistoryPath("abc"); got != "/data/abc.history" {
		t.Fatalf("history path: %q", got)
	}
	if got := cfg.JobLogPath("abc"); got != "/data/abc.log" {
		t.Fatalf("job log path: %q", got)
	}
}
