package probe

import (
	"context"
	"net/http"
	"time"

	"github.com/webmon/webmon/internal/domain"
)

// HTTPChecker issues one GET per check and classifies the response
// against a configured set of success status codes.
type HTTPChecker struct {
	client       *http.Client
	userAgent    string
	successCodes map[int]bool
}

func NewHTTPChecker(timeout time.Duration, userAgent string, successCodes map[int]bool) *HTTPChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPChecker{
		client:       &http.Client{Timeout: timeout},
		userAgent:    userAgent,
		successCodes: successCodes,
	}
}

// Check runs a single GET against target. Latency is measured from the
// start of the request to headers received. Transport, DNS and timeout
// failures yield StatusCode 0 with the error text; a received status is
// a success iff it is in the configured success set.
func (h *HTTPChecker) Check(ctx context.Context, target string) domain.CheckResult {
	start := time.Now()
	out := domain.CheckResult{URL: target, CheckedAt: start.UTC()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	out.LatencyMS = float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	defer resp.Body.Close()

	out.StatusCode = resp.StatusCode
	out.Success = h.successCodes[resp.StatusCode]
	return out
}
