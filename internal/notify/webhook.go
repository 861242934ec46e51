package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/webmon/webmon/internal/domain"
)

// Webhook POSTs failed check results as JSON. With no template the
// payload is the standard shape below; a template may use the
// placeholders {url}, {status_code}, {error}, {timestamp} and
// {response_time}.
type Webhook struct {
	URL      string
	Template string
	Client   *http.Client
}

func NewWebhook(url, template string) *Webhook {
	if url == "" {
		return nil
	}
	return &Webhook{
		URL:      url,
		Template: template,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	URL          string  `json:"url"`
	StatusCode   int     `json:"status_code,omitempty"`
	Error        string  `json:"error,omitempty"`
	Timestamp    string  `json:"timestamp"`
	ResponseTime float64 `json:"response_time"`
}

func (w *Webhook) Send(ctx context.Context, r domain.CheckResult) error {
	if w == nil || w.URL == "" {
		return errors.New("webhook disabled")
	}

	body, err := w.payload(r)
	if err != nil {
		return fmt.Errorf("webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook non-2xx: %s", resp.Status)
	}
	return nil
}

func (w *Webhook) payload(r domain.CheckResult) ([]byte, error) {
	if w.Template == "" {
		return json.Marshal(webhookPayload{
			URL:          r.URL,
			StatusCode:   r.StatusCode,
			Error:        r.Error,
			Timestamp:    r.CheckedAt.Format(time.RFC3339),
			ResponseTime: r.LatencyMS,
		})
	}
	out := strings.NewReplacer(
		"{url}", r.URL,
		"{status_code}", strconv.Itoa(r.StatusCode),
		"{error}", jsonEscape(r.Error),
		"{timestamp}", r.CheckedAt.Format(time.RFC3339),
		"{response_time}", strconv.FormatFloat(r.LatencyMS, 'f', 3, 64),
	).Replace(w.Template)
	if !json.Valid([]byte(out)) {
		return nil, fmt.Errorf("template renders invalid JSON")
	}
	return []byte(out), nil
}

// jsonEscape renders s safe for embedding inside a JSON string literal.
func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}
