package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// webhookPayload is the JSON body POSTed per alert. Text is a one-line
// rendering so Slack/Discord-style incoming webhooks show something useful.
type webhookPayload struct {
	Service    string `json:"service"`
	Level      string `json:"level"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	Instrument string `json:"instrument,omitempty"`
	TS         string `json:"ts"`
	Text       string `json:"text"`
}

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url     string
	service string
	client  *http.Client
}

// NewWebhookNotifier creates a notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:     url,
		service: "ctxengine",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	p := webhookPayload{
		Service:    w.service,
		Level:      string(alert.Level),
		Title:      alert.Title,
		Message:    alert.Message,
		Instrument: alert.Key,
		TS:         time.Now().UTC().Format(time.RFC3339),
	}
	p.Text = fmt.Sprintf("[%s] %s: %s", p.Level, p.Title, p.Message)
	if p.Instrument != "" {
		p.Text = fmt.Sprintf("[%s] %s (%s): %s", p.Level, p.Title, p.Instrument, p.Message)
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s answered %d", req.URL.Host, resp.StatusCode)
	}
	log.Printf("[webhook] delivered %q", alert.Title)
	return nil
}
