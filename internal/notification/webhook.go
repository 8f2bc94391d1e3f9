package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookNotifier posts each alert as JSON. The body is the alert plus a
// plain "text" line, which chat webhooks (Slack, Mattermost) display as is.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

type webhookBody struct {
	Alert
	Text string `json:"text"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	if alert.At.IsZero() {
		alert.At = time.Now().UTC()
	}
	text := fmt.Sprintf("[%s] %s", alert.Level, alert.Title)
	if alert.Token != "" {
		text += " (" + alert.Token + ")"
	}
	if alert.Message != "" {
		text += ": " + alert.Message
	}
	return postJSON(ctx, w.client, "webhook", w.url, webhookBody{Alert: alert, Text: text})
}

// postJSON sends v and treats any non-2xx status as a delivery failure.
func postJSON(ctx context.Context, client *http.Client, channel, url string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", channel, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: request: %w", channel, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send: %w", channel, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", channel, resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}
