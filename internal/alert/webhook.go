package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"call-ath-tracker/internal/domain"
)

// Webhook posts each event as JSON to a URL.
type Webhook struct {
	url    string
	client *http.Client
	header http.Header
}

// WebhookOption configures Webhook.
type WebhookOption func(*Webhook)

// WithWebhookClient sets the HTTP client.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) {
		w.client = c
	}
}

// WithWebhookHeader adds a header to every request.
func WithWebhookHeader(key, value string) WebhookOption {
	return func(w *Webhook) {
		w.header.Set(key, value)
	}
}

// NewWebhook creates a webhook sink.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name implements named.
func (w *Webhook) Name() string { return "webhook" }

// Notify posts event. Any non-2xx response is an error.
func (w *Webhook) Notify(ctx context.Context, event domain.AlertEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range w.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
