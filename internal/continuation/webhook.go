// internal/continuation/webhook.go
package continuation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookEmitter POSTs the signal as JSON
type WebhookEmitter struct {
	url    string
	client *http.Client
}

// NewWebhookEmitter creates a webhook emitter with the given client timeout
func NewWebhookEmitter(url string, timeout time.Duration) *WebhookEmitter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookEmitter{url: url, client: &http.Client{Timeout: timeout}}
}

func (w *WebhookEmitter) Emit(ctx context.Context, sig Signal) error {
	payload, err := sig.Payload()
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
