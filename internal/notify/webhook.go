package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/knowton/ipbond/internal/crypto"
)

// WebhookSender delivers notifications to a partner endpoint as signed JSON.
// Receivers verify the HMAC headers with the shared secret before trusting
// the payload.
type WebhookSender struct {
	url    string
	auth   *crypto.WebhookAuth
	client *http.Client
}

// NewWebhookSender creates a WebhookSender for the given endpoint and shared
// secret.
func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		auth:   &crypto.WebhookAuth{Secret: secret},
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the event payload with HMAC signature headers.
func (w *WebhookSender) Send(ctx context.Context, event, message string) error {
	payload, err := json.Marshal(map[string]string{
		"event":   event,
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.auth.Headers(event, string(payload)) {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (w *WebhookSender) Name() string {
	return "webhook"
}
