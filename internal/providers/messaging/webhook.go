// Package messaging is the best-effort secondary notification transport. A
// delivery failure here never fails the overall notification attempt.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/smallbiznis/payline/internal/config"
)

type Provider interface {
	Send(ctx context.Context, recipient, message string) error
}

type WebhookProvider struct {
	url    string
	client *http.Client
}

// NoOpProvider is wired when no messaging webhook is configured.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, recipient, message string) error {
	return nil
}

func New(cfg config.Config) Provider {
	if cfg.Messaging.WebhookURL == "" {
		return &NoOpProvider{}
	}
	return &WebhookProvider{
		url:    cfg.Messaging.WebhookURL,
		client: &http.Client{Timeout: cfg.Messaging.Timeout},
	}
}

func (p *WebhookProvider) Send(ctx context.Context, recipient, message string) error {
	payload, err := json.Marshal(map[string]string{
		"recipient": recipient,
		"message":   message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("messaging_request_failed_status_%d", resp.StatusCode)
	}
	return nil
}
