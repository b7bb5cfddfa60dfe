// Package webhook delivers structured failure alerts to tenant-configured
// endpoints. Delivery is best-effort by contract: the caller swallows errors.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Config struct {
	Timeout time.Duration `split_words:"true" default:"5s"`
}

// Event is the failure payload POSTed to the tenant's alert endpoint.
type Event struct {
	Event     string `json:"event"`
	TenantKey string `json:"client_id"`
	LeadPhone string `json:"lead_phone"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

type Sender interface {
	Send(ctx context.Context, url string, event Event) error
}

type Client struct {
	httpClient *http.Client
}

var _ Sender = (*Client)(nil)

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Send(ctx context.Context, url string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("alert endpoint status=%d", resp.StatusCode)
	}
	return nil
}
