package eventbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client posts events to a running bridge server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient targets baseURL, e.g. Settings.URL().
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 3 * time.Second},
	}
}

// Ping reports whether the bridge answers /health.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("eventbridge: build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("eventbridge: health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("eventbridge: health: status %d", resp.StatusCode)
	}
	return nil
}

// Publish normalizes evt and posts it to /events.
func (c *Client) Publish(ctx context.Context, evt Event) error {
	evt.Normalize()
	if evt.ClientTime.IsZero() {
		evt.ClientTime = time.Now().UTC()
	}
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("eventbridge: publish: %w", err)
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("eventbridge: encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("eventbridge: build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("eventbridge: publish %s: %w", evt.Type, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		var failure map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return fmt.Errorf("eventbridge: publish %s: status %d %s", evt.Type, resp.StatusCode, failure["error"])
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// HandleEvent lets a Client stand in for a local EventProcessor.
func (c *Client) HandleEvent(evt Event) error {
	return c.Publish(context.Background(), evt)
}
