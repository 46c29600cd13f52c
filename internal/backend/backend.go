// Package backend is a small REST client for the switchboard server's
// diagnostic endpoints, used by doctor checks and operator commands.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zulandar/switchboard/internal/wire"
)

// Client talks to a running switchboard server.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOpts holds parameters for NewClient.
type ClientOpts struct {
	BaseURL    string
	HTTPClient *http.Client // defaults to a 10s-timeout client
}

// NewClient creates a backend Client.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("backend: base URL is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
	}, nil
}

// Health checks the server's /healthz endpoint.
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/healthz", &body); err != nil {
		return err
	}
	if body.Status != "ok" {
		return fmt.Errorf("backend: health status %q", body.Status)
	}
	return nil
}

// Presence fetches the server's presence table.
func (c *Client) Presence(ctx context.Context) ([]wire.Presence, error) {
	var out []wire.Presence
	if err := c.get(ctx, "/presence", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OnlineUsers returns the userIDs the server currently reports online.
func (c *Client) OnlineUsers(ctx context.Context) ([]string, error) {
	recs, err := c.Presence(ctx)
	if err != nil {
		return nil, err
	}
	var online []string
	for _, r := range recs {
		if r.Status == wire.StatusOnline {
			online = append(online, r.UserID)
		}
	}
	return online, nil
}

// Stats fetches the server's registry counters.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, "/stats", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TriggerBroadcast asks the server to fan an announcement out to every
// connected client.
func (c *Client) TriggerBroadcast(ctx context.Context, from, text string) error {
	payload, err := json.Marshal(wire.Broadcast{From: from, Text: text})
	if err != nil {
		return fmt.Errorf("backend: marshal broadcast: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/broadcast", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: broadcast: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend: broadcast: status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend: get %s: status %d: %s", path, resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("backend: decode %s: %w", path, err)
	}
	return nil
}
