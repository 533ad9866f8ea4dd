package minidsp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultRequestTimeout bounds each device HTTP request.
const defaultRequestTimeout = 10 * time.Second

// ClientConfig holds settings for the device HTTP client.
type ClientConfig struct {
	// Endpoint is the base URL of the minidsp-rs HTTP server,
	// e.g. "http://192.168.1.50:5380".
	Endpoint string

	// Index selects the device on a multi-device server. Default 0.
	Index int

	// RequestTimeout bounds each request. Default 10 seconds.
	RequestTimeout time.Duration
}

// Client issues full-state reads and partial-config writes against the
// device's HTTP API. It is stateless apart from connection reuse.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	endpoint string
	index    int
	http     *http.Client
}

// NewClient validates the endpoint and returns a ready client.
func NewClient(cfg ClientConfig) (*Client, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, cfg.Endpoint)
	}
	if cfg.Index < 0 {
		return nil, fmt.Errorf("%w: negative device index %d", ErrInvalidEndpoint, cfg.Index)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Client{
		endpoint: endpoint,
		index:    cfg.Index,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// Endpoint returns the configured base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Index returns the configured device index.
func (c *Client) Index() int {
	return c.index
}

// deviceURL returns the REST path for this device.
func (c *Client) deviceURL() string {
	return fmt.Sprintf("%s/devices/%d", c.endpoint, c.index)
}

// GetStatus fetches the full device state.
func (c *Client) GetStatus(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.deviceURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrRefreshFailed, resp.StatusCode)
	}

	var full map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&full); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrRefreshFailed, err)
	}
	return full, nil
}

// PostConfig applies a partial configuration to the device. A non-2xx
// response means the command did not apply.
func (c *Client) PostConfig(ctx context.Context, cmd Command) error {
	if cmd.IsZero() {
		return ErrInvalidCommand
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrCommandFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.deviceURL()+"/config", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: unexpected status %d", ErrCommandFailed, resp.StatusCode)
	}
	return nil
}

// StreamURL derives the WebSocket URL for the level stream by rewriting
// the endpoint scheme and appending the levels flag.
//
// Scheme rewrites: http becomes ws, https becomes wss, tcp becomes ws.
// Anything else (ws, wss) passes through unchanged.
func (c *Client) StreamURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}

	switch u.Scheme {
	case "http", "tcp":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	u.Path = strings.TrimRight(u.Path, "/") + fmt.Sprintf("/devices/%d", c.index)

	q := u.Query()
	q.Set("levels", "true")
	u.RawQuery = q.Encode()

	return u.String(), nil
}
