// Package client talks to a running orthomate worker over HTTP.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// StoreHealth is the record store part of a health report.
type StoreHealth struct {
	Backend string `json:"backend"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// Health is the worker's /health response.
type Health struct {
	Status  string       `json:"status"`
	Version string       `json:"version"`
	Uptime  string       `json:"uptime"`
	Store   *StoreHealth `json:"store,omitempty"`
}

// Client queries one worker.
type Client struct {
	http    *http.Client
	baseURL string
}

// New creates a client for the worker at host:port.
func New(host string, port int) *Client {
	return NewWithURL("http://" + host + ":" + strconv.Itoa(port))
}

// NewWithURL creates a client for baseURL, e.g. an httptest server.
func NewWithURL(baseURL string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 2 * time.Second},
		baseURL: baseURL,
	}
}

func (c *Client) getJSON(ctx context.Context, path string, v interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
	}
	return resp.StatusCode, nil
}

// Health fetches the worker health. A worker that is still starting returns
// its health with a non-nil error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	code, err := c.getJSON(ctx, "/health", &h)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return &h, fmt.Errorf("worker not ready: status %d", code)
	}
	return &h, nil
}

// Version returns the running worker's version, or "" when it cannot be
// determined.
func (c *Client) Version(ctx context.Context) string {
	var body map[string]string
	code, err := c.getJSON(ctx, "/api/version", &body)
	if err != nil || code != http.StatusOK {
		return ""
	}
	return body["version"]
}

// IsRunning reports whether a ready worker answers at the base URL.
func (c *Client) IsRunning(ctx context.Context) bool {
	_, err := c.Health(ctx)
	return err == nil
}
