package genie

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

const (
	apiPrefix = "/api/2.0/genie"

	defaultRequestTimeout = 60 * time.Second
	defaultPollInterval   = 2 * time.Second
	defaultPollTimeout    = 300 * time.Second

	maxErrorBodySize = 64 << 10 // 64KB
)

// Client communicates with the Genie API on a Databricks workspace.
// Every request carries the workspace PAT as a bearer credential.
// The client never retries on its own; callers decide what to do with a
// failed call.
type Client struct {
	host       string
	token      string
	httpClient *http.Client

	pollInterval time.Duration
	pollTimeout  time.Duration

	// Injectable for tests so polling can be simulated without real delays.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client for the given workspace host
// (e.g. "https://acme.cloud.databricks.com") and PAT token.
func NewClient(host, token string) *Client {
	return &Client{
		host:  strings.TrimRight(host, "/"),
		token: token,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

// NewClientWithBaseURL creates a client pointing at a custom host (for testing).
func NewClientWithBaseURL(host, token string) *Client {
	return NewClient(host, token)
}

// SetPollPolicy overrides the default poll interval and timeout.
func (c *Client) SetPollPolicy(interval, timeout time.Duration) {
	if interval > 0 {
		c.pollInterval = interval
	}
	if timeout > 0 {
		c.pollTimeout = timeout
	}
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// do issues one authenticated request and decodes the JSON response into out.
// A non-2xx status becomes an *APIError carrying the status code and body.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+apiPrefix+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
