// Package identity is the HTTP client for the external user-center service.
// It covers the cross-device login endpoints (code generation, scannable asset
// rendering, status polling) and the conventional password login/registration.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/membuddy/linkauth/pkg/slogx"

	"golang.org/x/time/rate"
)

// Client talks to the user-center. It is safe for concurrent use.
type Client struct {
	BaseURL    string
	AppID      string
	DeviceID   string
	HTTPClient *http.Client

	// PollLimiter caps status-poll request rate independently of however the
	// orchestrator's timer is configured, so a misconfigured interval cannot
	// hammer the service. Nil disables limiting (tests).
	PollLimiter *rate.Limiter
}

// NewClient creates a user-center client. deviceID is sent on every request as
// X-Device-ID so the service can correlate attempts from one installation.
func NewClient(baseURL, appID, deviceID string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		AppID:    appID,
		DeviceID: deviceID,
		HTTPClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &slogx.Transport{Logger: logger},
		},
		PollLimiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// postJSON performs a JSON POST and decodes the response into target.
func (c *Client) postJSON(ctx context.Context, path string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, target)
}

// getJSON performs a GET and decodes the response into target.
func (c *Client) getJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(req, target)
}

func (c *Client) do(req *http.Request, target any) error {
	if c.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.DeviceID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
