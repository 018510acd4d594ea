// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ksaregtech/regtech-tui/internal/logging"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultBaseURL is the answer service address used in development.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultHealthTimeout bounds GET /health.
	DefaultHealthTimeout = 5 * time.Second

	// maxErrorBody caps how much of a non-2xx body is kept for the error.
	maxErrorBody = 4 * 1024
)

// =============================================================================
// SHARED HTTP CLIENTS
// =============================================================================

var (
	// Shared transport with connection pooling for all answer-service requests.
	sharedTransport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	// Streams have no client timeout; the caller's context bounds them.
	sharedStreamingClient = &http.Client{Transport: sharedTransport}
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoBody indicates a successful status with no response body.
	ErrNoBody = errors.New("answer service returned no response body")
	// ErrUnhealthy indicates /health did not report ok.
	ErrUnhealthy = errors.New("answer service unhealthy")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		return fmt.Sprintf("answer service error (HTTP %d)", e.StatusCode)
	}
	return fmt.Sprintf("answer service error (HTTP %d): %s", e.StatusCode, msg)
}

// =============================================================================
// CLIENT
// =============================================================================

// chatRequest is the POST /api/chat body.
type chatRequest struct {
	Message string `json:"message"`
}

// healthResponse is the GET /health body.
type healthResponse struct {
	Status string `json:"status"`
}

// Client calls the answer service.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	healthTimeout time.Duration
	log           *logging.Logger
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    sharedStreamingClient,
		healthTimeout: DefaultHealthTimeout,
	}
}

// WithHTTPClient replaces the HTTP client (tests, custom TLS).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithHealthTimeout sets the /health timeout.
func (c *Client) WithHealthTimeout(d time.Duration) *Client {
	if d > 0 {
		c.healthTimeout = d
	}
	return c
}

// WithLogger attaches a logger.
func (c *Client) WithLogger(l *logging.Logger) *Client {
	c.log = l.With("client")
	return c
}

// BaseURL returns the service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stream posts text to /api/chat and returns the open response body. The
// caller must close it. Non-2xx statuses return *StatusError and an empty
// body returns ErrNoBody.
func (c *Client) Stream(ctx context.Context, text string) (io.ReadCloser, error) {
	body, err := json.Marshal(chatRequest{Message: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.log.Debug("POST /api/chat -> %d in %s", resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, ErrNoBody
	}
	return resp.Body, nil
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var health healthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&health); err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	if health.Status != "ok" {
		return fmt.Errorf("%w: status %q", ErrUnhealthy, health.Status)
	}
	return nil
}
