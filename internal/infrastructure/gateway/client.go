// Package gateway implements the tax-authority delivery client.
//
// The authority's own protocol and retry policy live behind its HTTP API;
// this client only distinguishes acknowledgment, business rejection, and
// transport failure, which is all the issuing flow needs.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"hostal/internal/domain/fiscal/issuing"
)

// Config holds gateway client configuration.
type Config struct {
	BaseURL string
	Token   string

	// Timeout covers one submission round-trip. Authority calls are slow;
	// two minutes matches observed worst cases.
	Timeout time.Duration
}

// DefaultConfig returns production defaults for the given endpoint.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL: baseURL,
		Token:   token,
		Timeout: 2 * time.Minute,
	}
}

// Client submits fiscal documents to the tax authority over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

// Ensure compile-time interface compliance.
var _ issuing.Gateway = (*Client)(nil)

// NewClient creates a gateway client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type submitResponse struct {
	ExternalReference string `json:"external_reference"`
	Message           string `json:"message"`
}

// Submit implements issuing.Gateway.
func (c *Client) Submit(ctx context.Context, sub issuing.Submission) (*issuing.Receipt, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("marshal submission: %w", err)
	}

	url := c.cfg.BaseURL + "/api/v1/documents"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit to tax authority: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read authority response: %w", err)
	}

	var parsed submitResponse
	if len(raw) > 0 {
		// Tolerate non-JSON bodies on errors; the status code decides.
		_ = json.Unmarshal(raw, &parsed)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if parsed.ExternalReference == "" {
			return nil, fmt.Errorf("authority accepted without external reference")
		}
		return &issuing.Receipt{ExternalReference: parsed.ExternalReference}, nil

	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		reason := parsed.Message
		if reason == "" {
			reason = fmt.Sprintf("authority returned status %d", resp.StatusCode)
		}
		return nil, &issuing.RejectionError{Reason: reason}

	default:
		// 5xx and everything else is a transport-level failure: the
		// reservation stays pending.
		return nil, fmt.Errorf("authority unavailable: status %d", resp.StatusCode)
	}
}
