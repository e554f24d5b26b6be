// Package turnstile provides a client for Cloudflare Turnstile server-side
// token verification. Uses raw HTTP calls (no SDK) to minimize external
// dependencies.
package turnstile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// ErrNotConfigured is returned when no secret key was provided.
var ErrNotConfigured = errors.New("turnstile: not configured")

// Client verifies Turnstile tokens against the siteverify endpoint.
type Client struct {
	secret     string
	verifyURL  string
	httpClient *http.Client
}

// NewClient creates a Client with the given secret key.
func NewClient(secret string) *Client {
	return &Client{
		secret:     secret,
		verifyURL:  defaultVerifyURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// verifyResponse is the siteverify response body.
type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify submits the token and the client's address for validation.
// It returns (false, nil) for a definitive rejection and a non-nil error for
// transport or configuration faults; callers treat both as failed
// verification.
func (c *Client) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if c.secret == "" {
		return false, ErrNotConfigured
	}

	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("turnstile: verify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("turnstile: verify returned status %d", resp.StatusCode)
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return false, fmt.Errorf("turnstile: decode response: %w", err)
	}
	return vr.Success, nil
}
