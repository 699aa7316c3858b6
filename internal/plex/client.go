// Package plex is a rate-limited client for the plex.tv API and for a
// Plex Media Server. It covers the PIN-grant flow, account lookup, and
// library sharing.
package plex

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/komandorr/komandorr-server/internal/ratelimit"
)

const (
	// Rate limit: 4 requests per second per host, burst of 8.
	// The PIN poll runs every 2 seconds, so this leaves headroom for
	// concurrent redemptions without tripping plex.tv throttling.
	defaultRPS   = 4.0
	defaultBurst = 8

	// HTTP client settings
	defaultTimeout = 30 * time.Second

	plexTVBase = "https://plex.tv"
)

// Sentinel errors returned by the client.
var (
	ErrPinNotFound  = errors.New("pin not found or expired")
	ErrUnauthorized = errors.New("invalid or expired plex token")
	ErrRateLimited  = errors.New("rate limited by plex")
	ErrServer       = errors.New("plex server error")
)

// Client is a rate-limited Plex API client.
type Client struct {
	http     *http.Client
	limiter  *ratelimit.KeyedRateLimiter
	logger   *slog.Logger
	clientID string
	product  string

	// baseURL points at plex.tv; tests swap in an httptest server.
	baseURL string
}

// New creates a new Plex client. clientID is the stable
// X-Plex-Client-Identifier; a random one is generated when empty.
func New(clientID, product string, logger *slog.Logger) *Client {
	if clientID == "" {
		clientID = uuid.NewString()
	}
	if product == "" {
		product = "Komandorr"
	}

	return &Client{
		http: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter:  ratelimit.New(defaultRPS, defaultBurst),
		logger:   logger,
		clientID: clientID,
		product:  product,
		baseURL:  plexTVBase,
	}
}

// ClientID returns the X-Plex-Client-Identifier in use.
func (c *Client) ClientID() string {
	return c.clientID
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// doRequest executes an HTTP request with rate limiting and the standard
// X-Plex headers. token may be empty for unauthenticated calls.
func (c *Client) doRequest(ctx context.Context, method, rawURL, token, contentType string, payload []byte) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	// Wait for rate limit, keyed by host
	if err := c.limiter.Wait(ctx, u.Host); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Client-Identifier", c.clientID)
	req.Header.Set("X-Plex-Product", c.product)
	req.Header.Set("X-Plex-Version", "1.0")
	if token != "" {
		req.Header.Set("X-Plex-Token", token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("plex request",
		"method", method,
		"host", u.Host,
		"path", u.Path,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPinNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, ErrServer
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
}

// getJSON performs a GET and decodes the JSON response into dest.
func (c *Client) getJSON(ctx context.Context, rawURL, token string, dest any) error {
	body, err := c.doRequest(ctx, http.MethodGet, rawURL, token, "", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// postJSON performs a POST with a JSON body. dest may be nil when the
// response body is irrelevant.
func (c *Client) postJSON(ctx context.Context, rawURL, token string, payload, dest any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	body, err := c.doRequest(ctx, http.MethodPost, rawURL, token, "application/json", data)
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
