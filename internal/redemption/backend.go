// Package redemption drives an invite redemption from the client side:
// it validates the invite, runs the Plex PIN popup flow against the
// Komandorr server, and finalizes the redemption.
package redemption

import (
	"bytes"
	"context"
	"encoding/json/jsontext"
	"encoding/json/v2"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/komandorr/komandorr-server/internal/domain"
)

// Backend is the server-side half of the redemption flow.
// *Client talks to a Komandorr server; tests substitute a fake.
type Backend interface {
	// ValidateInvite checks whether the code is currently redeemable.
	ValidateInvite(ctx context.Context, code string) error
	// StartLogin issues a fresh PIN session for the invite.
	StartLogin(ctx context.Context, code string) (*domain.PinSession, error)
	// CheckPin reports the PIN's authorization state. Returns (nil, nil)
	// while the PIN is pending.
	CheckPin(ctx context.Context, pinID int64, state string) (*domain.AuthorizedIdentity, error)
	// Redeem finalizes the redemption. A server-side duplicate comes back
	// as RedemptionAlreadyDone, not as an error.
	Redeem(ctx context.Context, code string, identity *domain.AuthorizedIdentity) (*domain.RedemptionResult, error)
}

// Client is an HTTP Backend talking to a Komandorr server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a backend client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// envelope mirrors the server's response envelope.
type envelope struct {
	Version int            `json:"v"`
	Success bool           `json:"success"`
	Data    jsontext.Value `json:"data"`
	Error   string         `json:"error"`

	// Detailed error fields.
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is a structured error from the server. Callers can inspect
// Code to tell an invite-level rejection from a transient failure.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("server returned status %d", e.Status)
}

// IsInviteInvalid reports whether err means the invite itself cannot be
// redeemed (unknown, expired, exhausted, or disabled). Transport and
// parse failures report false: the code may still be good and the
// caller should retry rather than ask the user for a new invite.
func IsInviteInvalid(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case "NOT_FOUND", "INVITE_EXPIRED", "INVITE_EXHAUSTED", "INVITE_DISABLED":
		return true
	}
	return false
}

// do executes a request and decodes the enveloped response into dest.
func (c *Client) do(ctx context.Context, method, path string, payload, dest any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := env.Message
		if message == "" {
			message = env.Error
		}
		return &APIError{
			Status:  resp.StatusCode,
			Code:    env.Code,
			Message: message,
		}
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// ValidateInvite implements Backend.
func (c *Client) ValidateInvite(ctx context.Context, code string) error {
	payload := map[string]string{"code": code}
	return c.do(ctx, http.MethodPost, "/api/v1/invites/validate", payload, nil)
}

// StartLogin implements Backend.
func (c *Client) StartLogin(ctx context.Context, code string) (*domain.PinSession, error) {
	payload := map[string]string{"code": code}

	var session domain.PinSession
	if err := c.do(ctx, http.MethodPost, "/api/v1/oauth/plex/login", payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// checkPinResponse mirrors the server's check response.
type checkPinResponse struct {
	Authorized bool                       `json:"authorized"`
	Identity   *domain.AuthorizedIdentity `json:"identity"`
}

// CheckPin implements Backend. The state token is an opaque server
// value, so it goes through url.Values rather than assuming it is
// already query-safe.
func (c *Client) CheckPin(ctx context.Context, pinID int64, state string) (*domain.AuthorizedIdentity, error) {
	query := url.Values{"state": []string{state}}
	path := fmt.Sprintf("/api/v1/oauth/plex/check/%d?%s", pinID, query.Encode())

	var resp checkPinResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Authorized {
		return nil, nil
	}
	return resp.Identity, nil
}

// Redeem implements Backend. A 409 with code ALREADY_REDEEMED means a
// previous attempt already went through, so it maps to a successful
// RedemptionAlreadyDone outcome instead of an error.
func (c *Client) Redeem(ctx context.Context, code string, identity *domain.AuthorizedIdentity) (*domain.RedemptionResult, error) {
	payload := map[string]string{
		"code":       code,
		"auth_token": identity.AuthToken,
	}

	var member domain.Member
	err := c.do(ctx, http.MethodPost, "/api/v1/oauth/plex/redeem", payload, &member)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "ALREADY_REDEEMED" {
			return &domain.RedemptionResult{
				Outcome: domain.RedemptionAlreadyDone,
				Message: apiErr.Message,
			}, nil
		}
		return nil, err
	}

	return &domain.RedemptionResult{
		Outcome: domain.RedemptionOk,
		Member:  &member,
	}, nil
}
