package plex

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Pin is a plex.tv PIN used for the OAuth-style device grant.
// AuthToken is empty until the user approves the PIN at app.plex.tv.
type Pin struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	AuthToken string    `json:"authToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Authorized reports whether the user has approved the PIN.
func (p *Pin) Authorized() bool {
	return p.AuthToken != ""
}

// CreatePin requests a new strong PIN from plex.tv.
func (c *Client) CreatePin(ctx context.Context) (*Pin, error) {
	form := url.Values{"strong": {"true"}}

	body, err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/api/v2/pins", "",
		"application/x-www-form-urlencoded", []byte(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create pin: %w", err)
	}

	var pin Pin
	if err := json.Unmarshal(body, &pin); err != nil {
		return nil, fmt.Errorf("decode pin: %w", err)
	}

	c.logger.Debug("created plex pin", "pin_id", pin.ID)
	return &pin, nil
}

// GetPin fetches the current state of a PIN. Returns ErrPinNotFound when
// the PIN has expired and been discarded by plex.tv.
func (c *Client) GetPin(ctx context.Context, pinID int64) (*Pin, error) {
	var pin Pin
	u := fmt.Sprintf("%s/api/v2/pins/%d", c.baseURL, pinID)
	if err := c.getJSON(ctx, u, "", &pin); err != nil {
		return nil, fmt.Errorf("get pin: %w", err)
	}
	return &pin, nil
}

// AuthURL builds the app.plex.tv authorization URL the user opens to
// approve a PIN. The parameters ride in the URL fragment, not the query.
func (c *Client) AuthURL(pinCode string) string {
	params := url.Values{
		"clientID":                 {c.clientID},
		"code":                     {pinCode},
		"context[device][product]": {c.product},
	}
	return "https://app.plex.tv/auth#?" + params.Encode()
}
