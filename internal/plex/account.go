package plex

import (
	"context"
	"fmt"
	"strconv"
)

// Account is a plex.tv user profile.
type Account struct {
	ID       int64  `json:"id"`
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Thumb    string `json:"thumb"`
}

// UserID returns the account's numeric ID as a string, the form the rest
// of the system stores.
func (a *Account) UserID() string {
	return strconv.FormatInt(a.ID, 10)
}

// GetAccount fetches the profile of the account that owns the token.
// Used right after PIN approval to learn who authorized.
func (c *Client) GetAccount(ctx context.Context, token string) (*Account, error) {
	var account Account
	if err := c.getJSON(ctx, c.baseURL+"/api/v2/user", token, &account); err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}
