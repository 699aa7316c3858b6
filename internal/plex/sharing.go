package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ShareRequest describes a library share to grant on redemption.
type ShareRequest struct {
	MachineIdentifier string   // Target server, from GetServerIdentity
	Email             string   // Account to invite
	LibrarySectionIDs []string // Empty shares all sections
	AllowSync         bool
	AllowChannels     bool
	AllowCameraUpload bool
}

type shareSettings struct {
	AllowSync         string `json:"allowSync"`
	AllowChannels     string `json:"allowChannels"`
	AllowCameraUpload string `json:"allowCameraUpload"`
}

type sharedServerRequest struct {
	MachineIdentifier string        `json:"machineIdentifier"`
	InvitedEmail      string        `json:"invitedEmail"`
	LibrarySectionIDs []int64       `json:"librarySectionIds"`
	Settings          shareSettings `json:"settings"`
}

// plexBool renders a bool the way the sharing API expects it.
func plexBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// InviteFriend shares server libraries with an account as a Plex friend.
func (c *Client) InviteFriend(ctx context.Context, token string, req ShareRequest) error {
	sectionIDs := make([]int64, 0, len(req.LibrarySectionIDs))
	for _, raw := range req.LibrarySectionIDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid library section id %q: %w", raw, err)
		}
		sectionIDs = append(sectionIDs, id)
	}

	payload := sharedServerRequest{
		MachineIdentifier: req.MachineIdentifier,
		InvitedEmail:      req.Email,
		LibrarySectionIDs: sectionIDs,
		Settings: shareSettings{
			AllowSync:         plexBool(req.AllowSync),
			AllowChannels:     plexBool(req.AllowChannels),
			AllowCameraUpload: plexBool(req.AllowCameraUpload),
		},
	}

	if err := c.postJSON(ctx, c.baseURL+"/api/v2/shared_servers", token, payload, nil); err != nil {
		return fmt.Errorf("invite friend: %w", err)
	}

	c.logger.Info("shared plex libraries",
		"email", req.Email,
		"sections", len(sectionIDs),
	)
	return nil
}

// InviteHome invites an account into the server owner's Plex Home and
// shares the requested libraries. Requires a Plex Pass on the owner account.
func (c *Client) InviteHome(ctx context.Context, token string, req ShareRequest) error {
	u := c.baseURL + "/api/v2/home/users?" + url.Values{"invitedEmail": {req.Email}}.Encode()
	if _, err := c.doRequest(ctx, http.MethodPost, u, token, "", nil); err != nil {
		return fmt.Errorf("invite home user: %w", err)
	}

	// Home membership alone grants nothing; the share still has to happen.
	return c.InviteFriend(ctx, token, req)
}

// RemoveFriend revokes a shared account by plex.tv user ID.
// Used when an invite is deleted together with its members.
func (c *Client) RemoveFriend(ctx context.Context, token, plexUserID string) error {
	u := fmt.Sprintf("%s/api/v2/friends/%s", c.baseURL, plexUserID)
	if _, err := c.doRequest(ctx, http.MethodDelete, u, token, "", nil); err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}

	c.logger.Info("removed plex friend", "plex_user_id", plexUserID)
	return nil
}
