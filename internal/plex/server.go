package plex

import (
	"context"
	"fmt"
	"strings"
)

// Library is one library section on a Plex Media Server.
type Library struct {
	ID   string `json:"key"`
	Name string `json:"title"`
	Type string `json:"type"`
}

type mediaContainer[T any] struct {
	MediaContainer struct {
		MachineIdentifier string `json:"machineIdentifier"`
		FriendlyName      string `json:"friendlyName"`
		Directory         []T    `json:"Directory"`
	} `json:"MediaContainer"`
}

// ServerIdentity describes a Plex Media Server.
type ServerIdentity struct {
	MachineIdentifier string
	FriendlyName      string
}

// GetServerIdentity fetches the machine identifier of a Plex Media Server.
// Sharing calls against plex.tv are keyed by this identifier.
func (c *Client) GetServerIdentity(ctx context.Context, serverURL, token string) (*ServerIdentity, error) {
	var container mediaContainer[struct{}]
	u := strings.TrimRight(serverURL, "/") + "/identity"
	if err := c.getJSON(ctx, u, token, &container); err != nil {
		return nil, fmt.Errorf("get server identity: %w", err)
	}

	return &ServerIdentity{
		MachineIdentifier: container.MediaContainer.MachineIdentifier,
		FriendlyName:      container.MediaContainer.FriendlyName,
	}, nil
}

// GetLibraries lists the library sections of a Plex Media Server.
func (c *Client) GetLibraries(ctx context.Context, serverURL, token string) ([]Library, error) {
	var container mediaContainer[Library]
	u := strings.TrimRight(serverURL, "/") + "/library/sections"
	if err := c.getJSON(ctx, u, token, &container); err != nil {
		return nil, fmt.Errorf("get libraries: %w", err)
	}

	return container.MediaContainer.Directory, nil
}
