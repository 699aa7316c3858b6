package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/komandorr/komandorr-server/internal/settings"
)

func (s *Server) registerSettingsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getSettings",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/settings",
		Summary:     "Get settings",
		Description: "Returns the runtime server settings",
		Tags:        []string{"Settings"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetSettings)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateSettings",
		Method:      http.MethodPut,
		Path:        "/api/v1/admin/settings",
		Summary:     "Update settings",
		Description: "Replaces the runtime server settings",
		Tags:        []string{"Settings"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateSettings)
}

// === DTOs ===

// SettingsInput contains parameters for reading settings.
type SettingsInput struct {
	Authorization string `header:"Authorization"`
}

// SettingsResponse contains the runtime settings. The Plex token is
// redacted to a presence flag; it is write-only through this API.
type SettingsResponse struct {
	ServerName    string `json:"server_name" doc:"Name shown on the join page"`
	PlexServerURL string `json:"plex_server_url" doc:"Plex Media Server URL"`
	PlexTokenSet  bool   `json:"plex_token_set" doc:"Whether a Plex admin token is configured"`
}

// SettingsOutput wraps the settings response for Huma.
type SettingsOutput struct {
	Body SettingsResponse
}

// UpdateSettingsRequest is the request body for updating settings.
type UpdateSettingsRequest struct {
	ServerName    string `json:"server_name" validate:"required,max=100" doc:"Name shown on the join page"`
	PlexServerURL string `json:"plex_server_url,omitempty" doc:"Plex Media Server URL"`
	PlexToken     string `json:"plex_token,omitempty" doc:"Plex admin token, empty keeps the current one"`
}

// UpdateSettingsInput wraps the update settings request for Huma.
type UpdateSettingsInput struct {
	Authorization string `header:"Authorization"`
	Body          UpdateSettingsRequest
}

// === Handlers ===

func (s *Server) handleGetSettings(_ context.Context, input *SettingsInput) (*SettingsOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	current := s.settings.Get()
	return &SettingsOutput{
		Body: SettingsResponse{
			ServerName:    current.ServerName,
			PlexServerURL: current.PlexServerURL,
			PlexTokenSet:  current.PlexToken != "",
		},
	}, nil
}

func (s *Server) handleUpdateSettings(_ context.Context, input *UpdateSettingsInput) (*SettingsOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	current := s.settings.Get()
	updated := settings.Settings{
		ServerName:    input.Body.ServerName,
		PlexServerURL: input.Body.PlexServerURL,
		PlexToken:     input.Body.PlexToken,
	}
	// An empty token in the request keeps the stored one.
	if updated.PlexToken == "" {
		updated.PlexToken = current.PlexToken
	}
	if updated.PlexServerURL == "" {
		updated.PlexServerURL = current.PlexServerURL
	}

	if err := s.settings.Update(updated); err != nil {
		return nil, err
	}

	return &SettingsOutput{
		Body: SettingsResponse{
			ServerName:    updated.ServerName,
			PlexServerURL: updated.PlexServerURL,
			PlexTokenSet:  updated.PlexToken != "",
		},
	}, nil
}
