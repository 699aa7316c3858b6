package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/komandorr/komandorr-server/internal/service"
)

func (s *Server) registerInviteRoutes() {
	// Admin invite management.
	huma.Register(s.api, huma.Operation{
		OperationID: "createInvite",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/invites",
		Summary:     "Create invite",
		Description: "Creates a new invite with an optional custom code",
		Tags:        []string{"Invites"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleCreateInvite)

	huma.Register(s.api, huma.Operation{
		OperationID: "listInvites",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/invites",
		Summary:     "List invites",
		Description: "Returns all invites with their members",
		Tags:        []string{"Invites"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListInvites)

	huma.Register(s.api, huma.Operation{
		OperationID: "getInvite",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/invites/{id}",
		Summary:     "Get invite",
		Description: "Returns an invite with its members",
		Tags:        []string{"Invites"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetInvite)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateInvite",
		Method:      http.MethodPatch,
		Path:        "/api/v1/admin/invites/{id}",
		Summary:     "Update invite",
		Description: "Updates an invite's limits, libraries, or active flag",
		Tags:        []string{"Invites"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateInvite)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteInvite",
		Method:      http.MethodDelete,
		Path:        "/api/v1/admin/invites/{id}",
		Summary:     "Delete invite",
		Description: "Deletes an invite, optionally revoking its members' Plex access",
		Tags:        []string{"Invites"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteInvite)

	huma.Register(s.api, huma.Operation{
		OperationID: "listMembers",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/members",
		Summary:     "List members",
		Description: "Returns all accounts provisioned through invites",
		Tags:        []string{"Invites"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListMembers)

	huma.Register(s.api, huma.Operation{
		OperationID: "getInviteStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/stats",
		Summary:     "Get invite stats",
		Description: "Returns aggregate invite and member counts",
		Tags:        []string{"Invites"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "getServerConfig",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/server",
		Summary:     "Get server config",
		Description: "Returns the server name and available Plex libraries",
		Tags:        []string{"Invites"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetServerConfig)

	// Public invite validation for the join page.
	huma.Register(s.api, huma.Operation{
		OperationID: "validateInvite",
		Method:      http.MethodPost,
		Path:        "/api/v1/invites/validate",
		Summary:     "Validate invite code",
		Description: "Checks whether an invite code can currently be redeemed",
		Tags:        []string{"Join"},
	}, s.handleValidateInvite)
}

// === DTOs ===

// InviteResponse contains invite data in API responses.
type InviteResponse struct {
	ID         string     `json:"id" doc:"Invite ID"`
	Code       string     `json:"code" doc:"Public invite code"`
	Status     string     `json:"status" doc:"Derived status: active, disabled, expired, or exhausted"`
	CreatedBy  string     `json:"created_by" doc:"Admin who created the invite"`
	CreatedAt  time.Time  `json:"created_at" doc:"Creation time"`
	UpdatedAt  time.Time  `json:"updated_at" doc:"Last update time"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" doc:"Expiration time, absent when the invite never expires"`
	UsageLimit int        `json:"usage_limit" doc:"Maximum redemptions, 0 = unlimited"`
	UsedCount  int        `json:"used_count" doc:"Redemptions so far"`
	Libraries  []string   `json:"libraries,omitempty" doc:"Shared library section IDs, empty = all"`

	AllowSync         bool `json:"allow_sync" doc:"Allow downloads"`
	AllowChannels     bool `json:"allow_channels" doc:"Allow channels"`
	AllowCameraUpload bool `json:"allow_camera_upload" doc:"Allow camera upload"`
	PlexHome          bool `json:"plex_home" doc:"Invite as Plex Home user"`
	Active            bool `json:"active" doc:"Admin kill switch"`

	Members []MemberResponse `json:"members,omitempty" doc:"Accounts provisioned through this invite"`
}

// MemberResponse contains member data in API responses. InviteID is
// only set in the global member list; invite-scoped lists imply it.
type MemberResponse struct {
	ID         string    `json:"id" doc:"Member ID"`
	InviteID   string    `json:"invite_id,omitempty" doc:"Invite the account was provisioned through"`
	PlexUserID string    `json:"plex_user_id" doc:"plex.tv user ID"`
	Email      string    `json:"email" doc:"Plex account email"`
	Username   string    `json:"username" doc:"Plex account username"`
	CreatedAt  time.Time `json:"created_at" doc:"Redemption time"`
}

func toInviteResponse(details *service.InviteDetails) InviteResponse {
	resp := InviteResponse{
		ID:                details.ID,
		Code:              details.Code,
		Status:            string(details.Status),
		CreatedBy:         details.CreatedBy,
		CreatedAt:         details.CreatedAt,
		UpdatedAt:         details.UpdatedAt,
		ExpiresAt:         details.ExpiresAt,
		UsageLimit:        details.UsageLimit,
		UsedCount:         details.UsedCount,
		Libraries:         details.Libraries,
		AllowSync:         details.AllowSync,
		AllowChannels:     details.AllowChannels,
		AllowCameraUpload: details.AllowCameraUpload,
		PlexHome:          details.PlexHome,
		Active:            details.Active,
	}
	for _, m := range details.Members {
		resp.Members = append(resp.Members, MemberResponse{
			ID:         m.ID,
			PlexUserID: m.PlexUserID,
			Email:      m.Email,
			Username:   m.Username,
			CreatedAt:  m.CreatedAt,
		})
	}
	return resp
}

// CreateInviteInput wraps the create invite request for Huma.
type CreateInviteInput struct {
	Authorization string `header:"Authorization"`
	Body          service.CreateInviteRequest
}

// InviteOutput wraps a single invite response for Huma.
type InviteOutput struct {
	Body InviteResponse
}

// ListInvitesInput contains parameters for listing invites.
type ListInvitesInput struct {
	Authorization string `header:"Authorization"`
}

// ListInvitesResponse contains a list of invites.
type ListInvitesResponse struct {
	Invites []InviteResponse `json:"invites" doc:"All invites"`
}

// ListInvitesOutput wraps the list invites response for Huma.
type ListInvitesOutput struct {
	Body ListInvitesResponse
}

// GetInviteInput contains parameters for getting an invite.
type GetInviteInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Invite ID"`
}

// UpdateInviteInput wraps the update invite request for Huma.
type UpdateInviteInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Invite ID"`
	Body          service.UpdateInviteRequest
}

// DeleteInviteInput contains parameters for deleting an invite.
type DeleteInviteInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Invite ID"`
	RevokeAccess  bool   `query:"revoke_access" doc:"Also revoke members' Plex access"`
}

// ListMembersInput contains parameters for listing members.
type ListMembersInput struct {
	Authorization string `header:"Authorization"`
}

// ListMembersResponse contains all provisioned members.
type ListMembersResponse struct {
	Members []MemberResponse `json:"members" doc:"All provisioned accounts"`
}

// ListMembersOutput wraps the member list for Huma.
type ListMembersOutput struct {
	Body ListMembersResponse
}

// StatsInput contains parameters for the stats endpoint.
type StatsInput struct {
	Authorization string `header:"Authorization"`
}

// StatsResponse contains aggregate invite counts.
type StatsResponse struct {
	TotalInvites     int `json:"total_invites" doc:"All invites"`
	ActiveInvites    int `json:"active_invites" doc:"Currently redeemable invites"`
	ExpiredInvites   int `json:"expired_invites" doc:"Expired invites"`
	ExhaustedInvites int `json:"exhausted_invites" doc:"Invites at their usage limit"`
	DisabledInvites  int `json:"disabled_invites" doc:"Disabled invites"`
	TotalRedemptions int `json:"total_redemptions" doc:"Total successful redemptions"`
	TotalMembers     int `json:"total_members" doc:"Accounts provisioned"`
}

// StatsOutput wraps the stats response for Huma.
type StatsOutput struct {
	Body StatsResponse
}

// ServerConfigInput contains parameters for the server config endpoint.
type ServerConfigInput struct {
	Authorization string `header:"Authorization"`
}

// ServerConfigOutput wraps the server config response for Huma.
type ServerConfigOutput struct {
	Body service.ServerConfig
}

// ValidateInviteRequest is the request body for validating an invite code.
type ValidateInviteRequest struct {
	Code string `json:"code" validate:"required" doc:"Invite code to validate"`
}

// ValidateInviteInput wraps the validate request for Huma.
type ValidateInviteInput struct {
	Body ValidateInviteRequest
}

// ValidateInviteResponse describes a redeemable invite for the join page.
type ValidateInviteResponse struct {
	Code       string `json:"code" doc:"Normalized invite code"`
	ServerName string `json:"server_name" doc:"Name of the Plex server"`
	PlexHome   bool   `json:"plex_home" doc:"Whether the invite grants Plex Home membership"`
}

// ValidateInviteOutput wraps the validate response for Huma.
type ValidateInviteOutput struct {
	Body ValidateInviteResponse
}

// === Handlers ===

func (s *Server) handleCreateInvite(ctx context.Context, input *CreateInviteInput) (*InviteOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	invite, err := s.services.Invite.CreateInvite(ctx, "admin", input.Body)
	if err != nil {
		return nil, err
	}

	details, err := s.services.Invite.GetInvite(ctx, invite.ID)
	if err != nil {
		return nil, err
	}

	return &InviteOutput{Body: toInviteResponse(details)}, nil
}

func (s *Server) handleListInvites(ctx context.Context, input *ListInvitesInput) (*ListInvitesOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	invites, err := s.services.Invite.ListInvites(ctx)
	if err != nil {
		return nil, err
	}

	resp := make([]InviteResponse, len(invites))
	for i, invite := range invites {
		resp[i] = toInviteResponse(invite)
	}

	return &ListInvitesOutput{Body: ListInvitesResponse{Invites: resp}}, nil
}

func (s *Server) handleGetInvite(ctx context.Context, input *GetInviteInput) (*InviteOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	details, err := s.services.Invite.GetInvite(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	return &InviteOutput{Body: toInviteResponse(details)}, nil
}

func (s *Server) handleUpdateInvite(ctx context.Context, input *UpdateInviteInput) (*InviteOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	invite, err := s.services.Invite.UpdateInvite(ctx, input.ID, input.Body)
	if err != nil {
		return nil, err
	}

	details, err := s.services.Invite.GetInvite(ctx, invite.ID)
	if err != nil {
		return nil, err
	}

	return &InviteOutput{Body: toInviteResponse(details)}, nil
}

func (s *Server) handleDeleteInvite(ctx context.Context, input *DeleteInviteInput) (*MessageOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	if err := s.services.Invite.DeleteInvite(ctx, input.ID, input.RevokeAccess); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Invite deleted"}}, nil
}

func (s *Server) handleListMembers(ctx context.Context, input *ListMembersInput) (*ListMembersOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	members, err := s.services.Invite.ListMembers(ctx)
	if err != nil {
		return nil, err
	}

	resp := ListMembersResponse{Members: make([]MemberResponse, len(members))}
	for i, m := range members {
		resp.Members[i] = MemberResponse{
			ID:         m.ID,
			InviteID:   m.InviteID,
			PlexUserID: m.PlexUserID,
			Email:      m.Email,
			Username:   m.Username,
			CreatedAt:  m.CreatedAt,
		}
	}

	return &ListMembersOutput{Body: resp}, nil
}

func (s *Server) handleGetStats(ctx context.Context, input *StatsInput) (*StatsOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	stats, err := s.services.Invite.Stats(ctx)
	if err != nil {
		return nil, err
	}

	return &StatsOutput{
		Body: StatsResponse{
			TotalInvites:     stats.TotalInvites,
			ActiveInvites:    stats.ActiveInvites,
			ExpiredInvites:   stats.ExpiredInvites,
			ExhaustedInvites: stats.ExhaustedInvites,
			DisabledInvites:  stats.DisabledInvites,
			TotalRedemptions: stats.TotalRedemptions,
			TotalMembers:     stats.TotalMembers,
		},
	}, nil
}

func (s *Server) handleGetServerConfig(ctx context.Context, input *ServerConfigInput) (*ServerConfigOutput, error) {
	if err := s.requireAdmin(input.Authorization); err != nil {
		return nil, err
	}

	cfg, err := s.services.Invite.GetServerConfig(ctx)
	if err != nil {
		return nil, err
	}

	return &ServerConfigOutput{Body: *cfg}, nil
}

func (s *Server) handleValidateInvite(ctx context.Context, input *ValidateInviteInput) (*ValidateInviteOutput, error) {
	invite, err := s.services.Invite.ValidateCode(ctx, input.Body.Code)
	if err != nil {
		return nil, err
	}

	return &ValidateInviteOutput{
		Body: ValidateInviteResponse{
			Code:       invite.Code,
			ServerName: s.settings.Get().ServerName,
			PlexHome:   invite.PlexHome,
		},
	}, nil
}
