package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/komandorr/komandorr-server/internal/domain"
	domainerrors "github.com/komandorr/komandorr-server/internal/errors"
	"github.com/komandorr/komandorr-server/internal/id"
	"github.com/komandorr/komandorr-server/internal/settings"
	"github.com/komandorr/komandorr-server/internal/store"
)

// defaultCodeLength is the length of generated invite codes.
// 8 characters over a 31-character alphabet is enough entropy for codes
// that admins hand out personally.
const defaultCodeLength = 8

// InviteService handles invite creation, validation, and administration.
type InviteService struct {
	store    *store.Store
	plex     PlexClient
	settings *settings.Manager
	logger   *slog.Logger
}

// NewInviteService creates a new invite service.
func NewInviteService(
	store *store.Store,
	plex PlexClient,
	settings *settings.Manager,
	logger *slog.Logger,
) *InviteService {
	return &InviteService{
		store:    store,
		plex:     plex,
		settings: settings,
		logger:   logger,
	}
}

// CreateInviteRequest contains the data needed to create an invite.
type CreateInviteRequest struct {
	// Code is an optional custom code (e.g. "WELCOME10"). Generated when empty.
	Code          string   `json:"code,omitempty" validate:"omitempty,min=4,max=32,alphanum"`
	ExpiresInDays int      `json:"expires_in_days,omitempty" validate:"min=0"` // 0 = never expires
	UsageLimit    int      `json:"usage_limit,omitempty" validate:"min=0"`     // 0 = unlimited
	Libraries     []string `json:"libraries,omitempty"`                        // Empty = all libraries

	AllowSync         bool `json:"allow_sync,omitempty"`
	AllowChannels     bool `json:"allow_channels,omitempty"`
	AllowCameraUpload bool `json:"allow_camera_upload,omitempty"`
	PlexHome          bool `json:"plex_home,omitempty"`
}

// UpdateInviteRequest contains the fields an admin can change on an invite.
// Nil pointers leave the current value untouched.
type UpdateInviteRequest struct {
	Active        *bool     `json:"active,omitempty"`
	ExpiresInDays *int      `json:"expires_in_days,omitempty" validate:"omitempty,min=0"`
	UsageLimit    *int      `json:"usage_limit,omitempty" validate:"omitempty,min=0"`
	Libraries     *[]string `json:"libraries,omitempty"`
}

// InviteDetails is an invite together with the members it provisioned.
type InviteDetails struct {
	*domain.Invite
	Status  domain.InviteStatus `json:"status"`
	Members []*domain.Member    `json:"members"`
}

// CreateInvite creates a new invite.
func (s *InviteService) CreateInvite(ctx context.Context, createdBy string, req CreateInviteRequest) (*domain.Invite, error) {
	// Validate request
	if err := validate.Struct(req); err != nil {
		return nil, formatValidationError(err)
	}

	code := domain.NormalizeCode(req.Code)
	if code == "" {
		generated, err := id.GenerateCode(defaultCodeLength)
		if err != nil {
			return nil, fmt.Errorf("generate invite code: %w", err)
		}
		code = generated
	}

	inviteID, err := id.Generate("inv")
	if err != nil {
		return nil, fmt.Errorf("generate invite ID: %w", err)
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().Add(time.Duration(req.ExpiresInDays) * 24 * time.Hour)
		expiresAt = &t
	}

	now := time.Now()
	invite := &domain.Invite{
		ID:                inviteID,
		Code:              code,
		CreatedBy:         createdBy,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         expiresAt,
		UsageLimit:        req.UsageLimit,
		Libraries:         req.Libraries,
		AllowSync:         req.AllowSync,
		AllowChannels:     req.AllowChannels,
		AllowCameraUpload: req.AllowCameraUpload,
		PlexHome:          req.PlexHome,
		Active:            true,
	}

	if err := s.store.CreateInvite(ctx, invite); err != nil {
		if errors.Is(err, store.ErrInviteCodeExists) {
			return nil, domainerrors.AlreadyExists("an invite with this code already exists")
		}
		return nil, fmt.Errorf("create invite: %w", err)
	}

	s.logger.Info("invite created",
		"invite_id", invite.ID,
		"code", invite.Code,
		"usage_limit", invite.UsageLimit,
		"created_by", createdBy,
	)

	return invite, nil
}

// GetInvite returns an invite with its provisioned members.
func (s *InviteService) GetInvite(ctx context.Context, inviteID string) (*InviteDetails, error) {
	invite, err := s.store.GetInvite(ctx, inviteID)
	if err != nil {
		if errors.Is(err, store.ErrInviteNotFound) {
			return nil, domainerrors.NotFound("invite not found")
		}
		return nil, fmt.Errorf("get invite: %w", err)
	}

	members, err := s.store.ListMembersByInvite(ctx, inviteID)
	if err != nil {
		return nil, fmt.Errorf("list invite members: %w", err)
	}
	if members == nil {
		members = []*domain.Member{}
	}

	return &InviteDetails{
		Invite:  invite,
		Status:  invite.Status(),
		Members: members,
	}, nil
}

// ListInvites returns all invites with their members.
func (s *InviteService) ListInvites(ctx context.Context) ([]*InviteDetails, error) {
	invites, err := s.store.ListInvites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}

	details := make([]*InviteDetails, 0, len(invites))
	for _, invite := range invites {
		members, err := s.store.ListMembersByInvite(ctx, invite.ID)
		if err != nil {
			return nil, fmt.Errorf("list invite members: %w", err)
		}
		if members == nil {
			members = []*domain.Member{}
		}
		details = append(details, &InviteDetails{
			Invite:  invite,
			Status:  invite.Status(),
			Members: members,
		})
	}

	return details, nil
}

// UpdateInvite applies admin edits to an invite.
func (s *InviteService) UpdateInvite(ctx context.Context, inviteID string, req UpdateInviteRequest) (*domain.Invite, error) {
	if err := validate.Struct(req); err != nil {
		return nil, formatValidationError(err)
	}

	invite, err := s.store.GetInvite(ctx, inviteID)
	if err != nil {
		if errors.Is(err, store.ErrInviteNotFound) {
			return nil, domainerrors.NotFound("invite not found")
		}
		return nil, fmt.Errorf("get invite: %w", err)
	}

	if req.Active != nil {
		invite.Active = *req.Active
	}
	if req.UsageLimit != nil {
		invite.UsageLimit = *req.UsageLimit
	}
	if req.Libraries != nil {
		invite.Libraries = *req.Libraries
	}
	if req.ExpiresInDays != nil {
		if *req.ExpiresInDays == 0 {
			invite.ExpiresAt = nil
		} else {
			t := time.Now().Add(time.Duration(*req.ExpiresInDays) * 24 * time.Hour)
			invite.ExpiresAt = &t
		}
	}

	if err := s.store.UpdateInvite(ctx, invite); err != nil {
		return nil, fmt.Errorf("update invite: %w", err)
	}

	s.logger.Info("invite updated",
		"invite_id", invite.ID,
		"status", invite.Status(),
	)

	return invite, nil
}

// DeleteInvite removes an invite. When revokeAccess is set, the Plex shares
// of every member provisioned through the invite are revoked as well.
func (s *InviteService) DeleteInvite(ctx context.Context, inviteID string, revokeAccess bool) error {
	if _, err := s.store.GetInvite(ctx, inviteID); err != nil {
		if errors.Is(err, store.ErrInviteNotFound) {
			return domainerrors.NotFound("invite not found")
		}
		return fmt.Errorf("get invite: %w", err)
	}

	members, err := s.store.DeleteMembersByInvite(ctx, inviteID)
	if err != nil {
		return fmt.Errorf("delete invite members: %w", err)
	}

	if revokeAccess {
		token := s.settings.Get().PlexToken
		for _, member := range members {
			if err := s.plex.RemoveFriend(ctx, token, member.PlexUserID); err != nil {
				// Keep going; a failed revocation should not orphan the rest.
				s.logger.Warn("failed to revoke plex access",
					"member_id", member.ID,
					"plex_user_id", member.PlexUserID,
					"error", err,
				)
			}
		}
	}

	if err := s.store.DeleteInvite(ctx, inviteID); err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}

	s.logger.Info("invite deleted",
		"invite_id", inviteID,
		"members_removed", len(members),
		"access_revoked", revokeAccess,
	)

	return nil
}

// ValidateCode checks whether an invite code can currently be redeemed and
// returns the invite. The error identifies why redemption is not possible:
// not found, disabled, expired, or exhausted.
func (s *InviteService) ValidateCode(ctx context.Context, code string) (*domain.Invite, error) {
	invite, err := s.store.GetInviteByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrInviteNotFound) {
			return nil, domainerrors.NotFound("invite code not found")
		}
		return nil, fmt.Errorf("get invite by code: %w", err)
	}

	switch invite.Status() {
	case domain.InviteStatusDisabled:
		return nil, domainerrors.InviteDisabled("this invite has been disabled")
	case domain.InviteStatusExpired:
		return nil, domainerrors.InviteExpired("this invite has expired")
	case domain.InviteStatusExhausted:
		return nil, domainerrors.InviteExhausted("this invite has reached its usage limit")
	}

	return invite, nil
}

// ListMembers returns every account provisioned through any invite.
func (s *InviteService) ListMembers(ctx context.Context) ([]*domain.Member, error) {
	return s.store.ListMembers(ctx)
}

// Stats returns aggregate invite and member counts for the admin dashboard.
func (s *InviteService) Stats(ctx context.Context) (*domain.InviteStats, error) {
	invites, err := s.store.ListInvites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}

	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	stats := &domain.InviteStats{
		TotalInvites: len(invites),
		TotalMembers: len(members),
	}
	for _, invite := range invites {
		stats.TotalRedemptions += invite.UsedCount
		switch invite.Status() {
		case domain.InviteStatusActive:
			stats.ActiveInvites++
		case domain.InviteStatusDisabled:
			stats.DisabledInvites++
		case domain.InviteStatusExpired:
			stats.ExpiredInvites++
		case domain.InviteStatusExhausted:
			stats.ExhaustedInvites++
		}
	}

	return stats, nil
}

// ServerConfig describes the Plex server for the admin UI.
type ServerConfig struct {
	ServerName string         `json:"server_name"`
	Libraries  []LibraryEntry `json:"libraries"`
}

// LibraryEntry is one selectable library section.
type LibraryEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// GetServerConfig returns the server name and the available library
// sections, so admins can scope invites to specific libraries.
func (s *InviteService) GetServerConfig(ctx context.Context) (*ServerConfig, error) {
	current := s.settings.Get()

	cfg := &ServerConfig{
		ServerName: current.ServerName,
		Libraries:  []LibraryEntry{},
	}

	if current.PlexServerURL == "" || current.PlexToken == "" {
		// Plex connection not configured yet; the name alone is still useful.
		return cfg, nil
	}

	libraries, err := s.plex.GetLibraries(ctx, current.PlexServerURL, current.PlexToken)
	if err != nil {
		return nil, domainerrors.Upstream("failed to list plex libraries").WithCause(err)
	}

	for _, lib := range libraries {
		cfg.Libraries = append(cfg.Libraries, LibraryEntry{
			ID:   lib.ID,
			Name: lib.Name,
			Type: lib.Type,
		})
	}

	return cfg, nil
}
