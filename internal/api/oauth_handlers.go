package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/komandorr/komandorr-server/internal/service"
)

func (s *Server) registerOAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "startPlexLogin",
		Method:      http.MethodPost,
		Path:        "/api/v1/oauth/plex/login",
		Summary:     "Start Plex login",
		Description: "Validates the invite code and issues a fresh PIN session",
		Tags:        []string{"Join"},
	}, s.handleStartLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "checkPlexPin",
		Method:      http.MethodGet,
		Path:        "/api/v1/oauth/plex/check/{pinID}",
		Summary:     "Check Plex PIN",
		Description: "Reports whether the user has approved the PIN yet",
		Tags:        []string{"Join"},
	}, s.handleCheckPin)

	huma.Register(s.api, huma.Operation{
		OperationID: "redeemInvite",
		Method:      http.MethodPost,
		Path:        "/api/v1/oauth/plex/redeem",
		Summary:     "Redeem invite",
		Description: "Shares the invite's libraries with the authorized Plex account",
		Tags:        []string{"Join"},
	}, s.handleRedeem)
}

// === DTOs ===

// StartLoginRequest is the request body for starting a login.
type StartLoginRequest struct {
	Code string `json:"code" validate:"required" doc:"Invite code"`
}

// StartLoginInput wraps the start login request for Huma.
type StartLoginInput struct {
	Body StartLoginRequest
}

// PinSessionResponse describes a freshly issued PIN session.
type PinSessionResponse struct {
	PinID     int64     `json:"pin_id" doc:"Plex-assigned PIN identifier, used for polling"`
	Code      string    `json:"pin_code" doc:"Short code the user approves at app.plex.tv"`
	State     string    `json:"state" doc:"Opaque token that must round-trip on every check"`
	AuthURL   string    `json:"auth_url" doc:"Authorization URL to open in a popup"`
	CreatedAt time.Time `json:"created_at" doc:"Session creation time"`
}

// StartLoginOutput wraps the PIN session response for Huma.
type StartLoginOutput struct {
	Body PinSessionResponse
}

// CheckPinInput contains parameters for checking a PIN.
type CheckPinInput struct {
	PinID int64  `path:"pinID" doc:"PIN identifier from the login response"`
	State string `query:"state" required:"true" doc:"State token from the login response"`
}

// IdentityResponse is the Plex account that approved the PIN.
type IdentityResponse struct {
	AuthToken  string `json:"auth_token" doc:"Plex auth token, used once for redemption"`
	PlexUserID string `json:"plex_user_id" doc:"plex.tv user ID"`
	Email      string `json:"email" doc:"Plex account email"`
	Username   string `json:"username" doc:"Plex account username"`
}

// CheckPinResponse reports the PIN's authorization state.
type CheckPinResponse struct {
	Authorized bool              `json:"authorized" doc:"Whether the user has approved the PIN"`
	Identity   *IdentityResponse `json:"identity,omitempty" doc:"Set once authorized"`
}

// CheckPinOutput wraps the check response for Huma.
type CheckPinOutput struct {
	Body CheckPinResponse
}

// RedeemInput wraps the redeem request for Huma.
type RedeemInput struct {
	Body service.RedeemRequest
}

// RedeemResponse describes a finalized redemption.
type RedeemResponse struct {
	MemberID   string `json:"member_id" doc:"Member record ID"`
	Username   string `json:"username" doc:"Plex account username"`
	ServerName string `json:"server_name" doc:"Name of the server that was joined"`
}

// RedeemOutput wraps the redeem response for Huma.
type RedeemOutput struct {
	Body RedeemResponse
}

// === Handlers ===

func (s *Server) handleStartLogin(ctx context.Context, input *StartLoginInput) (*StartLoginOutput, error) {
	session, err := s.services.OAuth.StartLogin(ctx, input.Body.Code)
	if err != nil {
		return nil, err
	}

	return &StartLoginOutput{
		Body: PinSessionResponse{
			PinID:     session.PinID,
			Code:      session.Code,
			State:     session.State,
			AuthURL:   session.AuthURL,
			CreatedAt: session.CreatedAt,
		},
	}, nil
}

func (s *Server) handleCheckPin(ctx context.Context, input *CheckPinInput) (*CheckPinOutput, error) {
	identity, err := s.services.OAuth.CheckPin(ctx, input.PinID, input.State)
	if err != nil {
		return nil, err
	}

	if identity == nil {
		return &CheckPinOutput{Body: CheckPinResponse{Authorized: false}}, nil
	}

	return &CheckPinOutput{
		Body: CheckPinResponse{
			Authorized: true,
			Identity: &IdentityResponse{
				AuthToken:  identity.AuthToken,
				PlexUserID: identity.PlexUserID,
				Email:      identity.Email,
				Username:   identity.Username,
			},
		},
	}, nil
}

func (s *Server) handleRedeem(ctx context.Context, input *RedeemInput) (*RedeemOutput, error) {
	member, err := s.services.OAuth.Redeem(ctx, input.Body)
	if err != nil {
		return nil, err
	}

	return &RedeemOutput{
		Body: RedeemResponse{
			MemberID:   member.ID,
			Username:   member.Username,
			ServerName: s.settings.Get().ServerName,
		},
	}, nil
}
