package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/komandorr/komandorr-server/internal/domain"
	domainerrors "github.com/komandorr/komandorr-server/internal/errors"
	"github.com/komandorr/komandorr-server/internal/id"
	"github.com/komandorr/komandorr-server/internal/plex"
	"github.com/komandorr/komandorr-server/internal/settings"
	"github.com/komandorr/komandorr-server/internal/store"
)

// stateTokenSize is the number of random bytes in a state token
// (32 bytes = 256 bits of entropy).
const stateTokenSize = 32

// pinState ties a state token to the PIN and invite it was issued for.
// States live in memory only; a server restart invalidates in-flight
// attempts, which simply start over with a fresh PIN.
type pinState struct {
	pinID      int64
	inviteCode string
	createdAt  time.Time
}

// OAuthService drives the Plex PIN-grant flow: it issues PINs for
// validated invites, reports their authorization state, and finalizes
// redemptions.
type OAuthService struct {
	store    *store.Store
	plex     PlexClient
	invites  *InviteService
	settings *settings.Manager
	stateTTL time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	states map[string]*pinState
}

// NewOAuthService creates a new OAuth service.
func NewOAuthService(
	store *store.Store,
	plexClient PlexClient,
	invites *InviteService,
	settingsManager *settings.Manager,
	stateTTL time.Duration,
	logger *slog.Logger,
) *OAuthService {
	return &OAuthService{
		store:    store,
		plex:     plexClient,
		invites:  invites,
		settings: settingsManager,
		stateTTL: stateTTL,
		logger:   logger,
		states:   make(map[string]*pinState),
	}
}

// StartLogin validates the invite code and issues a fresh PIN session.
// Every call creates a new PIN; sessions are never reused across attempts.
func (s *OAuthService) StartLogin(ctx context.Context, inviteCode string) (*domain.PinSession, error) {
	if _, err := s.invites.ValidateCode(ctx, inviteCode); err != nil {
		return nil, err
	}

	pin, err := s.plex.CreatePin(ctx)
	if err != nil {
		return nil, domainerrors.Upstream("failed to create plex pin").WithCause(err)
	}

	state, err := generateStateToken()
	if err != nil {
		return nil, fmt.Errorf("generate state token: %w", err)
	}

	now := time.Now()
	s.mu.Lock()
	s.states[state] = &pinState{
		pinID:      pin.ID,
		inviteCode: domain.NormalizeCode(inviteCode),
		createdAt:  now,
	}
	s.mu.Unlock()

	s.logger.Info("pin session started",
		"pin_id", pin.ID,
		"invite_code", domain.NormalizeCode(inviteCode),
	)

	return &domain.PinSession{
		PinID:     pin.ID,
		Code:      pin.Code,
		State:     state,
		AuthURL:   s.plex.AuthURL(pin.Code),
		CreatedAt: now,
	}, nil
}

// CheckPin reports the authorization state of a PIN. It returns
// (nil, nil) while the PIN is pending. Once the user has approved the
// PIN the state token is consumed and the authorized identity returned.
func (s *OAuthService) CheckPin(ctx context.Context, pinID int64, state string) (*domain.AuthorizedIdentity, error) {
	s.mu.Lock()
	entry, ok := s.states[state]
	if ok && time.Since(entry.createdAt) > s.stateTTL {
		delete(s.states, state)
		ok = false
	}
	s.mu.Unlock()

	if !ok || entry.pinID != pinID {
		return nil, domainerrors.Unauthorized("unknown or expired state token")
	}

	pin, err := s.plex.GetPin(ctx, pinID)
	if err != nil {
		if errors.Is(err, plex.ErrPinNotFound) {
			s.mu.Lock()
			delete(s.states, state)
			s.mu.Unlock()
			return nil, domainerrors.PinExpired("the pin has expired, start a new login")
		}
		return nil, domainerrors.Upstream("failed to check plex pin").WithCause(err)
	}

	if !pin.Authorized() {
		return nil, nil
	}

	account, err := s.plex.GetAccount(ctx, pin.AuthToken)
	if err != nil {
		return nil, domainerrors.Upstream("failed to fetch plex account").WithCause(err)
	}

	// One authorization per state token.
	s.mu.Lock()
	delete(s.states, state)
	s.mu.Unlock()

	s.logger.Info("pin authorized",
		"pin_id", pinID,
		"plex_user_id", account.UserID(),
	)

	return &domain.AuthorizedIdentity{
		AuthToken:  pin.AuthToken,
		PlexUserID: account.UserID(),
		Email:      account.Email,
		Username:   account.Username,
	}, nil
}

// RedeemRequest contains the data needed to finalize a redemption.
type RedeemRequest struct {
	Code      string `json:"code" validate:"required"`
	AuthToken string `json:"auth_token" validate:"required"`
}

// Redeem finalizes an invite redemption for an authorized Plex account:
// it shares the invite's libraries with the account and records the
// member. Redeeming the same invite twice with the same account returns
// ErrAlreadyRedeemed without granting anything again.
func (s *OAuthService) Redeem(ctx context.Context, req RedeemRequest) (*domain.Member, error) {
	if err := validate.Struct(req); err != nil {
		return nil, formatValidationError(err)
	}

	// Re-validate: the invite may have expired or filled up since the
	// attempt started.
	invite, err := s.invites.ValidateCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	// The identity comes from the token, never from client-supplied fields.
	account, err := s.plex.GetAccount(ctx, req.AuthToken)
	if err != nil {
		if errors.Is(err, plex.ErrUnauthorized) {
			return nil, domainerrors.Unauthorized("invalid or expired plex token")
		}
		return nil, domainerrors.Upstream("failed to fetch plex account").WithCause(err)
	}

	if _, err := s.store.GetMemberByInviteAndPlexID(ctx, invite.ID, account.UserID()); err == nil {
		return nil, domainerrors.AlreadyRedeemed("you have already redeemed this invite")
	} else if !errors.Is(err, store.ErrMemberNotFound) {
		return nil, fmt.Errorf("check existing member: %w", err)
	}

	if err := s.shareLibraries(ctx, invite, account); err != nil {
		return nil, err
	}

	memberID, err := id.Generate("mem")
	if err != nil {
		return nil, fmt.Errorf("generate member ID: %w", err)
	}

	now := time.Now()
	member := &domain.Member{
		ID:         memberID,
		InviteID:   invite.ID,
		PlexUserID: account.UserID(),
		Email:      account.Email,
		Username:   account.Username,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.CreateMember(ctx, member); err != nil {
		return nil, fmt.Errorf("create member: %w", err)
	}

	if _, err := s.store.IncrementInviteUsage(ctx, invite.ID); err != nil {
		// The member exists and has access; a lost increment is recoverable
		// by an admin, a failed redemption after sharing is not.
		s.logger.Warn("failed to increment invite usage",
			"invite_id", invite.ID,
			"member_id", member.ID,
			"error", err,
		)
	}

	s.logger.Info("invite redeemed",
		"invite_id", invite.ID,
		"member_id", member.ID,
		"plex_user_id", member.PlexUserID,
	)

	return member, nil
}

// shareLibraries grants the invite's library shares to the account,
// either as a Plex friend or as a Plex Home user.
func (s *OAuthService) shareLibraries(ctx context.Context, invite *domain.Invite, account *plex.Account) error {
	current := s.settings.Get()
	if current.PlexServerURL == "" || current.PlexToken == "" {
		return domainerrors.Internal("plex server connection is not configured")
	}

	identity, err := s.plex.GetServerIdentity(ctx, current.PlexServerURL, current.PlexToken)
	if err != nil {
		return domainerrors.Upstream("failed to reach plex server").WithCause(err)
	}

	sectionIDs := invite.Libraries
	if invite.AllLibraries() {
		libraries, err := s.plex.GetLibraries(ctx, current.PlexServerURL, current.PlexToken)
		if err != nil {
			return domainerrors.Upstream("failed to list plex libraries").WithCause(err)
		}
		sectionIDs = make([]string, 0, len(libraries))
		for _, lib := range libraries {
			sectionIDs = append(sectionIDs, lib.ID)
		}
	}

	share := plex.ShareRequest{
		MachineIdentifier: identity.MachineIdentifier,
		Email:             account.Email,
		LibrarySectionIDs: sectionIDs,
		AllowSync:         invite.AllowSync,
		AllowChannels:     invite.AllowChannels,
		AllowCameraUpload: invite.AllowCameraUpload,
	}

	if invite.PlexHome {
		err = s.plex.InviteHome(ctx, current.PlexToken, share)
	} else {
		err = s.plex.InviteFriend(ctx, current.PlexToken, share)
	}
	if err != nil {
		return domainerrors.Upstream("failed to share plex libraries").WithCause(err)
	}

	return nil
}

// CleanupStates drops expired state tokens and returns how many were removed.
// Called periodically by the state cleanup job.
func (s *OAuthService) CleanupStates() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for state, entry := range s.states {
		if time.Since(entry.createdAt) > s.stateTTL {
			delete(s.states, state)
			removed++
		}
	}
	return removed
}

// generateStateToken generates a cryptographically random, URL-safe state token.
func generateStateToken() (string, error) {
	b := make([]byte, stateTokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
