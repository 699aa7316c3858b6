package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komandorr/komandorr-server/internal/domain"
	domainerrors "github.com/komandorr/komandorr-server/internal/errors"
)

func TestCreateInvite_GeneratedCode(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	invite, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{
		UsageLimit: 5,
	})
	require.NoError(t, err)

	assert.Len(t, invite.Code, defaultCodeLength)
	assert.Equal(t, "admin", invite.CreatedBy)
	assert.True(t, invite.Active)
	assert.Nil(t, invite.ExpiresAt)
	assert.Equal(t, domain.InviteStatusActive, invite.Status())
}

func TestCreateInvite_CustomCode(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	invite, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{
		Code: "welcome10",
	})
	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", invite.Code)

	// Same code again, different case.
	_, err = env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{
		Code: "Welcome10",
	})
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyExists)
}

func TestCreateInvite_RejectsBadCode(t *testing.T) {
	env := setupTest(t)

	_, err := env.invites.CreateInvite(context.Background(), "admin", CreateInviteRequest{
		Code: "no", // too short
	})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestCreateInvite_Expiry(t *testing.T) {
	env := setupTest(t)

	invite, err := env.invites.CreateInvite(context.Background(), "admin", CreateInviteRequest{
		ExpiresInDays: 7,
	})
	require.NoError(t, err)
	require.NotNil(t, invite.ExpiresAt)
	assert.False(t, invite.IsExpired())
}

func TestValidateCode(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	created, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{
		Code: "GOODCODE",
	})
	require.NoError(t, err)

	t.Run("valid code", func(t *testing.T) {
		invite, err := env.invites.ValidateCode(ctx, "goodcode")
		require.NoError(t, err)
		assert.Equal(t, created.ID, invite.ID)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := env.invites.ValidateCode(ctx, "NOSUCHCODE")
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	})

	t.Run("disabled invite", func(t *testing.T) {
		disabled := false
		_, err := env.invites.UpdateInvite(ctx, created.ID, UpdateInviteRequest{Active: &disabled})
		require.NoError(t, err)

		_, err = env.invites.ValidateCode(ctx, "GOODCODE")
		assert.ErrorIs(t, err, domainerrors.ErrInviteDisabled)

		enabled := true
		_, err = env.invites.UpdateInvite(ctx, created.ID, UpdateInviteRequest{Active: &enabled})
		require.NoError(t, err)
	})
}

func TestValidateCode_ExhaustedInvite(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	invite, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{
		Code:       "WELCOME10",
		UsageLimit: 10,
	})
	require.NoError(t, err)

	// Burn through every use.
	for range 10 {
		_, err := env.store.IncrementInviteUsage(ctx, invite.ID)
		require.NoError(t, err)
	}

	_, err = env.invites.ValidateCode(ctx, "WELCOME10")
	assert.ErrorIs(t, err, domainerrors.ErrInviteExhausted)
}

func TestUpdateInvite(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	invite, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{
		UsageLimit: 1,
	})
	require.NoError(t, err)

	limit := 10
	libraries := []string{"1"}
	updated, err := env.invites.UpdateInvite(ctx, invite.ID, UpdateInviteRequest{
		UsageLimit: &limit,
		Libraries:  &libraries,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, updated.UsageLimit)
	assert.Equal(t, []string{"1"}, updated.Libraries)

	// Clearing the expiry.
	never := 0
	updated, err = env.invites.UpdateInvite(ctx, invite.ID, UpdateInviteRequest{
		ExpiresInDays: &never,
	})
	require.NoError(t, err)
	assert.Nil(t, updated.ExpiresAt)
}

func TestUpdateInvite_NotFound(t *testing.T) {
	env := setupTest(t)

	active := true
	_, err := env.invites.UpdateInvite(context.Background(), "inv-missing", UpdateInviteRequest{Active: &active})
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestDeleteInvite_RevokesAccess(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	invite, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{Code: "REVOKEME"})
	require.NoError(t, err)

	member := &domain.Member{
		ID:         "mem-1",
		InviteID:   invite.ID,
		PlexUserID: "9001",
		Email:      "bob@example.com",
	}
	require.NoError(t, env.store.CreateMember(ctx, member))

	require.NoError(t, env.invites.DeleteInvite(ctx, invite.ID, true))

	assert.Equal(t, []string{"9001"}, env.plex.removed)

	_, err = env.invites.GetInvite(ctx, invite.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	// Code is free for reuse.
	_, err = env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{Code: "REVOKEME"})
	assert.NoError(t, err)
}

func TestDeleteInvite_KeepsAccessWithoutRevoke(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	invite, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{})
	require.NoError(t, err)

	member := &domain.Member{ID: "mem-1", InviteID: invite.ID, PlexUserID: "9001"}
	require.NoError(t, env.store.CreateMember(ctx, member))

	require.NoError(t, env.invites.DeleteInvite(ctx, invite.ID, false))
	assert.Empty(t, env.plex.removed)
}

func TestGetInvite_IncludesMembers(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	invite, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{})
	require.NoError(t, err)

	details, err := env.invites.GetInvite(ctx, invite.ID)
	require.NoError(t, err)
	assert.Empty(t, details.Members)
	assert.Equal(t, domain.InviteStatusActive, details.Status)

	require.NoError(t, env.store.CreateMember(ctx, &domain.Member{
		ID: "mem-1", InviteID: invite.ID, PlexUserID: "9001", Username: "bob",
	}))

	details, err = env.invites.GetInvite(ctx, invite.ID)
	require.NoError(t, err)
	require.Len(t, details.Members, 1)
	assert.Equal(t, "bob", details.Members[0].Username)
}

func TestStats(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	active, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{})
	require.NoError(t, err)

	limited, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{UsageLimit: 1})
	require.NoError(t, err)
	_, err = env.store.IncrementInviteUsage(ctx, limited.ID)
	require.NoError(t, err)

	disabledInvite, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{})
	require.NoError(t, err)
	off := false
	_, err = env.invites.UpdateInvite(ctx, disabledInvite.ID, UpdateInviteRequest{Active: &off})
	require.NoError(t, err)

	require.NoError(t, env.store.CreateMember(ctx, &domain.Member{
		ID: "mem-1", InviteID: active.ID, PlexUserID: "9001",
	}))

	stats, err := env.invites.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalInvites)
	assert.Equal(t, 1, stats.ActiveInvites)
	assert.Equal(t, 1, stats.ExhaustedInvites)
	assert.Equal(t, 1, stats.DisabledInvites)
	assert.Equal(t, 1, stats.TotalRedemptions)
	assert.Equal(t, 1, stats.TotalMembers)
}

func TestGetServerConfig(t *testing.T) {
	env := setupTest(t)

	cfg, err := env.invites.GetServerConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Komandorr Test", cfg.ServerName)
	require.Len(t, cfg.Libraries, 2)
	assert.Equal(t, "Movies", cfg.Libraries[0].Name)
}
