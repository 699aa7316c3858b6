package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/komandorr/komandorr-server/internal/errors"
	"github.com/komandorr/komandorr-server/internal/plex"
)

const defaultTestStateTTL = 10 * time.Minute

func aliceAccount() *plex.Account {
	return &plex.Account{
		ID:       42,
		UUID:     "u-42",
		Username: "alice",
		Email:    "alice@example.com",
	}
}

func TestStartLogin(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	_, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{Code: "JOINME01"})
	require.NoError(t, err)

	session, err := env.oauth.StartLogin(ctx, "joinme01")
	require.NoError(t, err)
	assert.NotZero(t, session.PinID)
	assert.NotEmpty(t, session.State)
	assert.Contains(t, session.AuthURL, session.Code)

	// A second login gets a fresh PIN and a fresh state.
	second, err := env.oauth.StartLogin(ctx, "JOINME01")
	require.NoError(t, err)
	assert.NotEqual(t, session.PinID, second.PinID)
	assert.NotEqual(t, session.State, second.State)
}

func TestStartLogin_InvalidCode(t *testing.T) {
	env := setupTest(t)

	_, err := env.oauth.StartLogin(context.Background(), "NOSUCHCODE")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestStartLogin_ExhaustedInvite(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	invite, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{
		Code:       "WELCOME10",
		UsageLimit: 10,
	})
	require.NoError(t, err)
	for range 10 {
		_, err := env.store.IncrementInviteUsage(ctx, invite.ID)
		require.NoError(t, err)
	}

	_, err = env.oauth.StartLogin(ctx, "WELCOME10")
	assert.ErrorIs(t, err, domainerrors.ErrInviteExhausted)
}

func TestCheckPin_PendingThenAuthorized(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	_, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{Code: "JOINME01"})
	require.NoError(t, err)

	session, err := env.oauth.StartLogin(ctx, "JOINME01")
	require.NoError(t, err)

	// Pending: no identity, no error.
	identity, err := env.oauth.CheckPin(ctx, session.PinID, session.State)
	require.NoError(t, err)
	assert.Nil(t, identity)

	env.plex.authorizePin(session.PinID, "token-alice", aliceAccount())

	identity, err = env.oauth.CheckPin(ctx, session.PinID, session.State)
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "token-alice", identity.AuthToken)
	assert.Equal(t, "42", identity.PlexUserID)
	assert.Equal(t, "alice", identity.Username)

	// The state token is single-use.
	_, err = env.oauth.CheckPin(ctx, session.PinID, session.State)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestCheckPin_UnknownState(t *testing.T) {
	env := setupTest(t)

	_, err := env.oauth.CheckPin(context.Background(), 1, "bogus-state")
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestCheckPin_StatePinMismatch(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	_, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{Code: "JOINME01"})
	require.NoError(t, err)

	session, err := env.oauth.StartLogin(ctx, "JOINME01")
	require.NoError(t, err)

	_, err = env.oauth.CheckPin(ctx, session.PinID+1, session.State)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestCheckPin_ExpiredPin(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	_, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{Code: "JOINME01"})
	require.NoError(t, err)

	session, err := env.oauth.StartLogin(ctx, "JOINME01")
	require.NoError(t, err)

	// plex.tv discarded the PIN.
	env.plex.mu.Lock()
	delete(env.plex.pins, session.PinID)
	env.plex.mu.Unlock()

	_, err = env.oauth.CheckPin(ctx, session.PinID, session.State)
	assert.ErrorIs(t, err, domainerrors.ErrPinExpired)

	// The state was dropped along with the expired PIN.
	_, err = env.oauth.CheckPin(ctx, session.PinID, session.State)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestRedeem(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	invite, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{
		Code:      "JOINME01",
		Libraries: []string{"1"},
		AllowSync: true,
	})
	require.NoError(t, err)

	env.plex.mu.Lock()
	env.plex.accounts["token-alice"] = aliceAccount()
	env.plex.mu.Unlock()

	member, err := env.oauth.Redeem(ctx, RedeemRequest{
		Code:      "JOINME01",
		AuthToken: "token-alice",
	})
	require.NoError(t, err)
	assert.Equal(t, invite.ID, member.InviteID)
	assert.Equal(t, "42", member.PlexUserID)
	assert.Equal(t, "alice@example.com", member.Email)

	// Exactly one share, scoped to the invite's libraries.
	require.Equal(t, 1, env.plex.friendInviteCount())
	share := env.plex.friendInvites[0]
	assert.Equal(t, "machine-test", share.MachineIdentifier)
	assert.Equal(t, []string{"1"}, share.LibrarySectionIDs)
	assert.True(t, share.AllowSync)

	// Usage was counted.
	stored, err := env.store.GetInvite(ctx, invite.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsedCount)
}

func TestRedeem_AllLibraries(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	_, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{Code: "JOINME01"})
	require.NoError(t, err)

	env.plex.mu.Lock()
	env.plex.accounts["token-alice"] = aliceAccount()
	env.plex.mu.Unlock()

	_, err = env.oauth.Redeem(ctx, RedeemRequest{Code: "JOINME01", AuthToken: "token-alice"})
	require.NoError(t, err)

	require.Equal(t, 1, env.plex.friendInviteCount())
	assert.Equal(t, []string{"1", "2"}, env.plex.friendInvites[0].LibrarySectionIDs)
}

func TestRedeem_PlexHome(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	_, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{
		Code:     "HOMECODE",
		PlexHome: true,
	})
	require.NoError(t, err)

	env.plex.mu.Lock()
	env.plex.accounts["token-alice"] = aliceAccount()
	env.plex.mu.Unlock()

	_, err = env.oauth.Redeem(ctx, RedeemRequest{Code: "HOMECODE", AuthToken: "token-alice"})
	require.NoError(t, err)

	assert.Len(t, env.plex.homeInvites, 1)
	assert.Empty(t, env.plex.friendInvites)
}

func TestRedeem_Twice(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	_, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{Code: "JOINME01"})
	require.NoError(t, err)

	env.plex.mu.Lock()
	env.plex.accounts["token-alice"] = aliceAccount()
	env.plex.mu.Unlock()

	_, err = env.oauth.Redeem(ctx, RedeemRequest{Code: "JOINME01", AuthToken: "token-alice"})
	require.NoError(t, err)

	// Second redemption by the same account: flagged, nothing re-shared,
	// usage not double counted.
	_, err = env.oauth.Redeem(ctx, RedeemRequest{Code: "JOINME01", AuthToken: "token-alice"})
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyRedeemed)

	assert.Equal(t, 1, env.plex.friendInviteCount())

	invite, err := env.store.GetInviteByCode(ctx, "JOINME01")
	require.NoError(t, err)
	assert.Equal(t, 1, invite.UsedCount)
}

func TestRedeem_DifferentAccountsShareInvite(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	_, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{Code: "JOINME01"})
	require.NoError(t, err)

	env.plex.mu.Lock()
	env.plex.accounts["token-alice"] = aliceAccount()
	env.plex.accounts["token-bob"] = &plex.Account{ID: 43, Username: "bob", Email: "bob@example.com"}
	env.plex.mu.Unlock()

	_, err = env.oauth.Redeem(ctx, RedeemRequest{Code: "JOINME01", AuthToken: "token-alice"})
	require.NoError(t, err)
	_, err = env.oauth.Redeem(ctx, RedeemRequest{Code: "JOINME01", AuthToken: "token-bob"})
	require.NoError(t, err)

	assert.Equal(t, 2, env.plex.friendInviteCount())
}

func TestRedeem_InvalidToken(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	_, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{Code: "JOINME01"})
	require.NoError(t, err)

	_, err = env.oauth.Redeem(ctx, RedeemRequest{Code: "JOINME01", AuthToken: "bogus"})
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestRedeem_ExhaustedBetweenStartAndFinish(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	invite, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{
		Code:       "LASTSEAT",
		UsageLimit: 1,
	})
	require.NoError(t, err)

	env.plex.mu.Lock()
	env.plex.accounts["token-alice"] = aliceAccount()
	env.plex.mu.Unlock()

	// Someone else takes the last seat mid-flow.
	_, err = env.store.IncrementInviteUsage(ctx, invite.ID)
	require.NoError(t, err)

	_, err = env.oauth.Redeem(ctx, RedeemRequest{Code: "LASTSEAT", AuthToken: "token-alice"})
	assert.ErrorIs(t, err, domainerrors.ErrInviteExhausted)
	assert.Zero(t, env.plex.friendInviteCount())
}

func TestCleanupStates(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	_, err := env.invites.CreateInvite(ctx, "admin", CreateInviteRequest{Code: "JOINME01"})
	require.NoError(t, err)

	session, err := env.oauth.StartLogin(ctx, "JOINME01")
	require.NoError(t, err)

	// Fresh states survive cleanup.
	assert.Zero(t, env.oauth.CleanupStates())

	// Age the state past its TTL.
	env.oauth.mu.Lock()
	env.oauth.states[session.State].createdAt = time.Now().Add(-defaultTestStateTTL - time.Minute)
	env.oauth.mu.Unlock()

	assert.Equal(t, 1, env.oauth.CleanupStates())

	_, err = env.oauth.CheckPin(ctx, session.PinID, session.State)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}
