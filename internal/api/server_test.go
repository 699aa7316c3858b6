package api

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/komandorr/komandorr-server/internal/config"
	"github.com/komandorr/komandorr-server/internal/plex"
	"github.com/komandorr/komandorr-server/internal/service"
	"github.com/komandorr/komandorr-server/internal/settings"
	"github.com/komandorr/komandorr-server/internal/store"
)

const testAdminToken = "test-admin-token"

// testEnvelope mirrors APIEnvelope for decoding test responses.
type testEnvelope[T any] struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

// testErrorEnvelope mirrors APIErrorEnvelope for decoding detailed errors.
type testErrorEnvelope struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

// fakePlex is an in-memory PlexClient for handler tests.
type fakePlex struct {
	nextPinID int64
	pins      map[int64]*plex.Pin
	accounts  map[string]*plex.Account
	shares    []plex.ShareRequest
	removed   []string
}

func newFakePlex() *fakePlex {
	return &fakePlex{
		pins:     make(map[int64]*plex.Pin),
		accounts: make(map[string]*plex.Account),
	}
}

func (f *fakePlex) CreatePin(context.Context) (*plex.Pin, error) {
	f.nextPinID++
	pin := &plex.Pin{ID: f.nextPinID, Code: "pin-code"}
	f.pins[pin.ID] = pin
	snapshot := *pin
	return &snapshot, nil
}

func (f *fakePlex) GetPin(_ context.Context, pinID int64) (*plex.Pin, error) {
	pin, ok := f.pins[pinID]
	if !ok {
		return nil, plex.ErrPinNotFound
	}
	snapshot := *pin
	return &snapshot, nil
}

func (f *fakePlex) authorizePin(pinID int64, token string, account *plex.Account) {
	f.pins[pinID].AuthToken = token
	f.accounts[token] = account
}

func (f *fakePlex) AuthURL(pinCode string) string {
	return "https://app.plex.tv/auth#?code=" + pinCode
}

func (f *fakePlex) GetAccount(_ context.Context, token string) (*plex.Account, error) {
	account, ok := f.accounts[token]
	if !ok {
		return nil, plex.ErrUnauthorized
	}
	return account, nil
}

func (f *fakePlex) GetServerIdentity(context.Context, string, string) (*plex.ServerIdentity, error) {
	return &plex.ServerIdentity{MachineIdentifier: "machine-test", FriendlyName: "Test Server"}, nil
}

func (f *fakePlex) GetLibraries(context.Context, string, string) ([]plex.Library, error) {
	return []plex.Library{
		{ID: "1", Name: "Movies", Type: "movie"},
		{ID: "2", Name: "TV Shows", Type: "show"},
	}, nil
}

func (f *fakePlex) InviteFriend(_ context.Context, _ string, req plex.ShareRequest) error {
	f.shares = append(f.shares, req)
	return nil
}

func (f *fakePlex) InviteHome(_ context.Context, _ string, req plex.ShareRequest) error {
	f.shares = append(f.shares, req)
	return nil
}

func (f *fakePlex) RemoveFriend(_ context.Context, _, plexUserID string) error {
	f.removed = append(f.removed, plexUserID)
	return nil
}

// testServer wraps the API server for handler tests.
type testServer struct {
	*Server
	api  humatest.TestAPI
	plex *fakePlex
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.New(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, st.Close())
	})

	cfg := &config.Config{
		Data:   config.DataConfig{BasePath: t.TempDir()},
		Server: config.ServerConfig{Name: "Komandorr Test", CORSOrigins: []string{"*"}},
		Admin:  config.AdminConfig{Token: testAdminToken},
		Plex: config.PlexConfig{
			ServerURL: "http://plex.local:32400",
			Token:     "server-admin-token",
		},
		OAuth: config.OAuthConfig{StateTTL: 10 * time.Minute},
	}

	manager, err := settings.NewManager(cfg, logger)
	require.NoError(t, err)

	fake := newFakePlex()
	inviteService := service.NewInviteService(st, fake, manager, logger)
	oauthService := service.NewOAuthService(st, fake, inviteService, manager, cfg.OAuth.StateTTL, logger)

	s := NewServer(cfg, st, &Services{
		Invite: inviteService,
		OAuth:  oauthService,
	}, manager, logger)

	return &testServer{
		Server: s,
		api:    humatest.Wrap(t, s.api),
		plex:   fake,
	}
}

// adminAuth is the Authorization header for admin requests.
func adminAuth() string {
	return "Authorization: Bearer " + testAdminToken
}
