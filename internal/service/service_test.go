package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/komandorr/komandorr-server/internal/config"
	"github.com/komandorr/komandorr-server/internal/plex"
	"github.com/komandorr/komandorr-server/internal/settings"
	"github.com/komandorr/komandorr-server/internal/store"
)

// fakePlex is an in-memory PlexClient for service tests.
type fakePlex struct {
	mu sync.Mutex

	nextPinID int64
	pins      map[int64]*plex.Pin
	accounts  map[string]*plex.Account // token -> account
	libraries []plex.Library
	identity  plex.ServerIdentity

	friendInvites []plex.ShareRequest
	homeInvites   []plex.ShareRequest
	removed       []string

	createPinErr error
	getPinErr    error
	accountErr   error
	shareErr     error
}

func newFakePlex() *fakePlex {
	return &fakePlex{
		pins:     make(map[int64]*plex.Pin),
		accounts: make(map[string]*plex.Account),
		identity: plex.ServerIdentity{
			MachineIdentifier: "machine-test",
			FriendlyName:      "Test Server",
		},
		libraries: []plex.Library{
			{ID: "1", Name: "Movies", Type: "movie"},
			{ID: "2", Name: "TV Shows", Type: "show"},
		},
	}
}

func (f *fakePlex) CreatePin(context.Context) (*plex.Pin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createPinErr != nil {
		return nil, f.createPinErr
	}
	f.nextPinID++
	pin := &plex.Pin{ID: f.nextPinID, Code: "pin-code"}
	f.pins[pin.ID] = pin
	return &plex.Pin{ID: pin.ID, Code: pin.Code}, nil
}

func (f *fakePlex) GetPin(_ context.Context, pinID int64) (*plex.Pin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getPinErr != nil {
		return nil, f.getPinErr
	}
	pin, ok := f.pins[pinID]
	if !ok {
		return nil, plex.ErrPinNotFound
	}
	snapshot := *pin
	return &snapshot, nil
}

// authorizePin simulates the user approving a PIN at app.plex.tv.
func (f *fakePlex) authorizePin(pinID int64, token string, account *plex.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pins[pinID].AuthToken = token
	f.accounts[token] = account
}

func (f *fakePlex) AuthURL(pinCode string) string {
	return "https://app.plex.tv/auth#?code=" + pinCode
}

func (f *fakePlex) GetAccount(_ context.Context, token string) (*plex.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	account, ok := f.accounts[token]
	if !ok {
		return nil, plex.ErrUnauthorized
	}
	return account, nil
}

func (f *fakePlex) GetServerIdentity(context.Context, string, string) (*plex.ServerIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := f.identity
	return &snapshot, nil
}

func (f *fakePlex) GetLibraries(context.Context, string, string) ([]plex.Library, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.libraries, nil
}

func (f *fakePlex) InviteFriend(_ context.Context, _ string, req plex.ShareRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shareErr != nil {
		return f.shareErr
	}
	f.friendInvites = append(f.friendInvites, req)
	return nil
}

func (f *fakePlex) InviteHome(_ context.Context, _ string, req plex.ShareRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shareErr != nil {
		return f.shareErr
	}
	f.homeInvites = append(f.homeInvites, req)
	return nil
}

func (f *fakePlex) RemoveFriend(_ context.Context, _, plexUserID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, plexUserID)
	return nil
}

func (f *fakePlex) friendInviteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.friendInvites)
}

// testEnv bundles the services and their fakes for a test.
type testEnv struct {
	store   *store.Store
	plex    *fakePlex
	invites *InviteService
	oauth   *OAuthService
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.New(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, st.Close())
	})

	cfg := &config.Config{
		Data:   config.DataConfig{BasePath: t.TempDir()},
		Server: config.ServerConfig{Name: "Komandorr Test"},
		Plex: config.PlexConfig{
			ServerURL: "http://plex.local:32400",
			Token:     "server-admin-token",
		},
	}
	manager, err := settings.NewManager(cfg, logger)
	require.NoError(t, err)

	fake := newFakePlex()
	invites := NewInviteService(st, fake, manager, logger)
	oauth := NewOAuthService(st, fake, invites, manager, defaultTestStateTTL, logger)

	return &testEnv{
		store:   st,
		plex:    fake,
		invites: invites,
		oauth:   oauth,
	}
}
