package plex

import (
	"context"
	"encoding/json/v2"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient points a client at an httptest server.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New("test-client-id", "Komandorr Test", testLogger())
	c.baseURL = srv.URL
	t.Cleanup(c.Close)

	return c
}

func TestCreatePin(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/pins", r.URL.Path)
		assert.Equal(t, "test-client-id", r.Header.Get("X-Plex-Client-Identifier"))
		assert.Equal(t, "Komandorr Test", r.Header.Get("X-Plex-Product"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "true", r.PostForm.Get("strong"))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 123456, "code": "abcd1234efgh5678"}`))
	}))

	pin, err := c.CreatePin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(123456), pin.ID)
	assert.Equal(t, "abcd1234efgh5678", pin.Code)
	assert.False(t, pin.Authorized())
}

func TestGetPin_Pending(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/pins/123456", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": 123456, "code": "abcd", "authToken": ""}`))
	}))

	pin, err := c.GetPin(context.Background(), 123456)
	require.NoError(t, err)
	assert.False(t, pin.Authorized())
}

func TestGetPin_Authorized(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": 123456, "code": "abcd", "authToken": "token-xyz"}`))
	}))

	pin, err := c.GetPin(context.Background(), 123456)
	require.NoError(t, err)
	assert.True(t, pin.Authorized())
	assert.Equal(t, "token-xyz", pin.AuthToken)
}

func TestGetPin_ExpiredReturnsNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.GetPin(context.Background(), 999)
	assert.ErrorIs(t, err, ErrPinNotFound)
}

func TestGetAccount(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/user", r.URL.Path)
		assert.Equal(t, "token-xyz", r.Header.Get("X-Plex-Token"))
		_, _ = w.Write([]byte(`{"id": 42, "uuid": "u-42", "username": "alice", "email": "alice@example.com"}`))
	}))

	account, err := c.GetAccount(context.Background(), "token-xyz")
	require.NoError(t, err)
	assert.Equal(t, "42", account.UserID())
	assert.Equal(t, "alice", account.Username)
	assert.Equal(t, "alice@example.com", account.Email)
}

func TestGetAccount_InvalidToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.GetAccount(context.Background(), "bad-token")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthURL(t *testing.T) {
	c := New("my-client", "Komandorr", testLogger())
	defer c.Close()

	u := c.AuthURL("pincode123")

	assert.Contains(t, u, "https://app.plex.tv/auth#?")
	assert.Contains(t, u, "clientID=my-client")
	assert.Contains(t, u, "code=pincode123")
	assert.Contains(t, u, "context%5Bdevice%5D%5Bproduct%5D=Komandorr")
}

func TestGetLibraries(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/sections", r.URL.Path)
		assert.Equal(t, "server-token", r.Header.Get("X-Plex-Token"))
		_, _ = w.Write([]byte(`{"MediaContainer": {"Directory": [
			{"key": "1", "title": "Movies", "type": "movie"},
			{"key": "2", "title": "TV Shows", "type": "show"}
		]}}`))
	}))

	libs, err := c.GetLibraries(context.Background(), c.baseURL, "server-token")
	require.NoError(t, err)
	require.Len(t, libs, 2)
	assert.Equal(t, "Movies", libs[0].Name)
	assert.Equal(t, "2", libs[1].ID)
}

func TestGetServerIdentity(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/identity", r.URL.Path)
		_, _ = w.Write([]byte(`{"MediaContainer": {"machineIdentifier": "machine-abc", "friendlyName": "Home Server"}}`))
	}))

	identity, err := c.GetServerIdentity(context.Background(), c.baseURL, "server-token")
	require.NoError(t, err)
	assert.Equal(t, "machine-abc", identity.MachineIdentifier)
	assert.Equal(t, "Home Server", identity.FriendlyName)
}

func TestInviteFriend(t *testing.T) {
	var got sharedServerRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/shared_servers", r.URL.Path)
		assert.Equal(t, "admin-token", r.Header.Get("X-Plex-Token"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	}))

	err := c.InviteFriend(context.Background(), "admin-token", ShareRequest{
		MachineIdentifier: "machine-abc",
		Email:             "alice@example.com",
		LibrarySectionIDs: []string{"1", "3"},
		AllowSync:         true,
	})
	require.NoError(t, err)

	assert.Equal(t, "machine-abc", got.MachineIdentifier)
	assert.Equal(t, "alice@example.com", got.InvitedEmail)
	assert.Equal(t, []int64{1, 3}, got.LibrarySectionIDs)
	assert.Equal(t, "1", got.Settings.AllowSync)
	assert.Equal(t, "0", got.Settings.AllowChannels)
}

func TestInviteFriend_InvalidSectionID(t *testing.T) {
	c := New("test", "Komandorr", testLogger())
	defer c.Close()

	err := c.InviteFriend(context.Background(), "admin-token", ShareRequest{
		MachineIdentifier: "machine-abc",
		Email:             "alice@example.com",
		LibrarySectionIDs: []string{"not-a-number"},
	})
	assert.Error(t, err)
}

func TestRemoveFriend(t *testing.T) {
	var path, method string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		method = r.Method
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))

	err := c.RemoveFriend(context.Background(), "admin-token", "42")
	require.NoError(t, err)
	assert.Equal(t, "/api/v2/friends/42", path)
	assert.Equal(t, http.MethodDelete, method)
}

func TestRateLimited(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.GetPin(context.Background(), 1)
	assert.ErrorIs(t, err, ErrRateLimited)
}
