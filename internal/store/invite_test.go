package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komandorr/komandorr-server/internal/domain"
	"github.com/komandorr/komandorr-server/internal/id"
)

// setupTestStore creates a store backed by a temp directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "komandorr-store-test-*")
	require.NoError(t, err)

	st, err := New(filepath.Join(tmpDir, "test.db"), nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = st.Close()
		_ = os.RemoveAll(tmpDir)
	})

	return st
}

func testInvite(code string) *domain.Invite {
	now := time.Now()
	return &domain.Invite{
		ID:        id.MustGenerate("inv"),
		Code:      code,
		CreatedBy: "admin",
		CreatedAt: now,
		UpdatedAt: now,
		Active:    true,
	}
}

func TestCreateInvite_AndGetByCode(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	inv := testInvite("WELCOME10")
	inv.UsageLimit = 10
	require.NoError(t, st.CreateInvite(ctx, inv))

	got, err := st.GetInviteByCode(ctx, "WELCOME10")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
	assert.Equal(t, 10, got.UsageLimit)
}

func TestGetInviteByCode_CaseInsensitive(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	// Code is normalized on create even when handed in lower case.
	inv := testInvite("welcome10")
	require.NoError(t, st.CreateInvite(ctx, inv))
	assert.Equal(t, "WELCOME10", inv.Code)

	got, err := st.GetInviteByCode(ctx, "wElCoMe10")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
}

func TestCreateInvite_DuplicateCode(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateInvite(ctx, testInvite("ABCDEF")))

	err := st.CreateInvite(ctx, testInvite("abcdef"))
	assert.ErrorIs(t, err, ErrInviteCodeExists)
}

func TestGetInviteByCode_NotFound(t *testing.T) {
	st := setupTestStore(t)

	_, err := st.GetInviteByCode(context.Background(), "MISSING")
	assert.ErrorIs(t, err, ErrInviteNotFound)
}

func TestUpdateInvite(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	inv := testInvite("ABCDEF")
	require.NoError(t, st.CreateInvite(ctx, inv))

	inv.Active = false
	inv.UsageLimit = 3
	require.NoError(t, st.UpdateInvite(ctx, inv))

	got, err := st.GetInvite(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, 3, got.UsageLimit)
}

func TestUpdateInvite_NotFound(t *testing.T) {
	st := setupTestStore(t)

	err := st.UpdateInvite(context.Background(), testInvite("GHOST"))
	assert.ErrorIs(t, err, ErrInviteNotFound)
}

func TestIncrementInviteUsage(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	inv := testInvite("ABCDEF")
	inv.UsageLimit = 2
	require.NoError(t, st.CreateInvite(ctx, inv))

	got, err := st.IncrementInviteUsage(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsedCount)

	got, err = st.IncrementInviteUsage(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UsedCount)
	assert.True(t, got.IsExhausted())
}

func TestDeleteInvite_RemovesCodeIndex(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	inv := testInvite("ABCDEF")
	require.NoError(t, st.CreateInvite(ctx, inv))
	require.NoError(t, st.DeleteInvite(ctx, inv.ID))

	_, err := st.GetInviteByCode(ctx, "ABCDEF")
	assert.ErrorIs(t, err, ErrInviteNotFound)

	// Code can be reused after deletion.
	assert.NoError(t, st.CreateInvite(ctx, testInvite("ABCDEF")))
}

func TestDeleteInvite_MissingIsNoop(t *testing.T) {
	st := setupTestStore(t)

	assert.NoError(t, st.DeleteInvite(context.Background(), "inv-missing"))
}

func TestListInvites(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateInvite(ctx, testInvite("AAAA")))
	require.NoError(t, st.CreateInvite(ctx, testInvite("BBBB")))
	require.NoError(t, st.CreateInvite(ctx, testInvite("CCCC")))

	invites, err := st.ListInvites(ctx)
	require.NoError(t, err)
	assert.Len(t, invites, 3)
}
