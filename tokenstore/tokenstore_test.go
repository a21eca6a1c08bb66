package tokenstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/paystream/go-session-client/api"
	"github.com/paystream/go-session-client/tokenstore"
)

func testState() *tokenstore.State {
	return &tokenstore.State{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		User:         &api.Profile{ID: "user-1", Email: "ops@paystream.example", Role: api.RoleSuperAdmin, Elevated: true},
		SessionID:    tokenstore.NewSessionID(),
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	folder := t.TempDir()
	store := tokenstore.NewFileStore(folder)

	saved := testState()
	require.NoError(t, store.Save(saved))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, saved, loaded)
	require.True(t, loaded.HasTokens())
}

func TestFileStore_MissingFileMeansNoSession(t *testing.T) {
	store := tokenstore.NewFileStore(t.TempDir())

	state, err := store.Load()
	require.NoError(t, err)
	require.False(t, state.HasTokens())
	require.Empty(t, state.SessionID)
}

func TestFileStore_CorruptFileMeansNoSession(t *testing.T) {
	folder := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(folder, "session.json"), []byte("{not json"), 0o600))

	store := tokenstore.NewFileStore(folder)
	state, err := store.Load()
	require.NoError(t, err)
	require.False(t, state.HasTokens())
}

func TestFileStore_ClearIsIdempotent(t *testing.T) {
	folder := t.TempDir()
	store := tokenstore.NewFileStore(folder)
	require.NoError(t, store.Save(testState()))

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	state, err := store.Load()
	require.NoError(t, err)
	require.False(t, state.HasTokens())
}

func TestMemoryStore_CopiesState(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	saved := testState()
	require.NoError(t, store.Save(saved))

	// Mutating the caller's copy must not leak into the store.
	saved.AccessToken = "mutated"

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "access-1", loaded.AccessToken)
}

func TestPersistent_SurvivesRestart(t *testing.T) {
	folder := t.TempDir()
	first := tokenstore.NewPersistent(folder, zerolog.Nop())
	require.NoError(t, first.Save(testState()))

	second := tokenstore.NewPersistent(folder, zerolog.Nop())
	state, err := second.Load()
	require.NoError(t, err)
	require.True(t, state.HasTokens())
	require.Equal(t, "access-1", state.AccessToken)
}

func TestPersistent_DegradesToMemoryOnly(t *testing.T) {
	// A data folder path below a regular file cannot be created, so every
	// disk write fails.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	store := tokenstore.NewPersistent(filepath.Join(blocker, "data"), zerolog.Nop())

	require.NoError(t, store.Save(testState()), "storage failure must not surface")

	state, err := store.Load()
	require.NoError(t, err)
	require.True(t, state.HasTokens(), "in-memory state stays authoritative")
	require.NoError(t, store.Clear())
}

func TestNewSessionID_Unique(t *testing.T) {
	first := tokenstore.NewSessionID()
	second := tokenstore.NewSessionID()
	require.NotEmpty(t, first)
	require.NotEqual(t, first, second)
}
