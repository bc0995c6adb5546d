package sessions_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/graphgate/graph-gateway/internal/errors"
	"github.com/graphgate/graph-gateway/secrets"
	"github.com/graphgate/graph-gateway/sessions"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*sessions.Manager, *sessions.InMemoryRepo) {
	t.Helper()
	enc, err := secrets.NewEncryptor("test-session-secret-of-sufficient-length")
	require.NoError(t, err)
	repo := sessions.NewInMemoryRepo()
	return sessions.NewManager(repo, enc, time.Hour), repo
}

func TestManager_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	session, err := manager.CreateSession(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)
	require.Nil(t, session.Tokens)

	fetched, err := manager.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, session.ID, fetched.ID)

	require.NoError(t, manager.DeleteSession(ctx, session.ID))
	_, err = manager.GetSession(ctx, session.ID)
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestManager_TokenEncryptionRoundTrip(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	session, err := manager.CreateSession(ctx)
	require.NoError(t, err)

	tokens := &sessions.TokenSet{
		AccessToken:  "upstream-access",
		RefreshToken: "upstream-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
		Scope:        "User.Read Mail.Read",
	}
	require.NoError(t, manager.UpdateTokens(ctx, session.ID, tokens))

	stored, err := manager.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Tokens)

	// At rest the values are ciphertext triplets, never plaintext
	require.NotEqual(t, "upstream-access", stored.Tokens.AccessToken)
	require.Len(t, strings.Split(stored.Tokens.AccessToken, ":"), 3)

	decrypted := manager.GetDecryptedTokens(stored)
	require.NotNil(t, decrypted)
	require.Equal(t, "upstream-access", decrypted.AccessToken)
	require.Equal(t, "upstream-refresh", decrypted.RefreshToken)
	require.Equal(t, "User.Read Mail.Read", decrypted.Scope)
}

func TestManager_GetDecryptedTokens_CorruptedCiphertext(t *testing.T) {
	ctx := context.Background()
	manager, repo := newTestManager(t)

	session, err := manager.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, manager.UpdateTokens(ctx, session.ID, &sessions.TokenSet{
		AccessToken: "upstream-access",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	stored, err := repo.Get(ctx, session.ID)
	require.NoError(t, err)
	stored.Tokens.AccessToken = "00:11:22"
	require.NoError(t, repo.Upsert(ctx, stored, time.Hour))

	corrupted, err := manager.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Nil(t, manager.GetDecryptedTokens(corrupted))
}

func TestManager_AuthFlowFields(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	session, err := manager.CreateSession(ctx)
	require.NoError(t, err)

	require.NoError(t, manager.SetAuthFlow(ctx, session, "verifier-value", "state-value", "nonce-value"))

	stored, err := manager.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.NotEqual(t, "verifier-value", stored.PKCEVerifier)
	require.Equal(t, "state-value", stored.State)

	verifier, err := manager.GetDecryptedPKCEVerifier(stored)
	require.NoError(t, err)
	require.Equal(t, "verifier-value", verifier)

	require.NoError(t, manager.ClearAuthFlow(ctx, stored))
	cleared, err := manager.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Empty(t, cleared.PKCEVerifier)
	require.Empty(t, cleared.State)
	require.Empty(t, cleared.Nonce)

	_, err = manager.GetDecryptedPKCEVerifier(cleared)
	require.Error(t, err)
}

func TestManager_UpdateTokens_SessionVanished(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	err := manager.UpdateTokens(ctx, "no-such-session", &sessions.TokenSet{AccessToken: "x"})
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestManager_TokensNeedRefresh(t *testing.T) {
	manager, _ := newTestManager(t)

	require.False(t, manager.TokensNeedRefresh(nil))
	require.False(t, manager.TokensNeedRefresh(&sessions.TokenSet{ExpiresAt: time.Now().Add(time.Hour)}))
	require.True(t, manager.TokensNeedRefresh(&sessions.TokenSet{ExpiresAt: time.Now().Add(2 * time.Minute)}))
	require.True(t, manager.TokensNeedRefresh(&sessions.TokenSet{ExpiresAt: time.Now().Add(-time.Minute)}))
}
