package codes_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/graphgate/graph-gateway/codes"
	"github.com/graphgate/graph-gateway/internal/errors"
)

func testRepos(t *testing.T) map[string]codes.Repo {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]codes.Repo{
		"inmemory": codes.NewInMemoryRepo(),
		"redis":    codes.NewRedisRepo(client),
	}
}

func testPending(sessionID string) *codes.PendingAuthorization {
	return &codes.PendingAuthorization{
		SessionID:           sessionID,
		ClientID:            "client_abc",
		RedirectURI:         "https://app.contoso.com/callback",
		State:               "downstream-state",
		CodeChallenge:       "challenge-value",
		CodeChallengeMethod: "S256",
		Scope:               "User.Read",
	}
}

func TestManager_CodeIssueAndRedeem(t *testing.T) {
	for name, repo := range testRepos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			manager := codes.NewManager(repo, 32, 10*time.Minute, 10*time.Minute)

			code, err := manager.IssueCode(ctx, testPending("sess-1"), "user-oid")
			require.NoError(t, err)
			require.NotEmpty(t, code)

			record, err := manager.RedeemCode(ctx, code)
			require.NoError(t, err)
			require.Equal(t, "client_abc", record.ClientID)
			require.Equal(t, "sess-1", record.SessionID)
			require.Equal(t, "user-oid", record.UserID)
			require.Equal(t, "challenge-value", record.CodeChallenge)
		})
	}
}

func TestManager_CodeIsSingleUse(t *testing.T) {
	for name, repo := range testRepos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			manager := codes.NewManager(repo, 32, 10*time.Minute, 10*time.Minute)

			code, err := manager.IssueCode(ctx, testPending("sess-1"), "user-oid")
			require.NoError(t, err)

			_, err = manager.RedeemCode(ctx, code)
			require.NoError(t, err)

			_, err = manager.RedeemCode(ctx, code)
			require.ErrorIs(t, err, errors.ErrInvalidAuthorizationCode)
		})
	}
}

func TestManager_ConcurrentRedeem_OneWinner(t *testing.T) {
	for name, repo := range testRepos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			manager := codes.NewManager(repo, 32, 10*time.Minute, 10*time.Minute)

			code, err := manager.IssueCode(ctx, testPending("sess-1"), "user-oid")
			require.NoError(t, err)

			const attempts = 16
			var wg sync.WaitGroup
			results := make(chan error, attempts)
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := manager.RedeemCode(ctx, code)
					results <- err
				}()
			}
			wg.Wait()
			close(results)

			var successes int
			for err := range results {
				if err == nil {
					successes++
				} else {
					require.ErrorIs(t, err, errors.ErrInvalidAuthorizationCode)
				}
			}
			require.Equal(t, 1, successes)
		})
	}
}

func TestManager_ExpiredCodeRejected(t *testing.T) {
	ctx := context.Background()
	manager := codes.NewManager(codes.NewInMemoryRepo(), 32, 10*time.Minute, 10*time.Minute)

	code, err := manager.IssueCode(ctx, testPending("sess-1"), "user-oid")
	require.NoError(t, err)

	codes.NowTimeFunc = func() time.Time { return time.Now().Add(11 * time.Minute) }
	defer func() { codes.NowTimeFunc = time.Now }()

	_, err = manager.RedeemCode(ctx, code)
	require.ErrorIs(t, err, errors.ErrInvalidAuthorizationCode)
}

func TestManager_PendingAuthorization(t *testing.T) {
	for name, repo := range testRepos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			manager := codes.NewManager(repo, 32, 10*time.Minute, 10*time.Minute)

			require.NoError(t, manager.SavePending(ctx, testPending("sess-1")))

			pending, err := manager.ConsumePending(ctx, "sess-1")
			require.NoError(t, err)
			require.Equal(t, "downstream-state", pending.State)

			_, err = manager.ConsumePending(ctx, "sess-1")
			require.ErrorIs(t, err, errors.ErrNotFound)
		})
	}
}

func TestManager_PendingOverwrittenBySameSession(t *testing.T) {
	ctx := context.Background()
	manager := codes.NewManager(codes.NewInMemoryRepo(), 32, 10*time.Minute, 10*time.Minute)

	first := testPending("sess-1")
	require.NoError(t, manager.SavePending(ctx, first))

	second := testPending("sess-1")
	second.State = "second-state"
	require.NoError(t, manager.SavePending(ctx, second))

	pending, err := manager.ConsumePending(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "second-state", pending.State)
}
