package refresh_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/graphgate/graph-gateway/internal/errors"
	"github.com/graphgate/graph-gateway/token/refresh"
)

func testRepos(t *testing.T) map[string]refresh.Repo {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]refresh.Repo{
		"inmemory": refresh.NewInMemoryRepo(),
		"redis":    refresh.NewRedisRepo(client),
	}
}

func TestManager_IssueAndRotate(t *testing.T) {
	for name, repo := range testRepos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			manager := refresh.NewManager(repo, 32, 14*24*time.Hour)

			first, err := manager.Issue(ctx, "client_abc", "sess-1", "user-oid", "User.Read")
			require.NoError(t, err)
			require.NotEmpty(t, first)

			second, record, err := manager.Rotate(ctx, first, "client_abc")
			require.NoError(t, err)
			require.NotEqual(t, first, second)
			require.Equal(t, "sess-1", record.SessionID)
			require.Equal(t, "user-oid", record.UserID)
			require.Equal(t, "User.Read", record.Scope)
		})
	}
}

func TestManager_RotatedTokenCannotBeReplayed(t *testing.T) {
	for name, repo := range testRepos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			manager := refresh.NewManager(repo, 32, time.Hour)

			first, err := manager.Issue(ctx, "client_abc", "sess-1", "", "")
			require.NoError(t, err)

			second, _, err := manager.Rotate(ctx, first, "client_abc")
			require.NoError(t, err)

			// The consumed predecessor is gone
			_, _, err = manager.Rotate(ctx, first, "client_abc")
			require.ErrorIs(t, err, errors.ErrInvalidRefreshToken)

			// The successor still works
			_, _, err = manager.Rotate(ctx, second, "client_abc")
			require.NoError(t, err)
		})
	}
}

func TestManager_Rotate_WrongClientRejected(t *testing.T) {
	ctx := context.Background()
	manager := refresh.NewManager(refresh.NewInMemoryRepo(), 32, time.Hour)

	value, err := manager.Issue(ctx, "client_abc", "sess-1", "", "")
	require.NoError(t, err)

	_, _, err = manager.Rotate(ctx, value, "client_other")
	require.ErrorIs(t, err, errors.ErrInvalidRefreshToken)
}

func TestManager_Rotate_ExpiredRejected(t *testing.T) {
	ctx := context.Background()
	manager := refresh.NewManager(refresh.NewInMemoryRepo(), 32, time.Hour)

	value, err := manager.Issue(ctx, "client_abc", "sess-1", "", "")
	require.NoError(t, err)

	refresh.NowTimeFunc = func() time.Time { return time.Now().Add(2 * time.Hour) }
	defer func() { refresh.NowTimeFunc = time.Now }()

	_, _, err = manager.Rotate(ctx, value, "client_abc")
	require.Error(t, err)
}

func TestManager_Revoke(t *testing.T) {
	for name, repo := range testRepos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			manager := refresh.NewManager(repo, 32, time.Hour)

			value, err := manager.Issue(ctx, "client_abc", "sess-1", "", "")
			require.NoError(t, err)

			require.NoError(t, manager.Revoke(ctx, value))
			_, _, err = manager.Rotate(ctx, value, "client_abc")
			require.ErrorIs(t, err, errors.ErrInvalidRefreshToken)

			// Revoking an unknown token is fine
			require.NoError(t, manager.Revoke(ctx, "never-issued"))
			require.NoError(t, manager.Revoke(ctx, ""))
		})
	}
}

func TestManager_RevokeSession_Cascades(t *testing.T) {
	for name, repo := range testRepos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			manager := refresh.NewManager(repo, 32, time.Hour)

			first, err := manager.Issue(ctx, "client_abc", "sess-1", "", "")
			require.NoError(t, err)
			second, err := manager.Issue(ctx, "client_def", "sess-1", "", "")
			require.NoError(t, err)
			unrelated, err := manager.Issue(ctx, "client_abc", "sess-2", "", "")
			require.NoError(t, err)

			require.NoError(t, manager.RevokeSession(ctx, "sess-1"))

			_, _, err = manager.Rotate(ctx, first, "client_abc")
			require.ErrorIs(t, err, errors.ErrInvalidRefreshToken)
			_, _, err = manager.Rotate(ctx, second, "client_def")
			require.ErrorIs(t, err, errors.ErrInvalidRefreshToken)

			// Other sessions keep their tokens
			_, _, err = manager.Rotate(ctx, unrelated, "client_abc")
			require.NoError(t, err)
		})
	}
}
