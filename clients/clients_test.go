package clients_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/graphgate/graph-gateway/clients"
	"github.com/graphgate/graph-gateway/internal/errors"
)

func TestRegister_PublicClientDefaults(t *testing.T) {
	client, secret, err := clients.Register(clients.Registration{
		ClientName:   "Graph Desktop",
		RedirectURIs: []string{"http://localhost:8765/callback"},
	}, nil)
	require.NoError(t, err)

	require.NotEmpty(t, client.ClientID)
	require.Empty(t, secret)
	require.True(t, client.IsPublic())
	require.Equal(t, []string{clients.GrantTypeAuthorizationCode, clients.GrantTypeRefreshToken}, client.GrantTypes)
	require.Equal(t, []string{clients.ResponseTypeCode}, client.ResponseTypes)
	require.False(t, client.CreatedAt.IsZero())
}

func TestRegister_ConfidentialClientSecret(t *testing.T) {
	client, secret, err := clients.Register(clients.Registration{
		ClientName:              "Graph Backend",
		RedirectURIs:            []string{"https://app.contoso.com/callback"},
		TokenEndpointAuthMethod: clients.AuthMethodClientSecretPost,
	}, nil)
	require.NoError(t, err)

	require.NotEmpty(t, secret)
	require.NotEmpty(t, client.ClientSecretHash)
	require.NotEqual(t, secret, client.ClientSecretHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte(secret)))

	require.NoError(t, client.VerifySecret(secret))
	require.ErrorIs(t, client.VerifySecret("wrong-secret"), errors.ErrInvalidClientSecret)
	require.ErrorIs(t, client.VerifySecret(""), errors.ErrInvalidClientSecret)
}

func TestRegister_RedirectURIValidation(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		ok   bool
	}{
		{"https allowed", "https://app.contoso.com/callback", true},
		{"localhost http allowed", "http://localhost:3000/cb", true},
		{"loopback http allowed", "http://127.0.0.1:3000/cb", true},
		{"plain http rejected", "http://app.contoso.com/callback", false},
		{"fragment rejected", "https://app.contoso.com/callback#frag", false},
		{"relative rejected", "/callback", false},
		{"garbage rejected", "::not a uri::", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := clients.Register(clients.Registration{
				ClientName:   "Test",
				RedirectURIs: []string{tc.uri},
			}, nil)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, errors.ErrInvalidRedirectURI)
			}
		})
	}
}

func TestRegister_AllowPatterns(t *testing.T) {
	patterns := []string{"https://*.contoso.com/callback", "http://localhost:*/**"}

	_, _, err := clients.Register(clients.Registration{
		ClientName:   "Allowed",
		RedirectURIs: []string{"https://app.contoso.com/callback"},
	}, patterns)
	require.NoError(t, err)

	_, _, err = clients.Register(clients.Registration{
		ClientName:   "Allowed local",
		RedirectURIs: []string{"http://localhost:9999/deep/path/cb"},
	}, patterns)
	require.NoError(t, err)

	_, _, err = clients.Register(clients.Registration{
		ClientName:   "Denied",
		RedirectURIs: []string{"https://evil.example.com/callback"},
	}, patterns)
	require.ErrorIs(t, err, errors.ErrRegistrationDenied)
}

func TestRegister_MissingFields(t *testing.T) {
	_, _, err := clients.Register(clients.Registration{RedirectURIs: []string{"https://a.example.com/cb"}}, nil)
	require.ErrorIs(t, err, errors.ErrInvalidRequest)

	_, _, err = clients.Register(clients.Registration{ClientName: "No URIs"}, nil)
	require.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestClient_AllowsRedirectURI_ExactMatchOnly(t *testing.T) {
	client := &clients.Client{RedirectURIs: []string{"https://app.contoso.com/callback"}}

	require.True(t, client.AllowsRedirectURI("https://app.contoso.com/callback"))
	require.False(t, client.AllowsRedirectURI("https://app.contoso.com/callback/"))
	require.False(t, client.AllowsRedirectURI("https://app.contoso.com/callback?x=1"))
	require.False(t, client.AllowsRedirectURI("https://app.contoso.com/other"))
}

func TestRepos_UpsertGetDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	repos := map[string]clients.Repo{
		"inmemory": clients.NewInMemoryRepo(),
		"redis":    clients.NewRedisRepo(redisClient),
	}

	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			registered, _, err := clients.Register(clients.Registration{
				ClientName:   "Repo Test",
				RedirectURIs: []string{"https://app.contoso.com/callback"},
			}, nil)
			require.NoError(t, err)

			require.NoError(t, repo.Upsert(ctx, registered))

			fetched, err := repo.Get(ctx, registered.ClientID)
			require.NoError(t, err)
			require.Equal(t, registered.ClientID, fetched.ClientID)
			require.Equal(t, registered.RedirectURIs, fetched.RedirectURIs)

			require.NoError(t, repo.Delete(ctx, registered.ClientID))
			_, err = repo.Get(ctx, registered.ClientID)
			require.ErrorIs(t, err, errors.ErrInvalidClient)
		})
	}
}
