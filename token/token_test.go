package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/graphgate/graph-gateway/internal/errors"
	"github.com/graphgate/graph-gateway/token"
	"github.com/graphgate/graph-gateway/token/keys"
)

const testIssuer = "http://localhost:8080"

func newTestManager(t *testing.T) *token.Manager {
	t.Helper()
	pair, err := keys.Generate()
	require.NoError(t, err)
	return token.NewManager(pair, testIssuer, time.Hour)
}

func TestManager_CreateAndVerify(t *testing.T) {
	manager := newTestManager(t)

	signed, err := manager.CreateAccessToken("sess-1", "client_abc", "User.Read Mail.Read", "user-oid", "user@contoso.com")
	require.NoError(t, err)

	claims, err := manager.Verify(signed)
	require.NoError(t, err)
	require.Equal(t, "sess-1", claims.Subject)
	require.Equal(t, testIssuer, claims.Issuer)
	require.Contains(t, claims.Audience, "client_abc")
	require.Equal(t, "User.Read Mail.Read", claims.Scope)
	require.Equal(t, "user-oid", claims.UserID)
	require.Equal(t, "user@contoso.com", claims.UserEmail)
	require.NotEmpty(t, claims.ID)
}

func TestManager_KidHeader(t *testing.T) {
	pair, err := keys.Generate()
	require.NoError(t, err)
	manager := token.NewManager(pair, testIssuer, time.Hour)

	signed, err := manager.CreateAccessToken("sess-1", "client_abc", "", "", "")
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(signed, &token.Claims{})
	require.NoError(t, err)
	require.Equal(t, pair.KeyID, parsed.Header["kid"])
	require.Equal(t, "RS256", parsed.Header["alg"])
}

func TestManager_Verify_WrongKeyRejected(t *testing.T) {
	manager := newTestManager(t)
	other := newTestManager(t)

	signed, err := other.CreateAccessToken("sess-1", "client_abc", "", "", "")
	require.NoError(t, err)

	_, err = manager.Verify(signed)
	require.ErrorIs(t, err, errors.ErrInvalidToken)
}

func TestManager_Verify_ExpiredRejected(t *testing.T) {
	manager := newTestManager(t)

	signed, err := manager.CreateAccessToken("sess-1", "client_abc", "", "", "")
	require.NoError(t, err)

	token.NowTimeFunc = func() time.Time { return time.Now().Add(2 * time.Hour) }
	defer func() { token.NowTimeFunc = time.Now }()

	_, err = manager.Verify(signed)
	require.ErrorIs(t, err, errors.ErrInvalidToken)
}

func TestManager_Verify_GarbageRejected(t *testing.T) {
	manager := newTestManager(t)

	for _, input := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := manager.Verify(input)
		require.ErrorIs(t, err, errors.ErrInvalidToken)
	}
}

func TestManager_Verify_UnsignedAlgRejected(t *testing.T) {
	manager := newTestManager(t)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    testIssuer,
		Subject:   "sess-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = manager.Verify(signed)
	require.ErrorIs(t, err, errors.ErrInvalidToken)
}
