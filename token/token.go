// Package token issues and verifies the gateway's downstream access tokens.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	gwerrors "github.com/graphgate/graph-gateway/internal/errors"
	"github.com/graphgate/graph-gateway/token/keys"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Claims are the registered and gateway-specific claims carried by an access
// token. The subject is the gateway session id, so verifying a token yields
// the session holding the upstream credentials.
type Claims struct {
	Scope     string `json:"scope,omitempty"`
	UserID    string `json:"userId,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies RS256 access tokens with the gateway key pair.
type Manager struct {
	keyPair *keys.KeyPair
	issuer  string
	expiry  time.Duration
}

// NewManager creates a token manager. issuer is the gateway base URL.
func NewManager(keyPair *keys.KeyPair, issuer string, expiry time.Duration) *Manager {
	return &Manager{keyPair: keyPair, issuer: issuer, expiry: expiry}
}

// CreateAccessToken mints a signed access token binding the session to the
// downstream client.
func (m *Manager) CreateAccessToken(sessionID, clientID, scope, userID, userEmail string) (string, error) {
	now := NowTimeFunc()
	claims := Claims{
		Scope:     scope,
		UserID:    userID,
		UserEmail: userEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   sessionID,
			Audience:  jwt.ClaimStrings{clientID},
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = m.keyPair.KeyID

	signed, err := token.SignedString(m.keyPair.Private)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign access token")
	}
	return signed, nil
}

// Verify parses and validates an access token, returning its claims. Any
// failure collapses to ErrInvalidToken; callers treat the bearer as
// unauthenticated and never learn why.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.keyPair.Public, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return NowTimeFunc() }),
	)
	if err != nil || !parsed.Valid {
		log.Debug().Err(err).Msg("access token verification failed")
		return nil, gwerrors.ErrInvalidToken
	}
	return claims, nil
}

// JWKS returns the public key set clients use to verify issued tokens.
func (m *Manager) JWKS() keys.JWKS {
	return m.keyPair.JWKS()
}

// Expiry is the configured access token lifetime.
func (m *Manager) Expiry() time.Duration {
	return m.expiry
}
