// Package refresh manages the gateway's opaque downstream refresh tokens.
// Tokens rotate on every use: redeeming a token atomically consumes it, so a
// replayed value misses by construction.
package refresh

import (
	"context"
	"time"

	"github.com/graphgate/graph-gateway/internal/errors"
	"github.com/graphgate/graph-gateway/secrets"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// StoredRefreshToken is the record behind an opaque refresh token, keyed in
// storage by the SHA-256 hash of the token value.
type StoredRefreshToken struct {
	ClientID    string    `json:"clientId"`
	SessionID   string    `json:"sessionId"`
	UserID      string    `json:"userId,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
	RotatedFrom string    `json:"rotatedFrom,omitempty"` // hash of the predecessor token
	CreatedAt   time.Time `json:"createdAt"`
}

// Manager issues, rotates, and revokes refresh tokens over a Repo.
type Manager struct {
	repo        Repo
	tokenLength int
	expiry      time.Duration
}

// NewManager creates a refresh token manager. tokenLength is the number of
// random bytes backing each token value.
func NewManager(repo Repo, tokenLength int, expiry time.Duration) *Manager {
	return &Manager{repo: repo, tokenLength: tokenLength, expiry: expiry}
}

// Issue mints a fresh refresh token for the session and client and returns
// the plaintext value.
func (m *Manager) Issue(ctx context.Context, clientID, sessionID, userID, scope string) (string, error) {
	return m.issue(ctx, clientID, sessionID, userID, scope, "")
}

// Rotate consumes the presented token and issues its successor. The old
// token is gone after this call whatever else happens, so presenting it
// again can only fail. A token presented by the wrong client is rejected
// without minting a successor.
func (m *Manager) Rotate(ctx context.Context, presented, clientID string) (string, *StoredRefreshToken, error) {
	if presented == "" {
		return "", nil, errors.ErrInvalidRefreshToken
	}
	hash := secrets.HashToken(presented)
	record, err := m.repo.Consume(ctx, hash)
	if err != nil {
		return "", nil, errors.ErrInvalidRefreshToken
	}
	if record.ClientID != clientID {
		return "", nil, errors.ErrInvalidRefreshToken
	}
	if NowTimeFunc().After(record.ExpiresAt) {
		return "", nil, errors.ErrRefreshTokenExpired
	}

	next, err := m.issue(ctx, record.ClientID, record.SessionID, record.UserID, record.Scope, hash)
	if err != nil {
		return "", nil, err
	}
	return next, record, nil
}

// Revoke consumes the presented token if it exists. Unknown tokens are not
// an error.
func (m *Manager) Revoke(ctx context.Context, presented string) error {
	if presented == "" {
		return nil
	}
	_, err := m.repo.Consume(ctx, secrets.HashToken(presented))
	if err != nil && !errors.Is(err, errors.ErrInvalidRefreshToken) {
		return err
	}
	return nil
}

// RevokeSession removes every live refresh token minted for the session.
func (m *Manager) RevokeSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return m.repo.RevokeSession(ctx, sessionID)
}

func (m *Manager) issue(ctx context.Context, clientID, sessionID, userID, scope, rotatedFrom string) (string, error) {
	value, err := secrets.RandomString(m.tokenLength)
	if err != nil {
		return "", errors.Wrapf(err, "failed to generate refresh token")
	}

	now := NowTimeFunc()
	record := &StoredRefreshToken{
		ClientID:    clientID,
		SessionID:   sessionID,
		UserID:      userID,
		Scope:       scope,
		ExpiresAt:   now.Add(m.expiry),
		RotatedFrom: rotatedFrom,
		CreatedAt:   now,
	}
	if err := m.repo.Save(ctx, secrets.HashToken(value), record, m.expiry); err != nil {
		return "", errors.E(errors.KindStorage, "", err)
	}
	return value, nil
}
