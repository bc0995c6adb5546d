// Package codes manages downstream authorization codes and the pending
// authorization state bridging the downstream /authorize request to the
// upstream callback.
package codes

import (
	"context"
	"time"

	"github.com/graphgate/graph-gateway/internal/errors"
	"github.com/graphgate/graph-gateway/secrets"
)

// PendingAuthorization captures the downstream authorization request while
// the user is away authenticating upstream. One pending authorization per
// gateway session; a new /authorize on the same session overwrites it.
type PendingAuthorization struct {
	SessionID           string    `json:"sessionId"`
	ClientID            string    `json:"clientId"`
	RedirectURI         string    `json:"redirectUri"`
	State               string    `json:"state"`
	CodeChallenge       string    `json:"codeChallenge"`
	CodeChallengeMethod string    `json:"codeChallengeMethod"`
	Scope               string    `json:"scope,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
}

// AuthorizationCode is the stored record behind a downstream code. The code
// value itself is never persisted; records are keyed by its SHA-256 hash.
type AuthorizationCode struct {
	ClientID            string    `json:"clientId"`
	RedirectURI         string    `json:"redirectUri"`
	CodeChallenge       string    `json:"codeChallenge"`
	CodeChallengeMethod string    `json:"codeChallengeMethod"`
	SessionID           string    `json:"sessionId"`
	UserID              string    `json:"userId,omitempty"`
	Scope               string    `json:"scope,omitempty"`
	ExpiresAt           time.Time `json:"expiresAt"`
	CreatedAt           time.Time `json:"createdAt"`
}

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Manager issues and redeems authorization codes and tracks pending
// authorizations over a Repo.
type Manager struct {
	repo       Repo
	codeLength int
	codeTTL    time.Duration
	pendingTTL time.Duration
}

// NewManager creates a code manager. codeLength is the number of random
// bytes backing each code value.
func NewManager(repo Repo, codeLength int, codeTTL, pendingTTL time.Duration) *Manager {
	return &Manager{repo: repo, codeLength: codeLength, codeTTL: codeTTL, pendingTTL: pendingTTL}
}

// SavePending stores the pending authorization for its session, replacing
// any earlier one.
func (m *Manager) SavePending(ctx context.Context, pending *PendingAuthorization) error {
	if pending == nil || pending.SessionID == "" {
		return errors.ErrInvalidRequest
	}
	pending.CreatedAt = NowTimeFunc()
	if err := m.repo.SavePending(ctx, pending, m.pendingTTL); err != nil {
		return errors.E(errors.KindStorage, "", err)
	}
	return nil
}

// ConsumePending atomically removes and returns the pending authorization
// for the session. A second call for the same session misses.
func (m *Manager) ConsumePending(ctx context.Context, sessionID string) (*PendingAuthorization, error) {
	if sessionID == "" {
		return nil, errors.ErrInvalidRequest
	}
	return m.repo.ConsumePending(ctx, sessionID)
}

// IssueCode mints a fresh single-use authorization code bound to the pending
// authorization and session, stores its record keyed by hash, and returns
// the plaintext code for the redirect.
func (m *Manager) IssueCode(ctx context.Context, pending *PendingAuthorization, userID string) (string, error) {
	code, err := secrets.RandomString(m.codeLength)
	if err != nil {
		return "", errors.Wrapf(err, "failed to generate authorization code")
	}

	now := NowTimeFunc()
	record := &AuthorizationCode{
		ClientID:            pending.ClientID,
		RedirectURI:         pending.RedirectURI,
		CodeChallenge:       pending.CodeChallenge,
		CodeChallengeMethod: pending.CodeChallengeMethod,
		SessionID:           pending.SessionID,
		UserID:              userID,
		Scope:               pending.Scope,
		ExpiresAt:           now.Add(m.codeTTL),
		CreatedAt:           now,
	}
	if err := m.repo.SaveCode(ctx, secrets.HashToken(code), record, m.codeTTL); err != nil {
		return "", errors.E(errors.KindStorage, "", err)
	}
	return code, nil
}

// RedeemCode atomically consumes the code and returns its record. The code
// is gone after the first call regardless of whether the caller's remaining
// checks pass, so a replayed code can never succeed.
func (m *Manager) RedeemCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	if code == "" {
		return nil, errors.ErrInvalidAuthorizationCode
	}
	record, err := m.repo.ConsumeCode(ctx, secrets.HashToken(code))
	if err != nil {
		return nil, err
	}
	if NowTimeFunc().After(record.ExpiresAt) {
		return nil, errors.ErrInvalidAuthorizationCode
	}
	return record, nil
}
