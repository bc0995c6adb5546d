package sessions

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/graphgate/graph-gateway/internal/errors"
	"github.com/graphgate/graph-gateway/secrets"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// RefreshBuffer is the window before upstream token expiry in which a
// refresh is triggered.
const RefreshBuffer = 5 * time.Minute

// Manager owns session lifecycle and field-level encryption. Sessions
// handed out by the Manager carry encrypted token and PKCE-verifier values;
// the Decrypted* accessors recover plaintext.
type Manager struct {
	repo Repo
	enc  *secrets.Encryptor
	ttl  time.Duration
}

// NewManager creates a session manager over the given repository.
func NewManager(repo Repo, enc *secrets.Encryptor, ttl time.Duration) *Manager {
	return &Manager{repo: repo, enc: enc, ttl: ttl}
}

// CreateSession creates and persists a new empty session with a fresh
// high-entropy id.
func (m *Manager) CreateSession(ctx context.Context) (*Session, error) {
	id, err := secrets.RandomString(32)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to generate session id")
	}

	now := NowTimeFunc()
	session := &Session{
		ID:             id,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := m.repo.Upsert(ctx, session, m.ttl); err != nil {
		return nil, errors.E(errors.KindStorage, "", err)
	}
	return session, nil
}

// GetSession returns the session for id, touching LastAccessedAt and
// persisting the touch. Sensitive fields remain encrypted.
func (m *Manager) GetSession(ctx context.Context, id string) (*Session, error) {
	session, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	session.LastAccessedAt = NowTimeFunc()
	if err := m.repo.Upsert(ctx, session, m.ttl); err != nil {
		log.Warn().Err(err).Str("session_id", id).Msg("failed to persist session touch")
	}
	return session, nil
}

// SaveSession encrypts the session's sensitive fields (upstream access and
// refresh tokens, PKCE verifier) and persists it. The input session is
// expected to carry plaintext values; all other fields are stored as-is.
func (m *Manager) SaveSession(ctx context.Context, session *Session) error {
	encrypted := session.Clone()
	if encrypted.Tokens != nil {
		var err error
		if encrypted.Tokens.AccessToken, err = m.encryptField(encrypted.Tokens.AccessToken); err != nil {
			return err
		}
		if encrypted.Tokens.RefreshToken, err = m.encryptField(encrypted.Tokens.RefreshToken); err != nil {
			return err
		}
	}
	var err error
	if encrypted.PKCEVerifier, err = m.encryptField(encrypted.PKCEVerifier); err != nil {
		return err
	}

	if err := m.repo.Upsert(ctx, encrypted, m.ttl); err != nil {
		return errors.E(errors.KindStorage, "", err)
	}
	return nil
}

// GetDecryptedTokens returns the plaintext token set of a stored session, or
// nil when the session has no tokens or decryption fails. A corrupted or
// rotated-key session is treated as unauthenticated, not as a crash.
func (m *Manager) GetDecryptedTokens(session *Session) *TokenSet {
	if session == nil || session.Tokens == nil {
		return nil
	}

	tokens := *session.Tokens
	accessToken, err := m.enc.Decrypt(tokens.AccessToken)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("failed to decrypt session access token")
		return nil
	}
	tokens.AccessToken = accessToken

	if tokens.RefreshToken != "" {
		refreshToken, err := m.enc.Decrypt(tokens.RefreshToken)
		if err != nil {
			log.Error().Err(err).Str("session_id", session.ID).Msg("failed to decrypt session refresh token")
			return nil
		}
		tokens.RefreshToken = refreshToken
	}
	return &tokens
}

// GetDecryptedPKCEVerifier returns the plaintext PKCE verifier stored on the
// session.
func (m *Manager) GetDecryptedPKCEVerifier(session *Session) (string, error) {
	if session == nil || session.PKCEVerifier == "" {
		return "", errors.ErrInvalidCodeChallenge
	}
	return m.enc.Decrypt(session.PKCEVerifier)
}

// SetAuthFlow stores the transient authorization-flow fields on the session,
// encrypting the verifier at rest.
func (m *Manager) SetAuthFlow(ctx context.Context, session *Session, verifier, state, nonce string) error {
	encryptedVerifier, err := m.enc.Encrypt(verifier)
	if err != nil {
		return errors.Wrapf(err, "failed to encrypt PKCE verifier")
	}
	session.PKCEVerifier = encryptedVerifier
	session.State = state
	session.Nonce = nonce

	if err := m.repo.Upsert(ctx, session, m.ttl); err != nil {
		return errors.E(errors.KindStorage, "", err)
	}
	return nil
}

// ClearAuthFlow removes the transient authorization-flow fields. Called
// after the upstream callback completes, success or failure.
func (m *Manager) ClearAuthFlow(ctx context.Context, session *Session) error {
	session.PKCEVerifier = ""
	session.State = ""
	session.Nonce = ""
	if err := m.repo.Upsert(ctx, session, m.ttl); err != nil {
		return errors.E(errors.KindStorage, "", err)
	}
	return nil
}

// UpdateTokens replaces the session's upstream tokens (plaintext in,
// encrypted at rest). Fails with ErrSessionNotFound if the session vanished
// between request start and token update.
func (m *Manager) UpdateTokens(ctx context.Context, id string, tokens *TokenSet) error {
	session, err := m.repo.Get(ctx, id)
	if err != nil {
		return errors.ErrSessionNotFound
	}

	stored := *tokens
	if stored.AccessToken, err = m.enc.Encrypt(stored.AccessToken); err != nil {
		return errors.Wrapf(err, "failed to encrypt access token")
	}
	if stored.RefreshToken != "" {
		if stored.RefreshToken, err = m.enc.Encrypt(stored.RefreshToken); err != nil {
			return errors.Wrapf(err, "failed to encrypt refresh token")
		}
	}
	session.Tokens = &stored
	session.LastAccessedAt = NowTimeFunc()

	if err := m.repo.Upsert(ctx, session, m.ttl); err != nil {
		return errors.E(errors.KindStorage, "", err)
	}
	return nil
}

// SetIdentity records the upstream user identity on the session.
func (m *Manager) SetIdentity(ctx context.Context, session *Session, userID, email, displayName string) error {
	session.UserID = userID
	session.UserEmail = email
	session.UserDisplayName = displayName
	if err := m.repo.Upsert(ctx, session, m.ttl); err != nil {
		return errors.E(errors.KindStorage, "", err)
	}
	return nil
}

// DeleteSession removes the session.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	return m.repo.Delete(ctx, id)
}

// TokensNeedRefresh reports whether the token set is within the refresh
// buffer of its expiry.
func (m *Manager) TokensNeedRefresh(tokens *TokenSet) bool {
	if tokens == nil {
		return false
	}
	return NowTimeFunc().After(tokens.ExpiresAt.Add(-RefreshBuffer))
}

func (m *Manager) encryptField(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	encrypted, err := m.enc.Encrypt(value)
	if err != nil {
		return "", errors.Wrapf(err, "failed to encrypt session field")
	}
	return encrypted, nil
}
