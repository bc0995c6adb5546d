// Package sessions owns the lifecycle of the server-side Session: the root
// entity that holds a user's upstream tokens on behalf of downstream
// clients.
package sessions

import "time"

// TokenSet holds the upstream provider tokens granted to a session. When a
// session is persisted the access and refresh token values are encrypted;
// in-memory copies handed to callers by the Manager are plaintext only when
// explicitly decrypted.
type TokenSet struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Scope        string    `json:"scope,omitempty"`
}

// Session represents one authenticated (or in-progress) end-user context.
type Session struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId,omitempty"`
	UserEmail       string    `json:"userEmail,omitempty"`
	UserDisplayName string    `json:"userDisplayName,omitempty"`
	Tokens          *TokenSet `json:"tokens,omitempty"`

	// Transient authorization-flow fields; present only while an upstream
	// round-trip is in flight. The verifier is encrypted at rest.
	PKCEVerifier string `json:"pkceVerifier,omitempty"`
	State        string `json:"state,omitempty"`
	Nonce        string `json:"nonce,omitempty"`

	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
}

// Clone returns a deep copy so repositories never hand out shared state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	copied := *s
	if s.Tokens != nil {
		tokens := *s.Tokens
		copied.Tokens = &tokens
	}
	return &copied
}
