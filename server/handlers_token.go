package server

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/graphgate/graph-gateway/clients"
	"github.com/graphgate/graph-gateway/secrets"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// TokenHandler serves both downstream grants: authorization_code and
// refresh_token.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// RFC 6749 §5.1: token responses must never be cached
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")

		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "request body is not a valid form")
			return
		}

		client, ok := s.authenticateClient(w, r)
		if !ok {
			return
		}

		switch r.PostForm.Get("grant_type") {
		case clients.GrantTypeAuthorizationCode:
			s.handleAuthorizationCodeGrant(w, r, client)
		case clients.GrantTypeRefreshToken:
			s.handleRefreshTokenGrant(w, r, client)
		default:
			writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
		}
	}
}

// authenticateClient resolves and authenticates the requesting client from
// Basic credentials or body parameters. Public clients pass with client_id
// alone; confidential clients must present their secret, compared via
// bcrypt.
func (s *Server) authenticateClient(w http.ResponseWriter, r *http.Request) (*clients.Client, bool) {
	clientID, clientSecret, hasBasic := r.BasicAuth()
	if !hasBasic {
		clientID = r.PostForm.Get("client_id")
		clientSecret = r.PostForm.Get("client_secret")
	}
	if clientID == "" {
		s.invalidClient(w, "client authentication required")
		return nil, false
	}

	client, err := s.svc.Clients.Get(r.Context(), clientID)
	if err != nil {
		s.invalidClient(w, "unknown client")
		return nil, false
	}
	if !client.IsPublic() {
		if err := client.VerifySecret(clientSecret); err != nil {
			s.invalidClient(w, "client authentication failed")
			return nil, false
		}
	}
	return client, true
}

// invalidClient writes the RFC 6749 §5.2 client-authentication failure: a
// 401 must name the supported challenge scheme.
func (s *Server) invalidClient(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="token", charset="UTF-8"`)
	writeOAuthError(w, http.StatusUnauthorized, "invalid_client", description)
}

func (s *Server) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request, client *clients.Client) {
	if !client.HasGrantType(clients.GrantTypeAuthorizationCode) {
		writeOAuthError(w, http.StatusBadRequest, "unauthorized_client", "client is not registered for this grant")
		return
	}

	code := r.PostForm.Get("code")
	verifier := r.PostForm.Get("code_verifier")
	redirectURI := r.PostForm.Get("redirect_uri")

	// The code is consumed before any further checks; a failed request
	// still burns it, so replay cannot succeed.
	record, err := s.svc.Codes.RedeemCode(r.Context(), code)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "authorization code is invalid or expired")
		return
	}

	if record.ClientID != client.ClientID {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "authorization code was issued to another client")
		return
	}
	if record.RedirectURI != redirectURI {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri does not match the authorization request")
		return
	}
	if !secrets.VerifyCodeChallenge(verifier, record.CodeChallenge, record.CodeChallengeMethod) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
		return
	}

	session, err := s.svc.Sessions.GetSession(r.Context(), record.SessionID)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "session backing this code no longer exists")
		return
	}

	s.issueTokens(w, r, client.ClientID, session.ID, session.UserID, session.UserEmail, record.Scope)
}

func (s *Server) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request, client *clients.Client) {
	if !client.HasGrantType(clients.GrantTypeRefreshToken) {
		writeOAuthError(w, http.StatusBadRequest, "unauthorized_client", "client is not registered for this grant")
		return
	}

	presented := r.PostForm.Get("refresh_token")
	next, record, err := s.svc.Refresh.Rotate(r.Context(), presented, client.ClientID)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token is invalid or expired")
		return
	}

	// Requested scope wins when it stays inside the original grant;
	// absent, the original scope carries over.
	scope := record.Scope
	if requested := r.PostForm.Get("scope"); requested != "" {
		if !scopeWithin(requested, record.Scope) {
			if revokeErr := s.svc.Refresh.Revoke(r.Context(), next); revokeErr != nil {
				log.Warn().Err(revokeErr).Msg("failed to revoke orphaned refresh token")
			}
			writeOAuthError(w, http.StatusBadRequest, "invalid_scope", "requested scope exceeds the original grant")
			return
		}
		scope = requested
	}

	session, err := s.svc.Sessions.GetSession(r.Context(), record.SessionID)
	if err != nil {
		// The session is gone; the freshly rotated token is useless and
		// must not leak.
		if revokeErr := s.svc.Refresh.Revoke(r.Context(), next); revokeErr != nil {
			log.Warn().Err(revokeErr).Msg("failed to revoke orphaned refresh token")
		}
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "session backing this token no longer exists")
		return
	}

	s.writeTokenResponse(w, r, client.ClientID, session.ID, session.UserID, session.UserEmail, scope, next)
}

// scopeWithin reports whether every requested scope token is part of the
// granted scope.
func scopeWithin(requested, granted string) bool {
	allowed := make(map[string]struct{})
	for _, s := range strings.Fields(granted) {
		allowed[s] = struct{}{}
	}
	for _, s := range strings.Fields(requested) {
		if _, ok := allowed[s]; !ok {
			return false
		}
	}
	return true
}

func (s *Server) issueTokens(w http.ResponseWriter, r *http.Request, clientID, sessionID, userID, userEmail, scope string) {
	refreshToken, err := s.svc.Refresh.Issue(r.Context(), clientID, sessionID, userID, scope)
	if err != nil {
		log.Error().Err(err).Msg("failed to issue refresh token")
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to issue tokens")
		return
	}
	s.writeTokenResponse(w, r, clientID, sessionID, userID, userEmail, scope, refreshToken)
}

func (s *Server) writeTokenResponse(w http.ResponseWriter, r *http.Request, clientID, sessionID, userID, userEmail, scope, refreshToken string) {
	accessToken, err := s.svc.Tokens.CreateAccessToken(sessionID, clientID, scope, userID, userEmail)
	if err != nil {
		log.Error().Err(err).Msg("failed to sign access token")
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to issue tokens")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.svc.Tokens.Expiry().Seconds()),
		RefreshToken: refreshToken,
		Scope:        scope,
	})
}

// RevokeHandler implements RFC 7009. Revocation always answers 200 so
// callers cannot enumerate which tokens exist.
func (s *Server) RevokeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := s.svc.Refresh.Revoke(r.Context(), r.PostForm.Get("token")); err != nil {
			log.Warn().Err(err).Msg("refresh token revocation failed")
		}
		w.WriteHeader(http.StatusOK)
	}
}

// LogoutHandler terminates the bearer's session: the session record and
// every refresh token minted for it are removed. Runs behind the bearer
// gate.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			s.unauthorized(w)
			return
		}

		if err := s.svc.Refresh.RevokeSession(r.Context(), session.ID); err != nil {
			log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to revoke session refresh tokens")
		}
		if err := s.svc.Sessions.DeleteSession(r.Context(), session.ID); err != nil {
			log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to delete session")
		}

		log.Info().Str("session_id", session.ID).Msg("session terminated")
		w.WriteHeader(http.StatusNoContent)
	}
}
