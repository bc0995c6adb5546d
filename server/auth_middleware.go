package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/graphgate/graph-gateway/internal/errors"
	"github.com/graphgate/graph-gateway/sessions"
	"github.com/graphgate/graph-gateway/token"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySession stores the resolved gateway session
	ContextKeySession ContextKey = "session"
	// ContextKeyClaims stores the verified access token claims
	ContextKeyClaims ContextKey = "claims"
	// ContextKeyUpstreamTokens stores the decrypted upstream token set
	ContextKeyUpstreamTokens ContextKey = "upstream_tokens"
)

// BearerAuthMiddleware gates requests on a gateway-issued access token. A
// request with no Authorization header passes through unauthenticated so
// anonymous clients can reach the discovery flow; any presented credential
// must be fully valid: parseable bearer scheme, verified JWT, live session,
// and upstream tokens still on the session. Every failure is the same 401
// pointing at the metadata document.
func (s *Server) BearerAuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next(w, r)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			s.unauthorized(w)
			return
		}

		claims, err := s.svc.Tokens.Verify(parts[1])
		if err != nil {
			s.unauthorized(w)
			return
		}

		session, err := s.svc.Sessions.GetSession(r.Context(), claims.Subject)
		if err != nil {
			log.Debug().Str("session_id", claims.Subject).Msg("bearer token references a dead session")
			s.unauthorized(w)
			return
		}

		upstreamTokens := s.svc.Sessions.GetDecryptedTokens(session)
		if upstreamTokens == nil {
			s.unauthorized(w)
			return
		}

		// Transparent upstream renewal: requests arriving inside the
		// refresh window carry on with fresh tokens. Only a dead refresh
		// credential turns the bearer away.
		if s.svc.Sessions.TokensNeedRefresh(upstreamTokens) {
			refreshed, err := s.svc.Upstream.Refresh(r.Context(), session)
			switch {
			case err == nil:
				upstreamTokens = refreshed
			case errors.Is(err, errors.ErrReauthenticationRequired):
				log.Warn().Str("session_id", session.ID).Msg("upstream re-authentication required")
				s.unauthorized(w)
				return
			default:
				log.Warn().Err(err).Str("session_id", session.ID).Msg("upstream token refresh failed, serving with current tokens")
			}
		}

		ctx := context.WithValue(r.Context(), ContextKeySession, session)
		ctx = context.WithValue(ctx, ContextKeyClaims, claims)
		ctx = context.WithValue(ctx, ContextKeyUpstreamTokens, upstreamTokens)
		next(w, r.WithContext(ctx))
	}
}

// unauthorized writes the single 401 shape the gate produces. The
// resource_metadata parameter lets clients discover the authorization
// server without any prior configuration.
func (s *Server) unauthorized(w http.ResponseWriter) {
	metadataURL := s.config.GetBaseURL() + RouteWellKnownMetadata
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer resource_metadata=%q`, metadataURL))
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// SessionFromContext returns the session resolved by the bearer gate.
func SessionFromContext(ctx context.Context) (*sessions.Session, bool) {
	session, ok := ctx.Value(ContextKeySession).(*sessions.Session)
	return session, ok
}

// ClaimsFromContext returns the access token claims resolved by the bearer
// gate.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(*token.Claims)
	return claims, ok
}

// UpstreamTokensFromContext returns the decrypted upstream token set
// resolved by the bearer gate.
func UpstreamTokensFromContext(ctx context.Context) (*sessions.TokenSet, bool) {
	tokens, ok := ctx.Value(ContextKeyUpstreamTokens).(*sessions.TokenSet)
	return tokens, ok
}
