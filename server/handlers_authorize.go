package server

import (
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/graphgate/graph-gateway/codes"
	"github.com/graphgate/graph-gateway/secrets"
	"github.com/graphgate/graph-gateway/sessions"
)

// AuthorizeHandler starts the downstream authorization flow. Requests are
// validated in two phases: until the client and redirect URI check out,
// errors come back as 400s so nothing is ever redirected to an unverified
// address; after that point errors are delivered to the client's redirect
// URI per RFC 6749.
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		clientID := query.Get("client_id")
		redirectURI := query.Get("redirect_uri")

		client, err := s.svc.Clients.Get(r.Context(), clientID)
		if err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "unknown client_id")
			return
		}
		if !client.AllowsRedirectURI(redirectURI) {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not registered for this client")
			return
		}

		// Redirect URI is verified; remaining errors go back to the client.
		state := query.Get("state")
		if query.Get("response_type") != "code" {
			s.redirectError(w, r, redirectURI, state, "unsupported_response_type", "only response_type=code is supported")
			return
		}
		if state == "" {
			s.redirectError(w, r, redirectURI, "", "invalid_request", "state is required")
			return
		}
		challenge := query.Get("code_challenge")
		method := query.Get("code_challenge_method")
		if challenge == "" {
			s.redirectError(w, r, redirectURI, state, "invalid_request", "code_challenge is required")
			return
		}
		if method != secrets.CodeChallengeMethodS256 {
			s.redirectError(w, r, redirectURI, state, "invalid_request", "code_challenge_method must be S256")
			return
		}

		session := s.sessionFromCookie(r)
		if session == nil {
			session, err = s.svc.Sessions.CreateSession(r.Context())
			if err != nil {
				log.Error().Err(err).Msg("failed to create session")
				s.redirectError(w, r, redirectURI, state, "server_error", "failed to create session")
				return
			}
		}

		pending := &codes.PendingAuthorization{
			SessionID:           session.ID,
			ClientID:            clientID,
			RedirectURI:         redirectURI,
			State:               state,
			CodeChallenge:       challenge,
			CodeChallengeMethod: method,
			Scope:               query.Get("scope"),
		}
		if err := s.svc.Codes.SavePending(r.Context(), pending); err != nil {
			log.Error().Err(err).Str("session_id", session.ID).Msg("failed to save pending authorization")
			s.redirectError(w, r, redirectURI, state, "server_error", "failed to persist authorization request")
			return
		}

		upstreamURL, err := s.svc.Upstream.AuthorizationURL(r.Context(), session)
		if err != nil {
			log.Error().Err(err).Str("session_id", session.ID).Msg("failed to build upstream authorization URL")
			s.redirectError(w, r, redirectURI, state, "server_error", "failed to start upstream authorization")
			return
		}

		s.setSessionCookie(w, r, session.ID)
		http.Redirect(w, r, upstreamURL, http.StatusFound)
	}
}

// CallbackHandler completes the upstream leg: it resolves the session from
// the cookie, consumes the pending authorization, exchanges the upstream
// code, and redirects back to the downstream client with a gateway code.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := s.sessionFromCookie(r)
		if session == nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "no authorization in progress for this browser")
			return
		}

		pending, err := s.svc.Codes.ConsumePending(r.Context(), session.ID)
		if err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "no pending authorization for this session")
			return
		}

		query := r.URL.Query()
		if upstreamErr := query.Get("error"); upstreamErr != "" {
			log.Warn().Str("error", upstreamErr).Str("session_id", session.ID).Msg("upstream authorization denied")
			// The callback is over; the transient flow fields must not
			// outlive it even though the exchange never ran.
			if err := s.svc.Sessions.ClearAuthFlow(r.Context(), session); err != nil {
				log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to clear auth flow state")
			}
			s.redirectError(w, r, pending.RedirectURI, pending.State, "access_denied", "upstream authorization was denied")
			return
		}

		identity, err := s.svc.Upstream.Exchange(r.Context(), session, query.Get("code"), query.Get("state"))
		if err != nil {
			log.Error().Err(err).Str("session_id", session.ID).Msg("upstream exchange failed")
			s.redirectError(w, r, pending.RedirectURI, pending.State, "server_error", "upstream token exchange failed")
			return
		}

		code, err := s.svc.Codes.IssueCode(r.Context(), pending, identity.UserID)
		if err != nil {
			log.Error().Err(err).Str("session_id", session.ID).Msg("failed to issue authorization code")
			s.redirectError(w, r, pending.RedirectURI, pending.State, "server_error", "failed to issue authorization code")
			return
		}

		target, _ := url.Parse(pending.RedirectURI)
		q := target.Query()
		q.Set("code", code)
		q.Set("state", pending.State)
		target.RawQuery = q.Encode()
		http.Redirect(w, r, target.String(), http.StatusFound)
	}
}

func (s *Server) sessionFromCookie(r *http.Request) *sessions.Session {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	session, err := s.svc.Sessions.GetSession(r.Context(), cookie.Value)
	if err != nil {
		return nil
	}
	return session
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectError delivers an OAuth error to an already-validated redirect URI.
func (s *Server) redirectError(w http.ResponseWriter, r *http.Request, redirectURI, state, code, description string) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, code, description)
		return
	}
	q := target.Query()
	q.Set("error", code)
	q.Set("error_description", description)
	if state != "" {
		q.Set("state", state)
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}
