package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// MetadataHandler serves the RFC 8414 authorization server metadata document.
func (s *Server) MetadataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseURL := s.config.GetBaseURL()

		resp := map[string]any{
			"issuer":                 baseURL,
			"authorization_endpoint": baseURL + RouteAuthorize,
			"token_endpoint":         baseURL + RouteToken,
			"revocation_endpoint":    baseURL + RouteRevoke,
			"jwks_uri":               baseURL + RouteWellKnownJWKS,

			"response_types_supported": []string{"code"},
			"response_modes_supported": []string{"query"},
			"grant_types_supported":    []string{"authorization_code", "refresh_token"},

			// OAuth 2.1: S256 only, never plain
			"code_challenge_methods_supported": []string{"S256"},

			"token_endpoint_auth_methods_supported": []string{
				"client_secret_basic",
				"client_secret_post",
				"none",
			},

			"scopes_supported": s.config.GetUpstreamScopes(),
		}
		if s.config.IsRegistrationEnabled() {
			resp["registration_endpoint"] = baseURL + RouteRegister
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// JWKSHandler serves the public signing key set.
func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.svc.Tokens.JWKS())
	}
}

// HealthzHandler reports process and store-backend health.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.svc.Ping != nil {
			if err := s.svc.Ping(r.Context()); err != nil {
				log.Error().Err(err).Msg("store backend unreachable")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response body")
	}
}

// writeOAuthError writes the standard RFC 6749 error body.
func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
