package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/graphgate/graph-gateway/clients"
)

type registrationRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

type registrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at"`
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	Scope                   string   `json:"scope,omitempty"`
}

// RegisterHandler implements RFC 7591 dynamic client registration.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.config.IsRegistrationEnabled() {
			writeOAuthError(w, http.StatusForbidden, "access_denied", "dynamic client registration is disabled")
			return
		}

		var req registrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "request body is not valid JSON")
			return
		}

		client, secret, err := clients.Register(clients.Registration{
			ClientName:              req.ClientName,
			RedirectURIs:            req.RedirectURIs,
			GrantTypes:              req.GrantTypes,
			ResponseTypes:           req.ResponseTypes,
			TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
			Scope:                   req.Scope,
		}, s.config.GetRedirectURIAllowPatterns())
		if err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", err.Error())
			return
		}

		if err := s.svc.Clients.Upsert(r.Context(), client); err != nil {
			log.Error().Err(err).Msg("failed to store client registration")
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to store registration")
			return
		}

		log.Info().Str("client_id", client.ClientID).Str("client_name", client.ClientName).Msg("registered client")

		resp := registrationResponse{
			ClientID:                client.ClientID,
			ClientSecret:            secret,
			ClientIDIssuedAt:        client.CreatedAt.Unix(),
			ClientSecretExpiresAt:   0, // secrets do not expire
			ClientName:              client.ClientName,
			RedirectURIs:            client.RedirectURIs,
			GrantTypes:              client.GrantTypes,
			ResponseTypes:           client.ResponseTypes,
			TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
			Scope:                   client.Scope,
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}
