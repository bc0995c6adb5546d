// Package upstream drives the OAuth client side of the gateway: the
// authorization-code and refresh exchanges against the Microsoft identity
// platform.
package upstream

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/graphgate/graph-gateway/internal/errors"
	"github.com/graphgate/graph-gateway/secrets"
	"github.com/graphgate/graph-gateway/sessions"
)

// IDTokenVerifier validates a raw upstream ID token. Satisfied by
// *oidc.IDTokenVerifier; tests substitute one backed by a static key set.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// Identity is the user identity asserted by a verified upstream ID token.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
}

// Config carries the upstream app registration.
type Config struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	Scopes       []string
	RedirectURL  string
}

// Provider performs the upstream authorization-code and refresh flows and
// records the results on gateway sessions.
type Provider struct {
	oauth    *oauth2.Config
	verifier IDTokenVerifier
	sessions *sessions.Manager
}

// New discovers the tenant's OIDC configuration and builds a provider.
func New(ctx context.Context, cfg Config, sessionManager *sessions.Manager) (*Provider, error) {
	issuer := fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", cfg.TenantID)
	oidcProvider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to discover upstream OIDC configuration")
	}
	verifier := oidcProvider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return NewWithEndpoint(cfg, oidcProvider.Endpoint(), verifier, sessionManager), nil
}

// NewWithEndpoint builds a provider against an explicit OAuth endpoint and
// ID-token verifier. Used by tests and non-standard deployments.
func NewWithEndpoint(cfg Config, endpoint oauth2.Endpoint, verifier IDTokenVerifier, sessionManager *sessions.Manager) *Provider {
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		verifier: verifier,
		sessions: sessionManager,
	}
}

// AuthorizationURL prepares a fresh PKCE pair, state, and nonce on the
// session and returns the upstream authorization URL to redirect the user to.
func (p *Provider) AuthorizationURL(ctx context.Context, session *sessions.Session) (string, error) {
	pair, err := secrets.GeneratePKCEPair()
	if err != nil {
		return "", errors.Wrapf(err, "failed to generate PKCE pair")
	}
	state, err := secrets.GenerateState()
	if err != nil {
		return "", errors.Wrapf(err, "failed to generate state")
	}
	nonce, err := secrets.GenerateNonce()
	if err != nil {
		return "", errors.Wrapf(err, "failed to generate nonce")
	}

	if err := p.sessions.SetAuthFlow(ctx, session, pair.Verifier, state, nonce); err != nil {
		return "", err
	}

	return p.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pair.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", pair.Method),
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("response_mode", "query"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	), nil
}

// Exchange completes the upstream callback: it checks the returned state
// against the session, redeems the code with the stored PKCE verifier,
// verifies the ID token and nonce, and records tokens and identity on the
// session. The transient auth-flow fields are cleared whatever the outcome.
func (p *Provider) Exchange(ctx context.Context, session *sessions.Session, code, state string) (*Identity, error) {
	defer func() {
		if err := p.sessions.ClearAuthFlow(ctx, session); err != nil {
			log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to clear auth flow state")
		}
	}()

	if session.State == "" || !secrets.SecureCompare(state, session.State) {
		return nil, errors.E(errors.KindClient, "invalid_request", errors.Wrapf(errors.ErrInvalidRequest, "state mismatch"))
	}

	verifier, err := p.sessions.GetDecryptedPKCEVerifier(session)
	if err != nil {
		return nil, errors.E(errors.KindAuth, "", errors.Wrapf(err, "no PKCE verifier on session"))
	}

	token, err := p.oauth.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		return nil, errors.E(errors.KindUpstream, "", errors.Wrapf(errors.ErrUpstreamExchangeFailed, "%v", err))
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.E(errors.KindUpstream, "", errors.Wrapf(errors.ErrUpstreamExchangeFailed, "no id_token in upstream response"))
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.E(errors.KindUpstream, "", errors.Wrapf(err, "id_token verification failed"))
	}
	if idToken.Nonce == "" || !secrets.SecureCompare(idToken.Nonce, session.Nonce) {
		return nil, errors.E(errors.KindUpstream, "", errors.Wrapf(errors.ErrUpstreamExchangeFailed, "nonce mismatch"))
	}

	identity, err := identityFromIDToken(idToken)
	if err != nil {
		return nil, errors.E(errors.KindUpstream, "", err)
	}

	if err := p.sessions.UpdateTokens(ctx, session.ID, tokenSetFrom(token, "")); err != nil {
		return nil, err
	}
	if err := p.sessions.SetIdentity(ctx, session, identity.UserID, identity.Email, identity.DisplayName); err != nil {
		return nil, err
	}

	log.Info().Str("session_id", session.ID).Str("user", identity.Email).Msg("upstream authentication completed")
	return identity, nil
}

// Refresh exchanges the session's stored upstream refresh token for a new
// token set. A missing or upstream-rejected refresh token surfaces as
// ErrReauthenticationRequired; the session survives so the user can run the
// authorization flow again.
func (p *Provider) Refresh(ctx context.Context, session *sessions.Session) (*sessions.TokenSet, error) {
	current := p.sessions.GetDecryptedTokens(session)
	if current == nil || current.RefreshToken == "" {
		return nil, errors.E(errors.KindUpstream, "", errors.ErrReauthenticationRequired)
	}

	token, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			log.Warn().Str("session_id", session.ID).Msg("upstream refresh token rejected, re-authentication required")
			return nil, errors.E(errors.KindUpstream, "", errors.ErrReauthenticationRequired)
		}
		return nil, errors.E(errors.KindUpstream, "", errors.Wrapf(errors.ErrUpstreamExchangeFailed, "%v", err))
	}

	// Providers may omit the refresh token on renewal; keep the old one.
	updated := tokenSetFrom(token, current.RefreshToken)
	if err := p.sessions.UpdateTokens(ctx, session.ID, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func tokenSetFrom(token *oauth2.Token, previousRefreshToken string) *sessions.TokenSet {
	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = previousRefreshToken
	}
	scope, _ := token.Extra("scope").(string)
	return &sessions.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    token.Expiry,
		Scope:        scope,
	}
}

func identityFromIDToken(idToken *oidc.IDToken) (*Identity, error) {
	var claims struct {
		Oid               string `json:"oid"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
		Name              string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrapf(err, "failed to parse id_token claims")
	}

	userID := claims.Oid
	if userID == "" {
		userID = idToken.Subject
	}
	email := claims.PreferredUsername
	if email == "" {
		email = claims.Email
	}
	return &Identity{
		UserID:      userID,
		Email:       strings.ToLower(email),
		DisplayName: claims.Name,
	}, nil
}
