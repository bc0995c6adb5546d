// Package clients manages downstream OAuth client registrations (RFC 7591).
package clients

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gobwas/glob"
	"golang.org/x/crypto/bcrypt"

	"github.com/graphgate/graph-gateway/internal/errors"
	"github.com/graphgate/graph-gateway/secrets"
)

const (
	AuthMethodNone             = "none"
	AuthMethodClientSecretPost = "client_secret_post"

	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	ResponseTypeCode           = "code"
)

// Client is a registered downstream client. Immutable after registration
// except deletion.
type Client struct {
	ClientID                string    `json:"clientId"`
	ClientSecretHash        string    `json:"clientSecretHash,omitempty"` // empty for public clients
	ClientName              string    `json:"clientName"`
	RedirectURIs            []string  `json:"redirectUris"`
	GrantTypes              []string  `json:"grantTypes"`
	ResponseTypes           []string  `json:"responseTypes"`
	TokenEndpointAuthMethod string    `json:"tokenEndpointAuthMethod"`
	Scope                   string    `json:"scope,omitempty"`
	CreatedAt               time.Time `json:"createdAt"`
}

// IsPublic reports whether the client authenticates with no secret.
func (c *Client) IsPublic() bool {
	return c.TokenEndpointAuthMethod == AuthMethodNone
}

// VerifySecret checks a presented secret against the stored hash.
func (c *Client) VerifySecret(secret string) error {
	if c.IsPublic() {
		return nil
	}
	if secret == "" {
		return errors.ErrInvalidClientSecret
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.ClientSecretHash), []byte(secret)); err != nil {
		return errors.ErrInvalidClientSecret
	}
	return nil
}

// AllowsRedirectURI reports whether uri exactly matches one of the client's
// registered redirect URIs. No wildcard matching.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// HasGrantType reports whether the client registered the given grant type.
func (c *Client) HasGrantType(grantType string) bool {
	for _, g := range c.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

// Registration carries the caller-supplied registration parameters.
type Registration struct {
	ClientName              string
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	TokenEndpointAuthMethod string
	Scope                   string
}

// Register validates a registration against the redirect-URI rules and the
// operator allow-list, applies OAuth 2.1 defaults, and returns the new
// client plus the one-time plaintext secret for confidential clients.
func Register(reg Registration, allowPatterns []string) (*Client, string, error) {
	if reg.ClientName == "" {
		return nil, "", errors.Wrapf(errors.ErrInvalidRequest, "client_name is required")
	}
	if len(reg.RedirectURIs) == 0 {
		return nil, "", errors.Wrapf(errors.ErrInvalidRequest, "redirect_uris is required")
	}

	matchers, err := compileAllowPatterns(allowPatterns)
	if err != nil {
		return nil, "", err
	}
	for _, uri := range reg.RedirectURIs {
		if err := ValidateRedirectURI(uri); err != nil {
			return nil, "", err
		}
		if len(matchers) > 0 && !matchesAny(matchers, uri) {
			return nil, "", errors.Wrapf(errors.ErrRegistrationDenied, "redirect URI %q", uri)
		}
	}

	if len(reg.GrantTypes) == 0 {
		reg.GrantTypes = []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken}
	}
	if len(reg.ResponseTypes) == 0 {
		reg.ResponseTypes = []string{ResponseTypeCode}
	}
	if reg.TokenEndpointAuthMethod == "" {
		reg.TokenEndpointAuthMethod = AuthMethodNone
	}

	clientID, err := secrets.RandomString(18)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to generate client_id")
	}

	client := &Client{
		ClientID:                "client_" + clientID,
		ClientName:              reg.ClientName,
		RedirectURIs:            reg.RedirectURIs,
		GrantTypes:              reg.GrantTypes,
		ResponseTypes:           reg.ResponseTypes,
		TokenEndpointAuthMethod: reg.TokenEndpointAuthMethod,
		Scope:                   reg.Scope,
		CreatedAt:               time.Now(),
	}

	var plaintextSecret string
	if client.TokenEndpointAuthMethod != AuthMethodNone {
		plaintextSecret, err = secrets.RandomString(32)
		if err != nil {
			return nil, "", errors.Wrapf(err, "failed to generate client_secret")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(plaintextSecret), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", errors.Wrapf(err, "failed to hash client_secret")
		}
		client.ClientSecretHash = string(hash)
	}

	return client, plaintextSecret, nil
}

// ValidateRedirectURI enforces the registration rules: parseable, https (or
// http on localhost), and no fragment.
func ValidateRedirectURI(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return errors.Wrapf(errors.ErrInvalidRedirectURI, "%q is not a valid URL", raw)
	}
	if parsed.Fragment != "" {
		return errors.Wrapf(errors.ErrInvalidRedirectURI, "%q must not contain a fragment", raw)
	}
	if parsed.Scheme == "https" {
		return nil
	}
	host := parsed.Hostname()
	if parsed.Scheme == "http" && (host == "localhost" || host == "127.0.0.1" || host == "::1") {
		return nil
	}
	return errors.Wrapf(errors.ErrInvalidRedirectURI, "%q must use https or localhost http", raw)
}

// compileAllowPatterns compiles operator glob patterns with '/' as the
// separator, so '*' spans a single path segment and '**' spans any.
func compileAllowPatterns(patterns []string) ([]glob.Glob, error) {
	matchers := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid redirect URI allow pattern %q: %w", p, err)
		}
		matchers = append(matchers, g)
	}
	return matchers, nil
}

func matchesAny(matchers []glob.Glob, uri string) bool {
	for _, m := range matchers {
		if m.Match(uri) {
			return true
		}
	}
	return false
}
