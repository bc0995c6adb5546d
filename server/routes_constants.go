package server

// Route path constants
// All gateway routes are defined here to ensure consistency and prevent typos
const (
	// OAuth 2.1 authorization server surface (downstream)
	RouteWellKnownMetadata = "/.well-known/oauth-authorization-server"
	RouteWellKnownJWKS     = "/.well-known/jwks.json"
	RouteRegister          = "/register"
	RouteAuthorize         = "/authorize"
	RouteToken             = "/token"
	RouteRevoke            = "/revoke"

	// Upstream identity platform callback
	RouteCallback = "/oauth/callback"

	// Session lifecycle
	RouteLogout = "/logout"

	// Operational
	RouteHealthz = "/healthz"
)

// SessionCookieName carries the gateway session id between /authorize and
// the upstream callback.
const SessionCookieName = "gw_session"
