// Package server is the HTTP surface of the gateway: the downstream OAuth
// 2.1 authorization server endpoints, the upstream callback, and the bearer
// authentication gate.
package server

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/graphgate/graph-gateway/clients"
	"github.com/graphgate/graph-gateway/codes"
	"github.com/graphgate/graph-gateway/internal/config"
	"github.com/graphgate/graph-gateway/sessions"
	"github.com/graphgate/graph-gateway/token"
	"github.com/graphgate/graph-gateway/token/refresh"
	"github.com/graphgate/graph-gateway/upstream"
)

// UpstreamProvider is the slice of upstream.Provider the server drives.
type UpstreamProvider interface {
	AuthorizationURL(ctx context.Context, session *sessions.Session) (string, error)
	Exchange(ctx context.Context, session *sessions.Session, code, state string) (*upstream.Identity, error)
	Refresh(ctx context.Context, session *sessions.Session) (*sessions.TokenSet, error)
}

// Services are the wired dependencies of the server.
type Services struct {
	Sessions *sessions.Manager
	Clients  clients.Repo
	Codes    *codes.Manager
	Tokens   *token.Manager
	Refresh  *refresh.Manager
	Upstream UpstreamProvider

	// Ping checks the persistence backend for /healthz. Nil means the
	// in-process backend, which is always reachable.
	Ping func(ctx context.Context) error
}

type Server struct {
	env    string
	mux    *http.ServeMux
	routes []string
	config config.Config
	svc    Services
}

func New(cfg config.Config, svc Services) *Server {
	s := &Server{
		env:    cfg.GetEnv(),
		mux:    http.NewServeMux(),
		config: cfg,
		svc:    svc,
	}
	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) initRoutes() {
	// Discovery
	s.RegisterRouteHandler("GET "+RouteWellKnownMetadata, ChainMiddleware(s.MetadataHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKSHandler(), s.APIMiddleware()...))

	// Downstream authorization server
	s.RegisterRouteHandler("POST "+RouteRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthorize, ChainMiddleware(s.AuthorizeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteToken, ChainMiddleware(s.TokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteRevoke, ChainMiddleware(s.RevokeHandler(), s.APIMiddleware()...))

	// Upstream callback
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.APIMiddleware()...))

	// Session lifecycle, behind the bearer gate
	s.RegisterRouteHandler("POST "+RouteLogout,
		ChainMiddleware(s.LogoutHandler(), append(s.APIMiddleware(), s.BearerAuthMiddleware)...))

	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthzHandler())
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		log.Info().Str("route", route).Msg("registered route")
	}
}
