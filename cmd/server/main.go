package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/graphgate/graph-gateway/clients"
	"github.com/graphgate/graph-gateway/codes"
	"github.com/graphgate/graph-gateway/internal/config"
	"github.com/graphgate/graph-gateway/secrets"
	"github.com/graphgate/graph-gateway/server"
	"github.com/graphgate/graph-gateway/sessions"
	"github.com/graphgate/graph-gateway/token"
	"github.com/graphgate/graph-gateway/token/keys"
	"github.com/graphgate/graph-gateway/token/refresh"
	"github.com/graphgate/graph-gateway/upstream"
)

func main() {
	_ = godotenv.Load()

	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("server exited with error")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	handler, err := buildServer(c)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

// buildServer wires every service explicitly. The persistence backend is
// chosen once at startup: a Redis URL means shared Redis-backed stores,
// otherwise everything lives in process memory.
func buildServer(c config.Config) (*server.Server, error) {
	encryptionSecret, err := c.GetSessionEncryptionSecret()
	if err != nil {
		return nil, err
	}
	encryptor, err := secrets.NewEncryptor(encryptionSecret)
	if err != nil {
		return nil, err
	}

	keyPair, err := keys.Load(c.GetSigningPrivateKeyPEM(), c.GetSigningPublicKeyPEM())
	if err != nil {
		return nil, err
	}

	var (
		sessionRepo sessions.Repo
		clientRepo  clients.Repo
		codeRepo    codes.Repo
		refreshRepo refresh.Repo
		ping        func(ctx context.Context) error
	)
	if redisURL := c.GetRedisURL(); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		log.Info().Msg("using Redis-backed stores")

		sessionRepo = sessions.NewRedisRepo(redisClient, c.MigrateLegacySessionKeys())
		clientRepo = clients.NewRedisRepo(redisClient)
		codeRepo = codes.NewRedisRepo(redisClient)
		refreshRepo = refresh.NewRedisRepo(redisClient)
		ping = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		log.Info().Msg("using in-memory stores")
		sessionRepo = sessions.NewInMemoryRepo()
		clientRepo = clients.NewInMemoryRepo()
		codeRepo = codes.NewInMemoryRepo()
		refreshRepo = refresh.NewInMemoryRepo()
	}

	sessionManager := sessions.NewManager(sessionRepo, encryptor, c.GetSessionTTL())

	upstreamProvider, err := upstream.New(context.Background(), upstream.Config{
		ClientID:     c.GetUpstreamClientID(),
		ClientSecret: c.GetUpstreamClientSecret(),
		TenantID:     c.GetUpstreamTenant(),
		Scopes:       c.GetUpstreamScopes(),
		RedirectURL:  c.GetBaseURL() + server.RouteCallback,
	}, sessionManager)
	if err != nil {
		return nil, err
	}

	return server.New(c, server.Services{
		Sessions: sessionManager,
		Clients:  clientRepo,
		Codes:    codes.NewManager(codeRepo, c.GetCodeGenerationLength(), c.GetAuthCodeTTL(), c.GetPendingAuthTTL()),
		Tokens:   token.NewManager(keyPair, c.GetBaseURL(), c.GetAccessTokenExpiry()),
		Refresh:  refresh.NewManager(refreshRepo, c.GetRefreshTokenLength(), c.GetRefreshTokenExpiry()),
		Upstream: upstreamProvider,
		Ping:     ping,
	}), nil
}

func listenAndServe(httpServer *http.Server) error {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
