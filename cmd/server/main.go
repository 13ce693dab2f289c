package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/postloop/postloop/auth"
	"github.com/postloop/postloop/credentials"
	"github.com/postloop/postloop/internal/config"
	"github.com/postloop/postloop/internal/postgres"
	"github.com/postloop/postloop/platforms"
	"github.com/postloop/postloop/refresh"
	"github.com/postloop/postloop/secrets"
	"github.com/postloop/postloop/server"
	"github.com/postloop/postloop/sessions"
	"github.com/postloop/postloop/tenants"
	"github.com/postloop/postloop/token"
	"github.com/postloop/postloop/users"
)

const sweepInterval = time.Hour

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	for {
		if err := run(*configPath); err != nil {
			log.Fatal().Err(err).Msg("server exited")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run(configPath string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	setupLogging(cfg)
	displayAppname(cfg.App.Name)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := postgres.New(ctx, cfg.DB)
	if err != nil {
		return errors.Wrap(err, "connect database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return errors.Wrap(err, "migrate")
	}

	issuer, err := token.NewIssuer(cfg.App.Domain, cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret,
		token.WithTokenExpiry(cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL))
	if err != nil {
		return errors.Wrap(err, "token issuer")
	}

	tenantRepo := tenants.NewPostgresRepo(db)
	authService, err := auth.NewService(auth.Repos{
		Users:    users.NewPostgresRepo(db),
		Sessions: sessions.NewPostgresRepo(db),
		Tenants:  tenantRepo,
	}, db, issuer)
	if err != nil {
		return errors.Wrap(err, "auth service")
	}

	cipher, err := secrets.NewCipher(cfg.Vault.OperatorSecret, cfg.App.Env)
	if err != nil {
		return errors.Wrap(err, "credential cipher")
	}
	vault, err := credentials.NewVault(credentials.NewPostgresRepo(db), cipher,
		credentials.WithRevokeTimeout(cfg.Vault.RevokeTimeout))
	if err != nil {
		return errors.Wrap(err, "credential vault")
	}

	orchestrator, err := refresh.NewOrchestrator(vault,
		refresh.WithLeadWindow(cfg.Refresh.LeadWindow),
		refresh.WithCallTimeout(cfg.Refresh.CallTimeout))
	if err != nil {
		return errors.Wrap(err, "refresh orchestrator")
	}

	resolver, err := tenants.NewResolver(issuer, tenantRepo, cfg.App.Domain)
	if err != nil {
		return errors.Wrap(err, "tenant resolver")
	}

	srv, err := server.New(cfg, authService, vault, orchestrator, resolver, buildAdapters(cfg))
	if err != nil {
		return errors.Wrap(err, "server")
	}

	go sweepSessions(ctx, authService, tenantRepo)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("listen and serve")
			cancel()
		}
	}()

	<-ctx.Done()
	return shutdown(httpServer, cfg.Server.GracefulTimeout)
}

func shutdown(httpServer *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// sweepSessions periodically removes expired sessions from every workspace.
func sweepSessions(ctx context.Context, authService *auth.Service, tenantRepo tenants.Repo) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		all, err := tenantRepo.List(ctx, 0, 0)
		if err != nil {
			log.Warn().Err(err).Msg("session sweep: list tenants")
			continue
		}
		for _, tenant := range all {
			tc := tenants.Context{TenantID: tenant.ID, Namespace: tenant.Namespace}
			swept, err := authService.SweepExpiredSessions(ctx, tc)
			if err != nil {
				log.Warn().Err(err).Str("tenant_id", tenant.ID).Msg("session sweep failed")
				continue
			}
			if swept > 0 {
				log.Debug().Str("tenant_id", tenant.ID).Int64("swept", swept).Msg("expired sessions removed")
			}
		}
	}
}

// buildAdapters instantiates an adapter for every provider with a configured
// OAuth application.
func buildAdapters(cfg *config.Config) map[string]platforms.Adapter {
	adapters := make(map[string]platforms.Adapter, len(cfg.Providers))
	for provider, app := range cfg.Providers {
		switch provider {
		case platforms.ProviderTwitter:
			adapters[provider] = platforms.NewTwitterAdapter(app)
		case platforms.ProviderTikTok:
			adapters[provider] = platforms.NewTikTokAdapter(app)
		case platforms.ProviderYouTube:
			adapters[provider] = platforms.NewYouTubeAdapter(app)
		case platforms.ProviderLinkedIn:
			adapters[provider] = platforms.NewLinkedInAdapter(app)
		case platforms.ProviderPinterest:
			adapters[provider] = platforms.NewPinterestAdapter(app)
		case platforms.ProviderFacebook:
			adapters[provider] = platforms.NewFacebookAdapter(app)
		case platforms.ProviderInstagram:
			adapters[provider] = platforms.NewInstagramAdapter(app)
		default:
			log.Warn().Str("provider", provider).Msg("unknown provider in config, skipping")
		}
	}
	return adapters
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
