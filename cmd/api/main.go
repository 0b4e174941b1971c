// Copyright (c) 2026 CyberVPN. All rights reserved.

// Command api is the entry point for the CyberVPN identity API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire identity services and HTTP handlers.
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Beep206/CyberVPN-sub000/internal/api"
	"github.com/Beep206/CyberVPN-sub000/internal/identity/auth"
	"github.com/Beep206/CyberVPN-sub000/internal/identity/oauth"
	"github.com/Beep206/CyberVPN-sub000/internal/notify"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/config"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/constants"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/migration"
	pgstore "github.com/Beep206/CyberVPN-sub000/internal/platform/postgres"
	redisstore "github.com/Beep206/CyberVPN-sub000/internal/platform/redis"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/sec"
	"github.com/Beep206/CyberVPN-sub000/internal/provision"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[CyberVPN] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Token Service ──────────────────────────────────────────────────
	jwtSvc, err := sec.NewTokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath,
		constants.AuthIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	must(log, err, "initialize jwt service")

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 8. Identity Components ────────────────────────────────────────────
	userRepository := auth.NewUserRepository(pool)
	oauthRepository := auth.NewOAuthAccountRepository(pool)
	otpRepository := auth.NewOtpRepository(pool)

	lockout := auth.NewLockoutGuard(rdb, auth.LockoutPolicy{
		Tier1Attempts:     cfg.LockoutTier1Attempts,
		Tier1Duration:     cfg.LockoutTier1Duration,
		Tier2Attempts:     cfg.LockoutTier2Attempts,
		Tier2Duration:     cfg.LockoutTier2Duration,
		PermanentAttempts: cfg.LockoutPermanentAttempts,
	})
	revocations := auth.NewRevocationRegistry(rdb, cfg.RefreshTokenTTL)

	otpService := auth.NewOtpService(otpRepository, rdb, auth.OtpConfig{
		Length:       cfg.OTPLength,
		Expiry:       cfg.OTPExpiry,
		MaxAttempts:  cfg.OTPMaxAttempts,
		ResendLimit:  cfg.OTPResendLimit,
		ResendWindow: cfg.OTPResendWindow,
	})
	magicService := auth.NewMagicLinkService(rdb, auth.MagicLinkConfig{
		TTL:        cfg.MagicLinkTTL,
		RateLimit:  cfg.MagicLinkRateLimit,
		RateWindow: cfg.MagicLinkRateWindow,
	})
	totpService := auth.NewTotpService(userRepository, rdb, auth.TwoFAConfig{
		Issuer:         cfg.TOTPIssuer,
		ReauthValidity: cfg.ReauthValidity,
		AttemptLimit:   cfg.TwoFAAttemptLimit,
		AttemptWindow:  cfg.TwoFAAttemptWindow,
	})

	dispatcher := notify.NewLogDispatcher(log)
	provisioner := provision.NewClient(cfg.VPNAPIBaseURL, cfg.VPNAPIToken, cfg.VPNAPITimeout)

	authService := auth.NewService(userRepository, jwtSvc, lockout, revocations,
		otpService, magicService, totpService, dispatcher, provisioner,
		auth.ServiceConfig{
			MinLoginLatency:    cfg.MinLoginLatency,
			EnforceFingerprint: cfg.EnforceFingerprint,
			PendingTokenTTL:    cfg.PendingTokenTTL,
		})

	// ── 9. Federation ─────────────────────────────────────────────────────
	providers := make([]oauth.Provider, 0, 2)
	if cfg.GoogleClientID != "" {
		providers = append(providers, oauth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret))
	}
	if cfg.GitHubClientID != "" {
		providers = append(providers, oauth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret))
	}

	telegram := oauth.NewTelegramVerifier(cfg.TelegramBotToken, cfg.TelegramAuthMaxAge)
	resolver := oauth.NewResolver(userRepository, oauthRepository, authService, provisioner, cfg.OAuthAutoLink)

	oauthHandler := oauth.NewHandler(providers, telegram, resolver, rdb, oauth.HandlerConfig{
		RedirectBaseURL: cfg.OAuthRedirectBaseURL,
		StateTTL:        cfg.OAuthStateTTL,
	})

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      auth.NewHandler(authService),
		TwoFA:     auth.NewTwoFAHandler(totpService, authService),
		OAuth:     oauthHandler,
	}

	// The server context outlives startup; it feeds the rate limiter's
	// cleanup goroutine for the process lifetime.
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	server := api.NewServer(serverCtx, cfg, log, jwtSvc, revocations, handlers)

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
