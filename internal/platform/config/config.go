// Copyright (c) 2026 CyberVPN. All rights reserved.

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, identity services) via constructors.
  - Zero Hidden State: No global variables are used to store config; business
    logic never reads the environment directly.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the CyberVPN API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Cryptographic keys for token signing
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH,required"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH,required"`

	// Token lifetimes
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	// Device fingerprint binding for refresh tokens
	EnforceFingerprint bool `env:"ENFORCE_DEVICE_FINGERPRINT" envDefault:"false"`

	// MinLoginLatency is the lower bound on login wall-clock latency,
	// applied to both success and failure paths (anti-enumeration floor).
	MinLoginLatency time.Duration `env:"MIN_LOGIN_LATENCY" envDefault:"100ms"`

	// Progressive lockout tiers (failed attempts since last success)
	LockoutTier1Attempts     int           `env:"LOCKOUT_TIER1_ATTEMPTS"     envDefault:"3"`
	LockoutTier1Duration     time.Duration `env:"LOCKOUT_TIER1_DURATION"     envDefault:"5m"`
	LockoutTier2Attempts     int           `env:"LOCKOUT_TIER2_ATTEMPTS"     envDefault:"6"`
	LockoutTier2Duration     time.Duration `env:"LOCKOUT_TIER2_DURATION"     envDefault:"30m"`
	LockoutPermanentAttempts int           `env:"LOCKOUT_PERMANENT_ATTEMPTS" envDefault:"10"`

	// One-time codes for email verification / password reset
	OTPLength      int           `env:"OTP_LENGTH"       envDefault:"6"`
	OTPExpiry      time.Duration `env:"OTP_EXPIRY"       envDefault:"24h"`
	OTPMaxAttempts int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`

	// OTP resend budget (per email, rolling window)
	OTPResendLimit  int           `env:"OTP_RESEND_LIMIT"  envDefault:"3"`
	OTPResendWindow time.Duration `env:"OTP_RESEND_WINDOW" envDefault:"1h"`

	// Passwordless magic links
	MagicLinkTTL        time.Duration `env:"MAGIC_LINK_TTL"         envDefault:"15m"`
	MagicLinkRateLimit  int           `env:"MAGIC_LINK_RATE_LIMIT"  envDefault:"3"`
	MagicLinkRateWindow time.Duration `env:"MAGIC_LINK_RATE_WINDOW" envDefault:"1h"`

	// TOTP second factor
	TOTPIssuer         string        `env:"TOTP_ISSUER"          envDefault:"CyberVPN"`
	ReauthValidity     time.Duration `env:"REAUTH_VALIDITY"      envDefault:"5m"`
	TwoFAAttemptLimit  int           `env:"TWOFA_ATTEMPT_LIMIT"  envDefault:"5"`
	TwoFAAttemptWindow time.Duration `env:"TWOFA_ATTEMPT_WINDOW" envDefault:"15m"`

	// PendingTokenTTL bounds how long a login may sit between the password
	// step and the TOTP step.
	PendingTokenTTL time.Duration `env:"PENDING_TOKEN_TTL" envDefault:"5m"`

	// OAuth providers
	GoogleClientID       string        `env:"OAUTH_GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string        `env:"OAUTH_GOOGLE_CLIENT_SECRET"`
	GitHubClientID       string        `env:"OAUTH_GITHUB_CLIENT_ID"`
	GitHubClientSecret   string        `env:"OAUTH_GITHUB_CLIENT_SECRET"`
	TelegramBotToken     string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAuthMaxAge   time.Duration `env:"TELEGRAM_AUTH_MAX_AGE" envDefault:"24h"`
	OAuthRedirectBaseURL string        `env:"OAUTH_REDIRECT_BASE_URL" envDefault:"http://localhost:8080"`
	OAuthStateTTL        time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`
	OAuthAutoLink        bool          `env:"OAUTH_AUTO_LINK" envDefault:"true"`

	// VPN provisioning backend
	VPNAPIBaseURL string        `env:"VPN_API_BASE_URL"`
	VPNAPIToken   string        `env:"VPN_API_TOKEN"`
	VPNAPITimeout time.Duration `env:"VPN_API_TIMEOUT" envDefault:"5s"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedExtraOrigins returns the additional CORS origins configured via
// EXTRA_ORIGINS as a cleaned list.
func (c *Config) AllowedExtraOrigins() []string {
	if c.ExtraOrigins == "" {
		return nil
	}

	parts := strings.Split(c.ExtraOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
