// Copyright (c) 2026 CyberVPN. All rights reserved.

// Package auth implements the identity core of the CyberVPN platform:
// password login with progressive lockout, OTP email verification, magic
// links, TOTP second factor, and bearer token lifecycle.
//
// # Architecture
//
// Entities in this file represent the "Truth" of the system.
// They have no dependencies on outer layers (like databases, APIs, or libraries).
// This makes the core logic highly testable and resilient to technology changes.
package auth

import (
	"time"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/sec"
)

// User represents a registered CyberVPN account.
//
// # Rules
//   - Login is unique, case-insensitive, ASCII letters/digits/underscores.
//   - Email is unique when present; OAuth accounts (Telegram) may lack one.
//   - PasswordHash is generated via Bcrypt exclusively via the Service.
//   - IsActive gates every login path; set on email verification or OAuth creation.
//   - Accounts are soft-deleted, never removed.
type User struct {
	ID              string       `json:"id"`
	Login           string       `json:"login"`
	Email           string       `json:"email,omitempty"`
	PasswordHash    string       `json:"-"` // Explicitly omitted from JSON for security.
	Role            sec.UserRole `json:"role"`
	IsActive        bool         `json:"is_active"`
	IsEmailVerified bool         `json:"is_email_verified"`
	TOTPSecret      string       `json:"-"` // Shared secret, never serialized.
	TOTPEnabled     bool         `json:"totp_enabled"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	DeletedAt       *time.Time   `json:"-"`
}

// OAuthAccount links one external (provider, provider user id) identity to
// exactly one [User].
//
// # Uniqueness
//
// At most one OAuthAccount exists per (provider, provider user id) pair. A
// user may hold several OAuthAccounts across different providers.
type OAuthAccount struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	Username       string    `json:"username,omitempty"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	AccessToken    string    `json:"-"` // Provider tokens are never serialized.
	RefreshToken   string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OtpPurpose distinguishes the two one-time code flows.
type OtpPurpose string

const (
	OtpPurposeEmailVerification OtpPurpose = "email_verification"
	OtpPurposePasswordReset     OtpPurpose = "password_reset"
)

// OtpCode is a short-lived numeric code bound to (user, purpose).
//
// # Lifecycle
//
// Issued on registration, forgot-password, or resend. Every verification
// attempt increments Attempts whether it matches or not; once Attempts
// reaches MaxAttempts the code is permanently unusable even if unexpired.
// VerifiedAt is set exactly once on successful consumption.
type OtpCode struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Purpose     OtpPurpose `json:"purpose"`
	Code        string     `json:"-"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Active reports whether the code can still be consumed at the given instant.
func (c *OtpCode) Active(now time.Time) bool {
	return c.VerifiedAt == nil && c.Attempts < c.MaxAttempts && now.Before(c.ExpiresAt)
}

// TwoFAStatus names the states of the 2FA lifecycle.
type TwoFAStatus string

const (
	TwoFAStatusDisabled     TwoFAStatus = "disabled"
	TwoFAStatusPendingSetup TwoFAStatus = "pending_setup"
	TwoFAStatusEnabled      TwoFAStatus = "enabled"
)
