// Copyright (c) 2026 CyberVPN. All rights reserved.

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/ctxutil"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/sec"
)

// failureJitterMax is the random latency added on top of the floor on the
// failure path, keeping success and failure timings statistically close.
const failureJitterMax = 50 * time.Millisecond

// Notifier dispatches identity emails. Implementations are fire-and-forget:
// delivery failures are logged, never propagated to the caller.
type Notifier interface {
	DispatchOTPEmail(ctx context.Context, email, code string)
	DispatchMagicLinkEmail(ctx context.Context, email, token string)
}

// Provisioner creates the user's VPN-side account once their email is
// verified.
type Provisioner interface {
	EnsureUser(ctx context.Context, userID, login string) error
}

// ServiceConfig holds the orchestrator knobs, injected from config.
type ServiceConfig struct {
	MinLoginLatency    time.Duration // Latency floor on the login path.
	EnforceFingerprint bool          // Whether refresh tokens bind to a device.
	PendingTokenTTL    time.Duration // Lifetime of a 2fa_pending token.
}

// Service implements the identity use cases, one method per inbound flow.
//
// # Architecture
//
// It composes the guard components (lockout, revocation, OTP, magic link,
// TOTP) with the credential store and the token service. It is
// technology-agnostic: no HTTP, no SQL.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, lockout,
// or token logic must be reviewed by the security team.
type Service struct {
	users       UserRepository
	tokens      *sec.TokenService
	lockout     *LockoutGuard
	revocations *RevocationRegistry
	otp         *OtpService
	magic       *MagicLinkService
	totp        *TotpService
	notifier    Notifier
	provisioner Provisioner
	cfg         ServiceConfig
}

// NewService constructs the orchestrator with its component dependencies.
func NewService(
	users UserRepository,
	tokens *sec.TokenService,
	lockout *LockoutGuard,
	revocations *RevocationRegistry,
	otp *OtpService,
	magic *MagicLinkService,
	totp *TotpService,
	notifier Notifier,
	provisioner Provisioner,
	cfg ServiceConfig,
) *Service {
	return &Service{
		users:       users,
		tokens:      tokens,
		lockout:     lockout,
		revocations: revocations,
		otp:         otp,
		magic:       magic,
		totp:        totp,
		notifier:    notifier,
		provisioner: provisioner,
		cfg:         cfg,
	}
}

// TokenPair is the client-facing token bundle.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Requires2FA  bool   `json:"requires_2fa,omitempty"`
}

// LoginResult bundles tokens with the authenticated user projection.
type LoginResult struct {
	TokenPair
	User *User `json:"user"`

	// IsNewUser marks a federated login that created the account.
	IsNewUser bool `json:"is_new_user,omitempty"`
}

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Identifier  string // Login or email, case-insensitive.
	Password    string
	Fingerprint string // Optional device fingerprint header value.
}

/*
Login validates credentials and issues tokens.

# Flow

 1. Lockout check (always before credentials).
 2. Lookup by email, then by login.
 3. Bcrypt verification.
 4. On any failure: record the attempt, then pad latency with jitter, then
    return a generic 401.
 5. On success: reset the failure counter; if TOTP is enabled return only a
    short-lived 2fa_pending token, else a full pair.

The wall-clock latency of every outcome is padded to at least the configured
floor so success and failure are not separable by timing.
*/
func (service *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {

	start := time.Now()

	// ── 1. Lockout Gate ───────────────────────────────────────────────────

	if err := service.lockout.Check(ctx, input.Identifier); err != nil {
		service.padLatency(ctx, start, true)
		return nil, err
	}

	// ── 2. Account Resolution ─────────────────────────────────────────────

	// Flexible login: the identifier may be an email or a login name.
	user, err := service.users.FindByEmail(ctx, input.Identifier)
	if err != nil {
		user, err = service.users.FindByLogin(ctx, input.Identifier)
	}

	if err != nil {
		// The attempt is recorded before the delay so a crash between the
		// two never loses a failure.
		if _, rerr := service.lockout.RecordFailure(ctx, input.Identifier); rerr != nil {
			ctxutil.GetLogger(ctx).ErrorContext(ctx, "login_failure_record_failed", slog.Any("error", rerr))
		}
		service.padLatency(ctx, start, true)
		return nil, apperr.UnauthorizedCode(apperr.CodeInvalidCredentials, "Invalid login credentials")
	}

	// ── 3. Credential Verification ────────────────────────────────────────

	if !user.IsActive || !sec.CheckPassword(input.Password, user.PasswordHash) {
		if _, rerr := service.lockout.RecordFailure(ctx, input.Identifier); rerr != nil {
			ctxutil.GetLogger(ctx).ErrorContext(ctx, "login_failure_record_failed", slog.Any("error", rerr))
		}
		service.padLatency(ctx, start, true)
		return nil, apperr.UnauthorizedCode(apperr.CodeInvalidCredentials, "Invalid login credentials")
	}

	// ── 4. Success Path ───────────────────────────────────────────────────

	if err := service.lockout.Reset(ctx, input.Identifier); err != nil {
		return nil, fmt.Errorf("login_lockout_reset_failed: %w", err)
	}

	// A TOTP-enabled account receives only the limited pending credential.
	if user.TOTPEnabled {
		result, err := service.issuePending(user, input.Fingerprint)
		service.padLatency(ctx, start, false)
		return result, err
	}

	result, err := service.issuePair(ctx, user, input.Fingerprint)
	service.padLatency(ctx, start, false)
	return result, err
}

/*
CompleteTwoFALogin exchanges a valid 2fa_pending credential plus a correct
TOTP code for a full token pair.
*/
func (service *Service) CompleteTwoFALogin(ctx context.Context, userID, code, fingerprint string) (*LoginResult, error) {

	if err := service.totp.Verify(ctx, userID, code); err != nil {
		return nil, err
	}

	user, err := service.users.FindByID(ctx, userID)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid credentials")
	}

	return service.issuePair(ctx, user, fingerprint)
}

/*
Refresh rotates a refresh token into a new pair.

# Flow

 1. Verify the refresh token's signature and expiry.
 2. Reject revoked tokens and logout-all boundary violations.
 3. Enforce fingerprint binding when the token carries one.
 4. Revoke the presented token (rotation) and issue a fresh pair.
*/
func (service *Service) Refresh(ctx context.Context, refreshToken, fingerprint string) (*LoginResult, error) {

	// ── 1. Structural Validation ──────────────────────────────────────────

	claims, err := service.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	// ── 2. Revocation ─────────────────────────────────────────────────────

	revoked, err := service.revocations.IsTokenRevoked(ctx, claims.ID, claims.UserID, claims.IssuedAt.Time)
	if err != nil {
		return nil, fmt.Errorf("refresh_revocation_check_failed: %w", err)
	}
	if revoked {
		return nil, apperr.UnauthorizedCode(apperr.CodeTokenRevoked, "Token has been revoked")
	}

	// ── 3. Fingerprint Binding ────────────────────────────────────────────

	if claims.Fingerprint != "" {
		if fingerprint == "" || sec.FingerprintHash(fingerprint) != claims.Fingerprint {
			return nil, apperr.UnauthorizedCode(apperr.CodeFingerprintMismatch, "Token is bound to a different device")
		}
	}

	// ── 4. Rotation ───────────────────────────────────────────────────────

	user, err := service.users.FindByID(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		return nil, apperr.Unauthorized("User not found or suspended")
	}

	if err := service.revocations.Revoke(ctx, claims.ID, claims.UserID); err != nil {
		return nil, fmt.Errorf("refresh_rotation_revoke_failed: %w", err)
	}

	return service.issuePair(ctx, user, fingerprint)
}

/*
Logout revokes the presented token pair.

Idempotent: an already-invalid refresh token is treated as logged out.
*/
func (service *Service) Logout(ctx context.Context, accessClaims *sec.AuthClaims, refreshToken string) error {

	// 1. Strike the access token so it dies before its natural expiry
	if err := service.revocations.Revoke(ctx, accessClaims.ID, accessClaims.UserID); err != nil {
		return fmt.Errorf("logout_access_revoke_failed: %w", err)
	}

	// 2. Strike the refresh token if the client presented a valid one
	if refreshToken == "" {
		return nil
	}

	refreshClaims, err := service.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		// Already expired or malformed: nothing left to revoke.
		return nil
	}

	if err := service.revocations.Revoke(ctx, refreshClaims.ID, refreshClaims.UserID); err != nil {
		return fmt.Errorf("logout_refresh_revoke_failed: %w", err)
	}

	return nil
}

/*
LogoutAll invalidates every token issued to the user up to now.

Returns:
  - int: the number of live refresh sessions that were struck.
*/
func (service *Service) LogoutAll(ctx context.Context, userID string) (int, error) {

	count, err := service.revocations.RevokeAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("logout_all_failed: %w", err)
	}

	return count, nil
}

/*
Me returns the sanitized projection of the authenticated account.
*/
func (service *Service) Me(ctx context.Context, userID string) (*User, error) {
	return service.users.FindByID(ctx, userID)
}

/*
IssueSession mints tokens for an externally authenticated user, e.g. after a
federated login. Accounts with TOTP enabled still have to pass the second
factor and receive only the pending credential.
*/
func (service *Service) IssueSession(ctx context.Context, user *User, fingerprint string) (*LoginResult, error) {

	if !user.IsActive {
		return nil, apperr.Unauthorized("This account is suspended")
	}

	if user.TOTPEnabled {
		return service.issuePending(user, fingerprint)
	}

	return service.issuePair(ctx, user, fingerprint)
}

// # Token Issuance

// issuePair mints a full access+refresh pair, registers the refresh token in
// the session set, and assembles the client bundle.
func (service *Service) issuePair(ctx context.Context, user *User, fingerprint string) (*LoginResult, error) {

	if !service.cfg.EnforceFingerprint {
		fingerprint = ""
	}

	access, err := service.tokens.CreateAccessToken(user.ID, string(user.Role), fingerprint, nil)
	if err != nil {
		return nil, fmt.Errorf("token_issue_access_failed: %w", err)
	}

	refresh, err := service.tokens.CreateRefreshToken(user.ID, string(user.Role), fingerprint)
	if err != nil {
		return nil, fmt.Errorf("token_issue_refresh_failed: %w", err)
	}

	if err := service.revocations.Track(ctx, user.ID, refresh.TokenID); err != nil {
		return nil, fmt.Errorf("token_track_failed: %w", err)
	}

	return &LoginResult{
		TokenPair: TokenPair{
			AccessToken:  access.Token,
			RefreshToken: refresh.Token,
			TokenType:    "Bearer",
			ExpiresIn:    access.ExpiresIn(),
		},
		User: user,
	}, nil
}

// issuePending mints the restricted 2fa_pending credential: no refresh token,
// expires_in reported as zero so clients treat it as non-renewable.
func (service *Service) issuePending(user *User, fingerprint string) (*LoginResult, error) {

	if !service.cfg.EnforceFingerprint {
		fingerprint = ""
	}

	pending, err := service.tokens.CreatePendingToken(user.ID, fingerprint, service.cfg.PendingTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token_issue_pending_failed: %w", err)
	}

	return &LoginResult{
		TokenPair: TokenPair{
			AccessToken: pending.Token,
			TokenType:   "Bearer",
			ExpiresIn:   0,
			Requires2FA: true,
		},
		User: user,
	}, nil
}

// # Timing Defense

// padLatency blocks until at least the configured floor has elapsed since
// start, plus random jitter on the failure path. This pads the minimum only;
// it does not equalize variance above the floor.
func (service *Service) padLatency(ctx context.Context, start time.Time, failed bool) {

	target := service.cfg.MinLoginLatency
	if failed {
		target += rand.N(failureJitterMax)
	}

	remaining := target - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// normalizeEmail folds an address for storage and lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
