// Copyright (c) 2026 CyberVPN. All rights reserved.

package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/ctxutil"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/sec"
	"github.com/Beep206/CyberVPN-sub000/pkg/loginname"
	"github.com/Beep206/CyberVPN-sub000/pkg/uuid"
)

// Account lifecycle flows: registration, email verification, magic links,
// password recovery. Session flows live in service.go.

// RegisterInput defines a self-service signup request.
type RegisterInput struct {
	Login    string
	Email    string
	Password string
}

/*
Register creates an inactive, unverified account and dispatches the
email-verification OTP.

The account cannot log in until VerifyOTP activates it.
*/
func (service *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {

	// ── 1. Uniqueness ─────────────────────────────────────────────────────

	if _, err := service.users.FindByLogin(ctx, input.Login); err == nil {
		return nil, apperr.Conflict("An account with this login already exists")
	}
	if _, err := service.users.FindByEmail(ctx, input.Email); err == nil {
		return nil, apperr.Conflict("An account with this email already exists")
	}

	// ── 2. Account Creation ───────────────────────────────────────────────

	hash, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("register_hash_failed: %w", err)
	}

	user := &User{
		ID:           uuid.New(),
		Login:        input.Login,
		Email:        normalizeEmail(input.Email),
		PasswordHash: hash,
		Role:         sec.RoleMember,
	}

	if err := service.users.Create(ctx, user); err != nil {
		return nil, err
	}

	// ── 3. Verification Challenge ─────────────────────────────────────────

	code, err := service.otp.Issue(ctx, user.ID, OtpPurposeEmailVerification)
	if err != nil {
		return nil, fmt.Errorf("register_otp_issue_failed: %w", err)
	}

	service.notifier.DispatchOTPEmail(ctx, user.Email, code)

	return user, nil
}

/*
VerifyOTP consumes an email-verification code, activates the account,
provisions the VPN-side user, and issues the first token pair.

Provisioning failures are logged and retried out-of-band; they never block
activation.
*/
func (service *Service) VerifyOTP(ctx context.Context, email, code, fingerprint string) (*LoginResult, error) {

	user, err := service.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperr.BadRequest(apperr.CodeOTPNotFound, "No verification code is active for this account")
	}

	if err := service.otp.Verify(ctx, user.ID, OtpPurposeEmailVerification, code); err != nil {
		return nil, err
	}

	if !user.IsEmailVerified {
		user.IsActive = true
		user.IsEmailVerified = true
		if err := service.users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("verify_otp_activate_failed: %w", err)
		}

		if perr := service.provisioner.EnsureUser(ctx, user.ID, user.Login); perr != nil {
			ctxutil.GetLogger(ctx).ErrorContext(ctx, "vpn_provisioning_failed",
				slog.String("user_id", user.ID),
				slog.Any("error", perr))
		}
	}

	if user.TOTPEnabled {
		return service.issuePending(user, fingerprint)
	}

	return service.issuePair(ctx, user, fingerprint)
}

/*
ResendOTP issues a fresh email-verification code, subject to the per-email
resend budget.
*/
func (service *Service) ResendOTP(ctx context.Context, email string) error {

	user, err := service.users.FindByEmail(ctx, email)
	if err != nil {
		return apperr.NotFound("account")
	}

	if user.IsEmailVerified {
		return apperr.BadRequest(apperr.CodeAlreadyVerified, "This account is already verified")
	}

	if err := service.otp.CheckResendBudget(ctx, normalizeEmail(email)); err != nil {
		return err
	}

	code, err := service.otp.Issue(ctx, user.ID, OtpPurposeEmailVerification)
	if err != nil {
		return fmt.Errorf("resend_otp_issue_failed: %w", err)
	}

	service.notifier.DispatchOTPEmail(ctx, user.Email, code)

	return nil
}

/*
RequestMagicLink generates a single-use login token for the address.

Always reports success for well-formed addresses: the email is only
dispatched when a matching account exists, so the endpoint does not reveal
which addresses are registered. Rate-limit violations are the one visible
failure.
*/
func (service *Service) RequestMagicLink(ctx context.Context, email, ipAddress string) error {

	token, err := service.magic.Generate(ctx, email, ipAddress)
	if err != nil {
		return err
	}

	if _, err := service.users.FindByEmail(ctx, email); err != nil {
		// Unknown address: the token sits in Redis until its TTL expires,
		// but no mail carries it anywhere.
		return nil
	}

	service.notifier.DispatchMagicLinkEmail(ctx, normalizeEmail(email), token)

	return nil
}

/*
VerifyMagicLink consumes a magic-link token exactly once and logs the owner
in, creating the account on first use.

Auto-registered accounts are active and email-verified immediately: clicking
the link proves mailbox ownership.
*/
func (service *Service) VerifyMagicLink(ctx context.Context, token, fingerprint string) (*LoginResult, error) {

	// ── 1. Single-Use Consumption ─────────────────────────────────────────

	email, err := service.magic.ValidateAndConsume(ctx, token)
	if err != nil {
		return nil, err
	}
	if email == "" {
		return nil, apperr.BadRequest(apperr.CodeMagicLinkInvalid, "This link is invalid or has already been used")
	}

	// ── 2. Account Resolution ─────────────────────────────────────────────

	user, err := service.users.FindByEmail(ctx, email)
	if err != nil {
		user, err = service.autoRegister(ctx, email)
		if err != nil {
			return nil, err
		}
	}

	if !user.IsActive {
		return nil, apperr.Unauthorized("This account is suspended")
	}

	// ── 3. Token Issuance ─────────────────────────────────────────────────

	if user.TOTPEnabled {
		return service.issuePending(user, fingerprint)
	}

	return service.issuePair(ctx, user, fingerprint)
}

/*
ForgotPassword starts password recovery.

Always reports success so the endpoint cannot be used to probe which
addresses are registered. Internal failures, including the resend budget,
are logged and swallowed.
*/
func (service *Service) ForgotPassword(ctx context.Context, email string) {

	logger := ctxutil.GetLogger(ctx)

	user, err := service.users.FindByEmail(ctx, email)
	if err != nil {
		return
	}

	if err := service.otp.CheckResendBudget(ctx, normalizeEmail(email)); err != nil {
		logger.WarnContext(ctx, "password_reset_budget_exhausted", slog.String("email", normalizeEmail(email)))
		return
	}

	code, err := service.otp.Issue(ctx, user.ID, OtpPurposePasswordReset)
	if err != nil {
		logger.ErrorContext(ctx, "password_reset_otp_issue_failed", slog.Any("error", err))
		return
	}

	service.notifier.DispatchOTPEmail(ctx, user.Email, code)
}

/*
ResetPassword consumes a password-reset code and replaces the password.

Every existing session is revoked: a reset usually means the old credential
is suspected compromised.
*/
func (service *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {

	user, err := service.users.FindByEmail(ctx, email)
	if err != nil {
		return apperr.BadRequest(apperr.CodeOTPNotFound, "No reset code is active for this account")
	}

	if err := service.otp.Verify(ctx, user.ID, OtpPurposePasswordReset, code); err != nil {
		return err
	}

	hash, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("reset_password_hash_failed: %w", err)
	}

	if err := service.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	if _, err := service.revocations.RevokeAll(ctx, user.ID); err != nil {
		return fmt.Errorf("reset_password_revoke_failed: %w", err)
	}

	return nil
}

/*
DeleteAccount closes the caller's own account.

The row is soft-deleted so the audit trail survives, and every live session
is revoked so no issued token outlives the account.
*/
func (service *Service) DeleteAccount(ctx context.Context, userID string) error {

	if err := service.users.SoftDelete(ctx, userID); err != nil {
		return err
	}

	if _, err := service.revocations.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("delete_account_revoke_failed: %w", err)
	}

	return nil
}

// autoRegister provisions an account from a bare verified email address.
func (service *Service) autoRegister(ctx context.Context, email string) (*User, error) {

	login, err := EnsureUniqueLogin(ctx, service.users, loginname.FromEmail(email))
	if err != nil {
		return nil, err
	}

	// No password was ever chosen; the hash must never verify.
	hash, err := sec.UnusablePassword()
	if err != nil {
		return nil, fmt.Errorf("auto_register_hash_failed: %w", err)
	}

	user := &User{
		ID:              uuid.New(),
		Login:           login,
		Email:           normalizeEmail(email),
		PasswordHash:    hash,
		Role:            sec.RoleMember,
		IsActive:        true,
		IsEmailVerified: true,
	}

	if err := service.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if perr := service.provisioner.EnsureUser(ctx, user.ID, user.Login); perr != nil {
		ctxutil.GetLogger(ctx).ErrorContext(ctx, "vpn_provisioning_failed",
			slog.String("user_id", user.ID),
			slog.Any("error", perr))
	}

	return user, nil
}

// EnsureUniqueLogin returns candidate if it is free, otherwise appends a
// random numeric suffix until an unclaimed name is found.
func EnsureUniqueLogin(ctx context.Context, users UserRepository, candidate string) (string, error) {

	const maxLoginLength = 32

	if len(candidate) > maxLoginLength {
		candidate = candidate[:maxLoginLength]
	}

	if _, err := users.FindByLogin(ctx, candidate); err != nil {
		return candidate, nil
	}

	base := candidate
	if len(base) > maxLoginLength-5 {
		base = base[:maxLoginLength-5]
	}

	for attempt := 0; attempt < 5; attempt++ {
		suffix, err := sec.GenerateNumericOTP(4)
		if err != nil {
			return "", fmt.Errorf("login_suffix_failed: %w", err)
		}

		name := base + "_" + suffix
		if _, err := users.FindByLogin(ctx, name); err != nil {
			return name, nil
		}
	}

	return "", apperr.Conflict("Could not allocate a unique login name")
}
