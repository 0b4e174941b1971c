// Copyright (c) 2026 CyberVPN. All rights reserved.

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/constants"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/sec"
)

// # TOTP Second Factor

// pendingSecretTTL bounds how long an unconfirmed enrollment secret survives.
// A user who abandons setup reverts to disabled without cleanup work.
const pendingSecretTTL = 10 * time.Minute

// TwoFAConfig holds the 2FA policy, injected from config.
type TwoFAConfig struct {
	Issuer         string        // Shown in authenticator apps.
	ReauthValidity time.Duration // How long a password re-check stays fresh.
	AttemptLimit   int           // Failed codes tolerated per window per entry point.
	AttemptWindow  time.Duration // The rolling window.
}

// TotpService drives the per-user 2FA state machine:
//
//	disabled → pending_setup → enabled → disabled
//
// The enabled secret lives on the user row; the pending secret, reauth
// grants, attempt budgets, and recovery code hashes live in Redis.
type TotpService struct {
	users  UserRepository
	client *redis.Client
	cfg    TwoFAConfig
}

// NewTotpService constructs the service.
func NewTotpService(users UserRepository, client *redis.Client, cfg TwoFAConfig) *TotpService {
	return &TotpService{users: users, client: client, cfg: cfg}
}

/*
Reauth verifies the user's password and records a short-lived grant that
unlocks 2FA setup.

Parameters:
  - ctx: context.Context
  - userID: the authenticated caller.
  - password: the password to re-check.

Returns:
  - int: grant validity in minutes, echoed to the client.
  - error: [apperr.Unauthorized] on a wrong password.
*/
func (service *TotpService) Reauth(ctx context.Context, userID, password string) (int, error) {

	user, err := service.users.FindByID(ctx, userID)
	if err != nil {
		return 0, apperr.Unauthorized("Invalid credentials")
	}

	if !sec.CheckPassword(password, user.PasswordHash) {
		return 0, apperr.Unauthorized("Invalid credentials")
	}

	key := constants.RedisPrefixTwoFAReauth + userID
	if err := service.client.Set(ctx, key, "1", service.cfg.ReauthValidity).Err(); err != nil {
		return 0, fmt.Errorf("twofa_reauth_store_failed: %w", err)
	}

	return int(service.cfg.ReauthValidity.Minutes()), nil
}

/*
Setup begins TOTP enrollment for the user.

Requires a fresh reauth grant. Fails with ALREADY_ENABLED when 2FA is on.
The generated secret stays pending in Redis until the first successful
verification confirms the authenticator app is configured.

Returns:
  - string: the base32 shared secret.
  - string: the otpauth:// provisioning URI for the QR code.
  - error: REAUTH_REQUIRED, ALREADY_ENABLED, or storage failures.
*/
func (service *TotpService) Setup(ctx context.Context, userID string) (string, string, error) {

	// 1. A fresh password re-check is mandatory
	_, err := service.client.Get(ctx, constants.RedisPrefixTwoFAReauth+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", "", apperr.UnauthorizedCode(apperr.CodeReauthRequired, "Recent password verification required")
		}
		return "", "", fmt.Errorf("twofa_reauth_check_failed: %w", err)
	}

	// 2. Idempotence guard
	user, err := service.users.FindByID(ctx, userID)
	if err != nil {
		return "", "", fmt.Errorf("twofa_setup_user_lookup_failed: %w", err)
	}
	if user.TOTPEnabled {
		return "", "", apperr.BadRequest(apperr.CodeAlreadyEnabled, "Two-factor authentication is already enabled")
	}

	// 3. Generate the pending secret
	secret, err := sec.GenerateTOTPSecret()
	if err != nil {
		return "", "", fmt.Errorf("twofa_secret_generate_failed: %w", err)
	}

	key := constants.RedisPrefixTwoFAPending + userID
	if err := service.client.Set(ctx, key, secret, pendingSecretTTL).Err(); err != nil {
		return "", "", fmt.Errorf("twofa_pending_store_failed: %w", err)
	}

	uri := sec.TOTPProvisioningURI(service.cfg.Issuer, user.Login, secret)

	return secret, uri, nil
}

/*
Verify checks a code against the pending or active secret.

During setup, the first successful verification flips the state machine from
pending_setup to enabled and persists the secret on the user row. After
setup, it verifies against the active secret (used to complete a 2FA login).

Returns:
  - error: TOO_MANY_ATTEMPTS (429) once the failure budget is spent,
    OTP-style invalid-code errors, NOT_ENABLED when nothing is pending
    or active.
*/
func (service *TotpService) Verify(ctx context.Context, userID, code string) error {

	if err := service.checkAttemptBudget(ctx, "verify", userID); err != nil {
		return err
	}

	// 1. A pending secret takes priority: this is the setup confirmation
	pendingKey := constants.RedisPrefixTwoFAPending + userID
	secret, err := service.client.Get(ctx, pendingKey).Result()

	switch {
	case err == nil:
		ok, verr := sec.VerifyTOTP(secret, code, time.Now())
		if verr != nil {
			return fmt.Errorf("twofa_verify_failed: %w", verr)
		}
		if !ok {
			return service.recordFailure(ctx, "verify", userID)
		}

		// 2. Promote pending → enabled
		user, uerr := service.users.FindByID(ctx, userID)
		if uerr != nil {
			return fmt.Errorf("twofa_enable_user_lookup_failed: %w", uerr)
		}

		user.TOTPSecret = secret
		user.TOTPEnabled = true
		if uerr := service.users.Update(ctx, user); uerr != nil {
			return fmt.Errorf("twofa_enable_persist_failed: %w", uerr)
		}

		if derr := service.client.Del(ctx, pendingKey).Err(); derr != nil {
			return fmt.Errorf("twofa_pending_cleanup_failed: %w", derr)
		}

		service.resetAttempts(ctx, "verify", userID)
		return nil

	case errors.Is(err, redis.Nil):
		// 3. No enrollment in flight: verify against the active secret
		user, uerr := service.users.FindByID(ctx, userID)
		if uerr != nil {
			return fmt.Errorf("twofa_verify_user_lookup_failed: %w", uerr)
		}
		if !user.TOTPEnabled || user.TOTPSecret == "" {
			return apperr.BadRequest(apperr.CodeNotEnabled, "Two-factor authentication is not enabled")
		}

		ok, verr := sec.VerifyTOTP(user.TOTPSecret, code, time.Now())
		if verr != nil {
			return fmt.Errorf("twofa_verify_failed: %w", verr)
		}
		if !ok {
			return service.recordFailure(ctx, "verify", userID)
		}
		service.resetAttempts(ctx, "verify", userID)
		return nil

	default:
		return fmt.Errorf("twofa_pending_lookup_failed: %w", err)
	}
}

/*
Validate is a side-effect-free code check against the active secret.

Used by flows that gate on 2FA without changing state. Rate limiting still
applies: repeated failures spend the validate budget.

Returns:
  - bool: whether the code is currently valid.
  - error: NOT_ENABLED when 2FA is off, TOO_MANY_ATTEMPTS when the budget
    is spent.
*/
func (service *TotpService) Validate(ctx context.Context, userID, code string) (bool, error) {

	if err := service.checkAttemptBudget(ctx, "validate", userID); err != nil {
		return false, err
	}

	user, err := service.users.FindByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("twofa_validate_user_lookup_failed: %w", err)
	}
	if !user.TOTPEnabled || user.TOTPSecret == "" {
		return false, apperr.BadRequest(apperr.CodeNotEnabled, "Two-factor authentication is not enabled")
	}

	ok, err := sec.VerifyTOTP(user.TOTPSecret, code, time.Now())
	if err != nil {
		return false, fmt.Errorf("twofa_validate_failed: %w", err)
	}

	if !ok {
		if rerr := service.recordFailure(ctx, "validate", userID); rerr != nil && !apperr.HasCode(rerr, apperr.CodeOTPInvalid) {
			return false, rerr
		}
		return false, nil
	}

	service.resetAttempts(ctx, "validate", userID)
	return true, nil
}

/*
Disable turns 2FA off.

Both the password and a current code are required, each checked
independently, each able to fail with Unauthorized on its own. On success
the secret is cleared and exactly [sec.RecoveryCodeCount] single-use
recovery codes are returned; their SHA-256 hashes are retained server-side.

Returns:
  - []string: the recovery codes, shown to the user exactly once.
  - error: NOT_ENABLED, Unauthorized, TOO_MANY_ATTEMPTS, or storage failures.
*/
func (service *TotpService) Disable(ctx context.Context, userID, password, code string) ([]string, error) {

	if err := service.checkAttemptBudget(ctx, "disable", userID); err != nil {
		return nil, err
	}

	user, err := service.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("twofa_disable_user_lookup_failed: %w", err)
	}
	if !user.TOTPEnabled || user.TOTPSecret == "" {
		return nil, apperr.BadRequest(apperr.CodeNotEnabled, "Two-factor authentication is not enabled")
	}

	// 1. Password check, independent of the code check
	if !sec.CheckPassword(password, user.PasswordHash) {
		if rerr := service.recordFailure(ctx, "disable", userID); rerr != nil && !apperr.HasCode(rerr, apperr.CodeOTPInvalid) {
			return nil, rerr
		}
		return nil, apperr.Unauthorized("Invalid credentials")
	}

	// 2. Current code check
	ok, err := sec.VerifyTOTP(user.TOTPSecret, code, time.Now())
	if err != nil {
		return nil, fmt.Errorf("twofa_disable_verify_failed: %w", err)
	}
	if !ok {
		if rerr := service.recordFailure(ctx, "disable", userID); rerr != nil && !apperr.HasCode(rerr, apperr.CodeOTPInvalid) {
			return nil, rerr
		}
		return nil, apperr.Unauthorized("Invalid two-factor code")
	}

	// 3. Clear the secret and flip the state machine
	user.TOTPSecret = ""
	user.TOTPEnabled = false
	if err := service.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("twofa_disable_persist_failed: %w", err)
	}

	// 4. Mint the recovery batch; only hashes are retained
	recoveryCodes, err := sec.GenerateRecoveryCodes()
	if err != nil {
		return nil, fmt.Errorf("twofa_recovery_generate_failed: %w", err)
	}

	hashes := make([]interface{}, len(recoveryCodes))
	for i, rc := range recoveryCodes {
		sum := sha256.Sum256([]byte(rc))
		hashes[i] = hex.EncodeToString(sum[:])
	}

	recoveryKey := constants.RedisPrefixTwoFARecovery + userID
	pipe := service.client.TxPipeline()
	pipe.Del(ctx, recoveryKey)
	pipe.SAdd(ctx, recoveryKey, hashes...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("twofa_recovery_store_failed: %w", err)
	}

	service.resetAttempts(ctx, "disable", userID)

	return recoveryCodes, nil
}

/*
Status reports where the user sits in the 2FA state machine.
*/
func (service *TotpService) Status(ctx context.Context, userID string) (TwoFAStatus, error) {

	user, err := service.users.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("twofa_status_user_lookup_failed: %w", err)
	}
	if user.TOTPEnabled {
		return TwoFAStatusEnabled, nil
	}

	_, err = service.client.Get(ctx, constants.RedisPrefixTwoFAPending+userID).Result()
	if err == nil {
		return TwoFAStatusPendingSetup, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("twofa_status_pending_lookup_failed: %w", err)
	}

	return TwoFAStatusDisabled, nil
}

// # Attempt Budget

// checkAttemptBudget rejects the call once the entry point's failure budget
// is spent for the window.
func (service *TotpService) checkAttemptBudget(ctx context.Context, op, userID string) error {

	key := constants.RedisPrefixTwoFAAttempts + op + ":" + userID

	count, err := service.client.Get(ctx, key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("twofa_budget_check_failed: %w", err)
	}

	if count >= service.cfg.AttemptLimit {
		return apperr.TooManyAttempts(apperr.CodeTooManyAttempts, "Too many failed attempts. Try again later.")
	}

	return nil
}

// recordFailure spends one unit of the entry point's budget and returns the
// caller-facing invalid-code error.
func (service *TotpService) recordFailure(ctx context.Context, op, userID string) error {

	key := constants.RedisPrefixTwoFAAttempts + op + ":" + userID

	count, err := service.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("twofa_failure_record_failed: %w", err)
	}
	if count == 1 {
		if err := service.client.Expire(ctx, key, service.cfg.AttemptWindow).Err(); err != nil {
			return fmt.Errorf("twofa_failure_expire_failed: %w", err)
		}
	}

	return apperr.BadRequest(apperr.CodeOTPInvalid, "Invalid two-factor code")
}

// resetAttempts clears the failure budget after a success.
func (service *TotpService) resetAttempts(ctx context.Context, op, userID string) {
	// Best effort: a stale counter only tightens the budget, never loosens it.
	_ = service.client.Del(ctx, constants.RedisPrefixTwoFAAttempts+op+":"+userID).Err()
}
