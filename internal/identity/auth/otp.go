// Copyright (c) 2026 CyberVPN. All rights reserved.

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/constants"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/sec"
	"github.com/Beep206/CyberVPN-sub000/pkg/uuid"
)

// # One-Time Codes

// OtpConfig holds the code policy, injected from config.
type OtpConfig struct {
	Length       int           // Digits per code.
	Expiry       time.Duration // Code lifetime.
	MaxAttempts  int           // Verification budget per code.
	ResendLimit  int           // Issues allowed per rolling window per email.
	ResendWindow time.Duration // The rolling window.
}

// OtpService issues and verifies numeric one-time codes for email
// verification and password reset.
//
// Codes live in Postgres (they are part of the account's audit trail); the
// resend limiter lives in Redis.
type OtpService struct {
	codes  OtpRepository
	client *redis.Client
	cfg    OtpConfig
}

// NewOtpService constructs the service.
func NewOtpService(codes OtpRepository, client *redis.Client, cfg OtpConfig) *OtpService {
	return &OtpService{codes: codes, client: client, cfg: cfg}
}

/*
Issue creates a fresh code for (user, purpose), superseding any prior active
code so exactly one is ever current.

Parameters:
  - ctx: context.Context
  - userID: the target account.
  - purpose: email_verification or password_reset.

Returns:
  - string: the plaintext code, handed to the email dispatcher exactly once.
  - error: generation or storage failures.
*/
func (service *OtpService) Issue(ctx context.Context, userID string, purpose OtpPurpose) (string, error) {

	// 1. Close out the previous code, if any
	if err := service.codes.InvalidateActive(ctx, userID, purpose); err != nil {
		return "", fmt.Errorf("otp_supersede_failed: %w", err)
	}

	// 2. Generate and persist the replacement
	plaintext, err := sec.GenerateNumericOTP(service.cfg.Length)
	if err != nil {
		return "", fmt.Errorf("otp_generate_failed: %w", err)
	}

	code := &OtpCode{
		ID:          uuid.New(),
		UserID:      userID,
		Purpose:     purpose,
		Code:        plaintext,
		ExpiresAt:   time.Now().Add(service.cfg.Expiry),
		MaxAttempts: service.cfg.MaxAttempts,
	}

	if err := service.codes.Create(ctx, code); err != nil {
		return "", fmt.Errorf("otp_persist_failed: %w", err)
	}

	return plaintext, nil
}

/*
Verify checks a submitted code against the current one for (user, purpose).

The attempts counter is incremented on every call, match or not, and the code
fails closed once the budget is spent even if the submission is correct.

Parameters:
  - ctx: context.Context
  - userID: the target account.
  - purpose: email_verification or password_reset.
  - submitted: the code entered by the user.

Returns:
  - error: nil on successful consumption; otherwise one of OTP_NOT_FOUND,
    OTP_EXHAUSTED (429), OTP_EXPIRED, OTP_INVALID.
*/
func (service *OtpService) Verify(ctx context.Context, userID string, purpose OtpPurpose, submitted string) error {

	// 1. Load the current code
	code, err := service.codes.FindCurrent(ctx, userID, purpose)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeNotFound) {
			return apperr.BadRequest(apperr.CodeOTPNotFound, "No active verification code")
		}
		return fmt.Errorf("otp_lookup_failed: %w", err)
	}

	// 2. Fail closed once the budget is already spent
	if code.Attempts >= code.MaxAttempts {
		return apperr.TooManyAttempts(apperr.CodeOTPExhausted, "Verification attempts exhausted. Request a new code.")
	}

	// 3. Every call consumes one attempt, correct or not
	if err := service.codes.IncrementAttempts(ctx, code.ID); err != nil {
		return fmt.Errorf("otp_attempt_record_failed: %w", err)
	}

	// 4. Expiry before equality so an expired match is still reported as expired
	if time.Now().After(code.ExpiresAt) {
		return apperr.BadRequest(apperr.CodeOTPExpired, "Verification code has expired")
	}

	if subtle.ConstantTimeCompare([]byte(code.Code), []byte(submitted)) != 1 {
		return apperr.BadRequest(apperr.CodeOTPInvalid, "Invalid verification code")
	}

	// 5. Consume exactly once
	if err := service.codes.MarkVerified(ctx, code.ID); err != nil {
		return fmt.Errorf("otp_consume_failed: %w", err)
	}

	return nil
}

/*
CheckResendBudget enforces the rolling per-email issue limit.

Parameters:
  - ctx: context.Context
  - email: the destination address.

Returns:
  - error: [apperr.RateLimited] once the window's budget is spent.
*/
func (service *OtpService) CheckResendBudget(ctx context.Context, email string) error {

	key := constants.RedisPrefixOTPResend + strings.ToLower(strings.TrimSpace(email))

	// INCR then set the window on the first hit
	count, err := service.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("otp_resend_incr_failed: %w", err)
	}
	if count == 1 {
		if err := service.client.Expire(ctx, key, service.cfg.ResendWindow).Err(); err != nil {
			return fmt.Errorf("otp_resend_expire_failed: %w", err)
		}
	}

	if int(count) > service.cfg.ResendLimit {
		retryAfter := int(service.cfg.ResendWindow.Seconds())
		if ttl, err := service.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			retryAfter = int(ttl.Seconds())
		} else if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("otp_resend_ttl_failed: %w", err)
		}
		return apperr.RateLimited(retryAfter)
	}

	return nil
}
