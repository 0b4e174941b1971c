// Copyright (c) 2026 CyberVPN. All rights reserved.

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beep206/CyberVPN-sub000/internal/identity/auth"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
)

func newOtpService(t *testing.T, repo auth.OtpRepository) (*auth.OtpService, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	service := auth.NewOtpService(repo, client, auth.OtpConfig{
		Length:       6,
		Expiry:       24 * time.Hour,
		MaxAttempts:  5,
		ResendLimit:  3,
		ResendWindow: time.Hour,
	})

	return service, mr
}

/*
TestOtpService_IssueAndVerify verifies the happy path: issue, verify with
the right code, and reject a replayed consumption.
*/
func TestOtpService_IssueAndVerify(t *testing.T) {
	repo := newFakeOtpRepo()
	service, _ := newOtpService(t, repo)
	ctx := context.Background()

	code, err := service.Issue(ctx, "user-1", auth.OtpPurposeEmailVerification)
	require.NoError(t, err)
	assert.Len(t, code, 6)

	require.NoError(t, service.Verify(ctx, "user-1", auth.OtpPurposeEmailVerification, code))

	// The consumed code is gone; a second verification finds nothing
	err = service.Verify(ctx, "user-1", auth.OtpPurposeEmailVerification, code)
	assert.True(t, apperr.HasCode(err, apperr.CodeOTPNotFound))
}

/*
TestOtpService_IssueSupersedes verifies that issuing a second code expires
the first in place.
*/
func TestOtpService_IssueSupersedes(t *testing.T) {
	repo := newFakeOtpRepo()
	service, _ := newOtpService(t, repo)
	ctx := context.Background()

	first, err := service.Issue(ctx, "user-1", auth.OtpPurposeEmailVerification)
	require.NoError(t, err)

	second, err := service.Issue(ctx, "user-1", auth.OtpPurposeEmailVerification)
	require.NoError(t, err)

	// The first code is expired even when the digits happen to match
	if first != second {
		err = service.Verify(ctx, "user-1", auth.OtpPurposeEmailVerification, first)
		assert.True(t, apperr.HasCode(err, apperr.CodeOTPInvalid) || apperr.HasCode(err, apperr.CodeOTPExpired))
	}

	require.NoError(t, service.Verify(ctx, "user-1", auth.OtpPurposeEmailVerification, second))
}

/*
TestOtpService_WrongCode verifies that a mismatch reports OTP_INVALID and
consumes one attempt.
*/
func TestOtpService_WrongCode(t *testing.T) {
	repo := newFakeOtpRepo()
	service, _ := newOtpService(t, repo)
	ctx := context.Background()

	code, err := service.Issue(ctx, "user-1", auth.OtpPurposeEmailVerification)
	require.NoError(t, err)

	err = service.Verify(ctx, "user-1", auth.OtpPurposeEmailVerification, "000000")
	assert.True(t, apperr.HasCode(err, apperr.CodeOTPInvalid))

	// The right code still works within the budget
	require.NoError(t, service.Verify(ctx, "user-1", auth.OtpPurposeEmailVerification, code))
}

/*
TestOtpService_AttemptBudget verifies the fail-closed exhaustion rule: once
five attempts are spent, even the correct code is rejected with a 429.
*/
func TestOtpService_AttemptBudget(t *testing.T) {
	repo := newFakeOtpRepo()
	service, _ := newOtpService(t, repo)
	ctx := context.Background()

	code, err := service.Issue(ctx, "user-1", auth.OtpPurposeEmailVerification)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		err = service.Verify(ctx, "user-1", auth.OtpPurposeEmailVerification, "000000")
		assert.True(t, apperr.HasCode(err, apperr.CodeOTPInvalid))
	}

	err = service.Verify(ctx, "user-1", auth.OtpPurposeEmailVerification, code)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeOTPExhausted))

	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, 429, appError.HTTPStatus)
}

/*
TestOtpService_Expired verifies that a stale code reports OTP_EXPIRED, not a
generic mismatch.
*/
func TestOtpService_Expired(t *testing.T) {
	repo := newFakeOtpRepo()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	service := auth.NewOtpService(repo, client, auth.OtpConfig{
		Length:       6,
		Expiry:       -time.Minute, // already expired at issue time
		MaxAttempts:  5,
		ResendLimit:  3,
		ResendWindow: time.Hour,
	})

	ctx := context.Background()
	code, err := service.Issue(ctx, "user-1", auth.OtpPurposeEmailVerification)
	require.NoError(t, err)

	err = service.Verify(ctx, "user-1", auth.OtpPurposeEmailVerification, code)
	assert.True(t, apperr.HasCode(err, apperr.CodeOTPExpired))
}

/*
TestOtpService_PurposeIsolation verifies that a password-reset code can
never consume an email-verification slot.
*/
func TestOtpService_PurposeIsolation(t *testing.T) {
	repo := newFakeOtpRepo()
	service, _ := newOtpService(t, repo)
	ctx := context.Background()

	resetCode, err := service.Issue(ctx, "user-1", auth.OtpPurposePasswordReset)
	require.NoError(t, err)

	err = service.Verify(ctx, "user-1", auth.OtpPurposeEmailVerification, resetCode)
	assert.True(t, apperr.HasCode(err, apperr.CodeOTPNotFound))

	require.NoError(t, service.Verify(ctx, "user-1", auth.OtpPurposePasswordReset, resetCode))
}

/*
TestOtpService_ResendBudget verifies the rolling per-email limiter and its
recovery after the window elapses.
*/
func TestOtpService_ResendBudget(t *testing.T) {
	repo := newFakeOtpRepo()
	service, mr := newOtpService(t, repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, service.CheckResendBudget(ctx, "neo@example.com"))
	}

	err := service.CheckResendBudget(ctx, "neo@example.com")
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, apperr.CodeRateLimited, appError.Code)
	assert.Greater(t, appError.RetryAfterSeconds, 0)

	// Case variants share the budget
	assert.Error(t, service.CheckResendBudget(ctx, "NEO@example.com"))

	mr.FastForward(2 * time.Hour)
	assert.NoError(t, service.CheckResendBudget(ctx, "neo@example.com"))
}
