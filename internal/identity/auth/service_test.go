// Copyright (c) 2026 CyberVPN. All rights reserved.

package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beep206/CyberVPN-sub000/internal/identity/auth"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/constants"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/sec"
	"github.com/Beep206/CyberVPN-sub000/pkg/uuid"
)

// serviceHarness wires a full Service over in-memory fakes and miniredis.
type serviceHarness struct {
	service     *auth.Service
	tokens      *sec.TokenService
	users       *fakeUserRepo
	codes       *fakeOtpRepo
	notifier    *fakeNotifier
	provisioner *fakeProvisioner
	totp        *auth.TotpService
	mr          *miniredis.Miniredis
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokens := sec.NewTokenServiceFromKeys(key, constants.AuthIssuer, 15*time.Minute, 720*time.Hour)

	users := newFakeUserRepo()
	codes := newFakeOtpRepo()
	notifier := &fakeNotifier{}
	provisioner := &fakeProvisioner{}

	lockout := auth.NewLockoutGuard(client, testPolicy)
	revocations := auth.NewRevocationRegistry(client, 720*time.Hour)
	otp := auth.NewOtpService(codes, client, auth.OtpConfig{
		Length:       6,
		Expiry:       24 * time.Hour,
		MaxAttempts:  5,
		ResendLimit:  3,
		ResendWindow: time.Hour,
	})
	magic := auth.NewMagicLinkService(client, auth.MagicLinkConfig{
		TTL:        15 * time.Minute,
		RateLimit:  3,
		RateWindow: time.Hour,
	})
	totp := auth.NewTotpService(users, client, auth.TwoFAConfig{
		Issuer:         "CyberVPN",
		ReauthValidity: 5 * time.Minute,
		AttemptLimit:   5,
		AttemptWindow:  15 * time.Minute,
	})

	service := auth.NewService(users, tokens, lockout, revocations, otp, magic, totp,
		notifier, provisioner, auth.ServiceConfig{
			MinLoginLatency:    10 * time.Millisecond,
			EnforceFingerprint: true,
			PendingTokenTTL:    5 * time.Minute,
		})

	return &serviceHarness{
		service:     service,
		tokens:      tokens,
		users:       users,
		codes:       codes,
		notifier:    notifier,
		provisioner: provisioner,
		totp:        totp,
		mr:          mr,
	}
}

// seedUser inserts an active, verified account and returns it.
func (h *serviceHarness) seedUser(t *testing.T, login, email, password string) *auth.User {
	t.Helper()

	hash, err := sec.HashPassword(password)
	require.NoError(t, err)

	user := &auth.User{
		ID:              uuid.New(),
		Login:           login,
		Email:           email,
		PasswordHash:    hash,
		Role:            sec.RoleMember,
		IsActive:        true,
		IsEmailVerified: true,
	}
	require.NoError(t, h.users.Create(context.Background(), user))
	return user
}

// # Login

/*
TestService_Login verifies password login by login name and by email, and
that the session carries a usable pair.
*/
func TestService_Login(t *testing.T) {
	h := newServiceHarness(t)
	h.seedUser(t, "trinity", "trinity@example.com", "s3cret-passw0rd")
	ctx := context.Background()

	for _, identifier := range []string{"trinity", "Trinity@Example.com"} {
		result, err := h.service.Login(ctx, auth.LoginInput{
			Identifier:  identifier,
			Password:    "s3cret-passw0rd",
			Fingerprint: "device-a",
		})
		require.NoError(t, err, "identifier %q", identifier)
		assert.Equal(t, "Bearer", result.TokenType)
		assert.NotEmpty(t, result.AccessToken)
		assert.NotEmpty(t, result.RefreshToken)
		assert.Greater(t, result.ExpiresIn, int64(0))
		assert.False(t, result.Requires2FA)

		claims, err := h.tokens.VerifyAccessToken(result.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, result.User.ID, claims.UserID)
	}
}

/*
TestService_LoginRejections verifies that a wrong password and an unknown
identifier fail with the same opaque error.
*/
func TestService_LoginRejections(t *testing.T) {
	h := newServiceHarness(t)
	h.seedUser(t, "trinity", "trinity@example.com", "s3cret-passw0rd")
	ctx := context.Background()

	_, badPassword := h.service.Login(ctx, auth.LoginInput{Identifier: "trinity", Password: "nope"})
	_, unknownUser := h.service.Login(ctx, auth.LoginInput{Identifier: "ghost", Password: "nope"})

	for _, err := range []error{badPassword, unknownUser} {
		require.Error(t, err)
		appError := apperr.As(err)
		require.NotNil(t, appError)
		assert.Equal(t, apperr.CodeInvalidCredentials, appError.Code)
		assert.Equal(t, "Invalid login credentials", appError.Message)
	}
}

/*
TestService_LoginSuspendedAccount verifies that a deactivated account is
indistinguishable from bad credentials.
*/
func TestService_LoginSuspendedAccount(t *testing.T) {
	h := newServiceHarness(t)
	user := h.seedUser(t, "trinity", "trinity@example.com", "s3cret-passw0rd")
	ctx := context.Background()

	user.IsActive = false
	require.NoError(t, h.users.Update(ctx, user))

	_, err := h.service.Login(ctx, auth.LoginInput{Identifier: "trinity", Password: "s3cret-passw0rd"})
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
}

/*
TestService_LoginLatencyFloor verifies that even an instant rejection is
held back to the configured floor.
*/
func TestService_LoginLatencyFloor(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	start := time.Now()
	_, err := h.service.Login(ctx, auth.LoginInput{Identifier: "ghost", Password: "nope"})
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

/*
TestService_LoginLockoutEscalation verifies that repeated failures lock the
identifier and that the lock fires before credential checking.
*/
func TestService_LoginLockoutEscalation(t *testing.T) {
	h := newServiceHarness(t)
	h.seedUser(t, "trinity", "trinity@example.com", "s3cret-passw0rd")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.service.Login(ctx, auth.LoginInput{Identifier: "trinity", Password: "nope"})
		assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
	}

	// Correct password no longer helps while the window holds
	_, err := h.service.Login(ctx, auth.LoginInput{Identifier: "trinity", Password: "s3cret-passw0rd"})
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, apperr.CodeAccountLocked, appError.Code)
	assert.Greater(t, appError.RetryAfterSeconds, 0)

	h.mr.FastForward(6 * time.Minute)

	result, err := h.service.Login(ctx, auth.LoginInput{Identifier: "trinity", Password: "s3cret-passw0rd"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
}

/*
TestService_LoginWith2FA verifies the pending hand-off: no refresh token,
then a full pair once the code clears.
*/
func TestService_LoginWith2FA(t *testing.T) {
	h := newServiceHarness(t)
	user := h.seedUser(t, "trinity", "trinity@example.com", "s3cret-passw0rd")
	ctx := context.Background()

	secret, err := sec.GenerateTOTPSecret()
	require.NoError(t, err)
	user.TOTPSecret = secret
	user.TOTPEnabled = true
	require.NoError(t, h.users.Update(ctx, user))

	pending, err := h.service.Login(ctx, auth.LoginInput{
		Identifier: "trinity", Password: "s3cret-passw0rd", Fingerprint: "device-a",
	})
	require.NoError(t, err)
	assert.True(t, pending.Requires2FA)
	assert.Empty(t, pending.RefreshToken)
	assert.Zero(t, pending.ExpiresIn)

	result, err := h.service.CompleteTwoFALogin(ctx, user.ID, totpCode(t, secret, time.Now()), "device-a")
	require.NoError(t, err)
	assert.False(t, result.Requires2FA)
	assert.NotEmpty(t, result.RefreshToken)
}

// # Token Lifecycle

/*
TestService_RefreshRotation verifies that refresh rotates the pair and
retires the old token.
*/
func TestService_RefreshRotation(t *testing.T) {
	h := newServiceHarness(t)
	h.seedUser(t, "trinity", "trinity@example.com", "s3cret-passw0rd")
	ctx := context.Background()

	first, err := h.service.Login(ctx, auth.LoginInput{
		Identifier: "trinity", Password: "s3cret-passw0rd", Fingerprint: "device-a",
	})
	require.NoError(t, err)

	second, err := h.service.Refresh(ctx, first.RefreshToken, "device-a")
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The consumed token is dead
	_, err = h.service.Refresh(ctx, first.RefreshToken, "device-a")
	assert.True(t, apperr.HasCode(err, apperr.CodeTokenRevoked))

	// The rotated one still works
	_, err = h.service.Refresh(ctx, second.RefreshToken, "device-a")
	assert.NoError(t, err)
}

/*
TestService_RefreshFingerprintMismatch verifies that a bound refresh token
is useless from another device.
*/
func TestService_RefreshFingerprintMismatch(t *testing.T) {
	h := newServiceHarness(t)
	h.seedUser(t, "trinity", "trinity@example.com", "s3cret-passw0rd")
	ctx := context.Background()

	result, err := h.service.Login(ctx, auth.LoginInput{
		Identifier: "trinity", Password: "s3cret-passw0rd", Fingerprint: "device-a",
	})
	require.NoError(t, err)

	_, err = h.service.Refresh(ctx, result.RefreshToken, "device-b")
	assert.True(t, apperr.HasCode(err, apperr.CodeFingerprintMismatch))

	_, err = h.service.Refresh(ctx, result.RefreshToken, "")
	assert.True(t, apperr.HasCode(err, apperr.CodeFingerprintMismatch))
}

/*
TestService_Logout verifies that logout revokes both tokens and tolerates a
missing or garbage refresh token.
*/
func TestService_Logout(t *testing.T) {
	h := newServiceHarness(t)
	h.seedUser(t, "trinity", "trinity@example.com", "s3cret-passw0rd")
	ctx := context.Background()

	result, err := h.service.Login(ctx, auth.LoginInput{
		Identifier: "trinity", Password: "s3cret-passw0rd", Fingerprint: "device-a",
	})
	require.NoError(t, err)

	claims, err := h.tokens.VerifyAccessToken(result.AccessToken)
	require.NoError(t, err)

	require.NoError(t, h.service.Logout(ctx, claims, result.RefreshToken))

	_, err = h.service.Refresh(ctx, result.RefreshToken, "device-a")
	assert.True(t, apperr.HasCode(err, apperr.CodeTokenRevoked))

	// Idempotent, and garbage input is not an error
	assert.NoError(t, h.service.Logout(ctx, claims, result.RefreshToken))
	assert.NoError(t, h.service.Logout(ctx, claims, ""))
	assert.NoError(t, h.service.Logout(ctx, claims, "not-a-jwt"))
}

/*
TestService_LogoutAll verifies that every outstanding session dies and the
count comes back.
*/
func TestService_LogoutAll(t *testing.T) {
	h := newServiceHarness(t)
	user := h.seedUser(t, "trinity", "trinity@example.com", "s3cret-passw0rd")
	ctx := context.Background()

	sessionA, err := h.service.Login(ctx, auth.LoginInput{
		Identifier: "trinity", Password: "s3cret-passw0rd", Fingerprint: "device-a",
	})
	require.NoError(t, err)
	sessionB, err := h.service.Login(ctx, auth.LoginInput{
		Identifier: "trinity", Password: "s3cret-passw0rd", Fingerprint: "device-b",
	})
	require.NoError(t, err)

	count, err := h.service.LogoutAll(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = h.service.Refresh(ctx, sessionA.RefreshToken, "device-a")
	assert.True(t, apperr.HasCode(err, apperr.CodeTokenRevoked))
	_, err = h.service.Refresh(ctx, sessionB.RefreshToken, "device-b")
	assert.True(t, apperr.HasCode(err, apperr.CodeTokenRevoked))
}

/*
TestService_DeleteAccount verifies that closing an account kills its live
sessions and retires its credentials.
*/
func TestService_DeleteAccount(t *testing.T) {
	h := newServiceHarness(t)
	user := h.seedUser(t, "trinity", "trinity@example.com", "s3cret-passw0rd")
	ctx := context.Background()

	session, err := h.service.Login(ctx, auth.LoginInput{
		Identifier: "trinity", Password: "s3cret-passw0rd", Fingerprint: "device-a",
	})
	require.NoError(t, err)

	require.NoError(t, h.service.DeleteAccount(ctx, user.ID))

	// Sessions die with the account
	_, err = h.service.Refresh(ctx, session.RefreshToken, "device-a")
	assert.True(t, apperr.HasCode(err, apperr.CodeTokenRevoked))

	// Credentials stop resolving, indistinguishable from a wrong password
	_, err = h.service.Login(ctx, auth.LoginInput{
		Identifier: "trinity", Password: "s3cret-passw0rd", Fingerprint: "device-a",
	})
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
}

// # Registration

/*
TestService_Register verifies that a new account starts inactive and the
verification code goes out.
*/
func TestService_Register(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	user, err := h.service.Register(ctx, auth.RegisterInput{
		Login: "morpheus", Email: "morpheus@example.com", Password: "s3cret-passw0rd",
	})
	require.NoError(t, err)
	assert.False(t, user.IsActive)
	assert.False(t, user.IsEmailVerified)
	assert.Equal(t, sec.RoleMember, user.Role)
	assert.NotEmpty(t, h.notifier.lastOTP())

	// Both login and email collisions are rejected
	_, err = h.service.Register(ctx, auth.RegisterInput{
		Login: "Morpheus", Email: "other@example.com", Password: "s3cret-passw0rd",
	})
	assert.True(t, apperr.HasCode(err, apperr.CodeConflict))

	_, err = h.service.Register(ctx, auth.RegisterInput{
		Login: "other", Email: "MORPHEUS@example.com", Password: "s3cret-passw0rd",
	})
	assert.True(t, apperr.HasCode(err, apperr.CodeConflict))
}

/*
TestService_VerifyOTP verifies activation, the one-time VPN provisioning
call, and that a provisioning outage never blocks the login.
*/
func TestService_VerifyOTP(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	user, err := h.service.Register(ctx, auth.RegisterInput{
		Login: "morpheus", Email: "morpheus@example.com", Password: "s3cret-passw0rd",
	})
	require.NoError(t, err)

	h.provisioner.failed = true

	result, err := h.service.VerifyOTP(ctx, "morpheus@example.com", h.notifier.lastOTP(), "device-a")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)

	activated, err := h.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, activated.IsActive)
	assert.True(t, activated.IsEmailVerified)
	assert.Equal(t, []string{user.ID}, h.provisioner.calls)
}

/*
TestService_VerifyOTPWrongCode verifies the rejection paths around
activation.
*/
func TestService_VerifyOTPWrongCode(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	_, err := h.service.Register(ctx, auth.RegisterInput{
		Login: "morpheus", Email: "morpheus@example.com", Password: "s3cret-passw0rd",
	})
	require.NoError(t, err)

	_, err = h.service.VerifyOTP(ctx, "morpheus@example.com", "000000", "")
	assert.True(t, apperr.HasCode(err, apperr.CodeOTPInvalid))

	_, err = h.service.VerifyOTP(ctx, "ghost@example.com", "123456", "")
	assert.True(t, apperr.HasCode(err, apperr.CodeOTPNotFound))
}

/*
TestService_ResendOTP verifies re-sending and the already-verified guard.
*/
func TestService_ResendOTP(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	_, err := h.service.Register(ctx, auth.RegisterInput{
		Login: "morpheus", Email: "morpheus@example.com", Password: "s3cret-passw0rd",
	})
	require.NoError(t, err)
	firstCode := h.notifier.lastOTP()

	require.NoError(t, h.service.ResendOTP(ctx, "morpheus@example.com"))
	secondCode := h.notifier.lastOTP()
	assert.NotEqual(t, firstCode, secondCode)

	// The superseded code is dead, the fresh one activates
	_, err = h.service.VerifyOTP(ctx, "morpheus@example.com", firstCode, "")
	require.Error(t, err)
	_, err = h.service.VerifyOTP(ctx, "morpheus@example.com", secondCode, "")
	require.NoError(t, err)

	err = h.service.ResendOTP(ctx, "morpheus@example.com")
	assert.True(t, apperr.HasCode(err, apperr.CodeAlreadyVerified))
}

// # Passwordless

/*
TestService_MagicLinkRoundTrip verifies request-then-redeem for an existing
account, and that the link is single use.
*/
func TestService_MagicLinkRoundTrip(t *testing.T) {
	h := newServiceHarness(t)
	user := h.seedUser(t, "trinity", "trinity@example.com", "s3cret-passw0rd")
	ctx := context.Background()

	require.NoError(t, h.service.RequestMagicLink(ctx, "trinity@example.com", "203.0.113.7"))
	token := h.notifier.lastMagicLink()
	require.NotEmpty(t, token)

	result, err := h.service.VerifyMagicLink(ctx, token, "device-a")
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)

	_, err = h.service.VerifyMagicLink(ctx, token, "device-a")
	assert.True(t, apperr.HasCode(err, apperr.CodeMagicLinkInvalid))
}

/*
TestService_MagicLinkUnknownEmail verifies that an unregistered address gets
no email yet no error, so callers cannot probe the user base.
*/
func TestService_MagicLinkUnknownEmail(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	require.NoError(t, h.service.RequestMagicLink(ctx, "nobody@example.com", "203.0.113.7"))
	assert.Empty(t, h.notifier.lastMagicLink())
}

/*
TestService_MagicLinkAutoRegisters verifies that redeeming a link for an
address with no account creates one on the spot, login derived from the
local part.
*/
func TestService_MagicLinkAutoRegisters(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	// Mint a token directly; the request path never emails unknown addresses
	magic := auth.NewMagicLinkService(redis.NewClient(&redis.Options{Addr: h.mr.Addr()}), auth.MagicLinkConfig{
		TTL: 15 * time.Minute, RateLimit: 3, RateWindow: time.Hour,
	})
	token, err := magic.Generate(ctx, "newcomer@example.com", "203.0.113.7")
	require.NoError(t, err)

	result, err := h.service.VerifyMagicLink(ctx, token, "device-a")
	require.NoError(t, err)
	assert.Equal(t, "newcomer", result.User.Login)
	assert.True(t, result.User.IsActive)
	assert.True(t, result.User.IsEmailVerified)
	assert.Equal(t, []string{result.User.ID}, h.provisioner.calls)

	// The minted password hash must never verify
	assert.False(t, sec.CheckPassword("", result.User.PasswordHash))
	assert.False(t, sec.CheckPassword("anything", result.User.PasswordHash))
}

// # Password Recovery

/*
TestService_PasswordResetFlow verifies forgot → reset → old sessions dead,
new password live.
*/
func TestService_PasswordResetFlow(t *testing.T) {
	h := newServiceHarness(t)
	h.seedUser(t, "trinity", "trinity@example.com", "s3cret-passw0rd")
	ctx := context.Background()

	session, err := h.service.Login(ctx, auth.LoginInput{
		Identifier: "trinity", Password: "s3cret-passw0rd", Fingerprint: "device-a",
	})
	require.NoError(t, err)

	h.service.ForgotPassword(ctx, "trinity@example.com")
	code := h.notifier.lastOTP()
	require.NotEmpty(t, code)

	require.NoError(t, h.service.ResetPassword(ctx, "trinity@example.com", code, "brand-new-passw0rd"))

	_, err = h.service.Refresh(ctx, session.RefreshToken, "device-a")
	assert.True(t, apperr.HasCode(err, apperr.CodeTokenRevoked))

	_, err = h.service.Login(ctx, auth.LoginInput{Identifier: "trinity", Password: "s3cret-passw0rd"})
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))

	result, err := h.service.Login(ctx, auth.LoginInput{Identifier: "trinity", Password: "brand-new-passw0rd"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
}

/*
TestService_ForgotPasswordUnknownEmail verifies the silent no-op for
unregistered addresses.
*/
func TestService_ForgotPasswordUnknownEmail(t *testing.T) {
	h := newServiceHarness(t)

	h.service.ForgotPassword(context.Background(), "nobody@example.com")
	assert.Empty(t, h.notifier.lastOTP())
}

/*
TestService_ResetPasswordWrongCode verifies that a bad code leaves the
password untouched.
*/
func TestService_ResetPasswordWrongCode(t *testing.T) {
	h := newServiceHarness(t)
	h.seedUser(t, "trinity", "trinity@example.com", "s3cret-passw0rd")
	ctx := context.Background()

	h.service.ForgotPassword(ctx, "trinity@example.com")

	err := h.service.ResetPassword(ctx, "trinity@example.com", "000000", "brand-new-passw0rd")
	assert.True(t, apperr.HasCode(err, apperr.CodeOTPInvalid))

	_, err = h.service.Login(ctx, auth.LoginInput{Identifier: "trinity", Password: "s3cret-passw0rd"})
	assert.NoError(t, err)
}

// # Login Allocation

/*
TestEnsureUniqueLogin verifies collision handling for synthesized login
names.
*/
func TestEnsureUniqueLogin(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	login, err := auth.EnsureUniqueLogin(ctx, h.users, "neo")
	require.NoError(t, err)
	assert.Equal(t, "neo", login)

	h.seedUser(t, "neo", "neo@example.com", "s3cret-passw0rd")

	login, err = auth.EnsureUniqueLogin(ctx, h.users, "neo")
	require.NoError(t, err)
	assert.NotEqual(t, "neo", login)
	assert.Contains(t, login, "neo_")
	assert.LessOrEqual(t, len(login), 32)
}
