// Copyright (c) 2026 CyberVPN. All rights reserved.

package sec_test

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/sec"
)

/*
TestVerifyTOTP_KnownVectors verifies code generation against the RFC 6238
appendix B test vectors (SHA-1, truncated to 6 digits).
*/
func TestVerifyTOTP_KnownVectors(t *testing.T) {

	// 1. The RFC test secret is the ASCII string "12345678901234567890"
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).
		EncodeToString([]byte("12345678901234567890"))

	cases := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}

	// 2. Each vector must verify at its own timestamp
	for _, tc := range cases {
		ok, err := sec.VerifyTOTP(secret, tc.code, time.Unix(tc.unix, 0))
		require.NoError(t, err)
		assert.True(t, ok, "code %s at t=%d", tc.code, tc.unix)
	}
}

/*
TestVerifyTOTP_SkewWindow verifies that codes from the adjacent time steps are
accepted while codes two steps away are rejected.
*/
func TestVerifyTOTP_SkewWindow(t *testing.T) {

	secret := base32.StdEncoding.WithPadding(base32.NoPadding).
		EncodeToString([]byte("12345678901234567890"))

	// Vector for t=59 (counter 1): previous step from the t=89 perspective
	now := time.Unix(89, 0)

	ok, err := sec.VerifyTOTP(secret, "287082", now)
	require.NoError(t, err)
	assert.True(t, ok, "previous step within skew")

	// Counter 1 is two steps behind t=119 and must be rejected
	ok, err = sec.VerifyTOTP(secret, "287082", time.Unix(119, 0))
	require.NoError(t, err)
	assert.False(t, ok, "two steps away is outside the skew window")
}

/*
TestVerifyTOTP_Rejections verifies malformed inputs fail closed.
*/
func TestVerifyTOTP_Rejections(t *testing.T) {

	secret, err := sec.GenerateTOTPSecret()
	require.NoError(t, err)

	// 1. Wrong-length codes never match
	ok, err := sec.VerifyTOTP(secret, "1234", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	// 2. A corrupted secret surfaces a decode error
	_, err = sec.VerifyTOTP("not!base32", "123456", time.Now())
	assert.Error(t, err)
}

/*
TestTOTPProvisioningURI verifies the otpauth URI shape consumed by
authenticator apps.
*/
func TestTOTPProvisioningURI(t *testing.T) {

	uri := sec.TOTPProvisioningURI("CyberVPN", "neo_77", "JBSWY3DPEHPK3PXP")

	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/CyberVPN:neo_77?"))
	assert.Contains(t, uri, "secret=JBSWY3DPEHPK3PXP")
	assert.Contains(t, uri, "issuer=CyberVPN")
	assert.Contains(t, uri, "digits=6")
	assert.Contains(t, uri, "period=30")
}

/*
TestGenerateTOTPSecret verifies secrets are unpadded base32 of the expected
entropy and unique across calls.
*/
func TestGenerateTOTPSecret(t *testing.T) {

	a, err := sec.GenerateTOTPSecret()
	require.NoError(t, err)

	b, err := sec.GenerateTOTPSecret()
	require.NoError(t, err)

	// 20 bytes encode to 32 base32 characters
	assert.Len(t, a, 32)
	assert.NotContains(t, a, "=")
	assert.NotEqual(t, a, b)
}
