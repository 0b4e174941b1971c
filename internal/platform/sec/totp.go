// Copyright (c) 2026 CyberVPN. All rights reserved.

package sec

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// # Time-Based One-Time Passwords (RFC 6238)

const (
	// 30-second steps per the RFC default used by every major authenticator app
	totpPeriod = 30 * time.Second

	totpDigits = 6

	// One step of clock drift tolerated in each direction
	totpSkewSteps = 1

	// 160-bit secrets, the SHA-1 block-friendly size
	totpSecretBytes = 20
)

/*
GenerateTOTPSecret creates a fresh shared secret for enrolling an
authenticator app.

Returns:
  - string: the secret in unpadded base32, ready for QR provisioning.
  - error: on entropy failure.
*/
func GenerateTOTPSecret() (string, error) {

	buf := make([]byte, totpSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("totp_secret_entropy_failed: %w", err)
	}

	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

/*
TOTPProvisioningURI builds the otpauth:// URI encoded into enrollment QR codes.

Parameters:
  - issuer: service name shown in the authenticator app.
  - account: user-facing account label, typically the login name.
  - secret: the base32 shared secret.

Returns:
  - string: the otpauth URI.
*/
func TOTPProvisioningURI(issuer, account, secret string) string {

	label := url.PathEscape(issuer) + ":" + url.PathEscape(account)

	params := url.Values{}
	params.Set("secret", secret)
	params.Set("issuer", issuer)
	params.Set("algorithm", "SHA1")
	params.Set("digits", fmt.Sprintf("%d", totpDigits))
	params.Set("period", fmt.Sprintf("%d", int(totpPeriod.Seconds())))

	return "otpauth://totp/" + label + "?" + params.Encode()
}

/*
VerifyTOTP checks a user-supplied code against the shared secret, tolerating
one time step of drift in either direction.

Parameters:
  - secret: the base32 shared secret.
  - code: the 6-digit code entered by the user.
  - now: the reference time, injected for testability.

Returns:
  - bool: true only when the code matches some step within the skew window.
  - error: when the stored secret cannot be decoded.
*/
func VerifyTOTP(secret, code string, now time.Time) (bool, error) {

	// 1. Decode the stored secret, accepting padded and unpadded forms
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).
		DecodeString(strings.ToUpper(strings.TrimRight(secret, "=")))
	if err != nil {
		return false, fmt.Errorf("totp_secret_decode_failed: %w", err)
	}

	if len(code) != totpDigits {
		return false, nil
	}

	// 2. Compare against each step in the skew window in constant time
	counter := now.Unix() / int64(totpPeriod.Seconds())

	matched := 0
	for delta := -totpSkewSteps; delta <= totpSkewSteps; delta++ {
		expected := hotp(key, uint64(counter+int64(delta)))
		matched |= subtle.ConstantTimeCompare([]byte(expected), []byte(code))
	}

	return matched == 1, nil
}

// hotp computes the RFC 4226 HMAC-based one-time password for a counter value.
func hotp(key []byte, counter uint64) string {

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226 §5.3
	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", value%1000000)
}
