// Copyright (c) 2026 CyberVPN. All rights reserved.

package sec

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// # Opaque Token And Code Generation

const (
	// Alphabet for human-facing recovery codes, chosen to avoid ambiguous glyphs
	recoveryAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// RecoveryCodeCount is how many backup codes a 2FA disable request yields.
	RecoveryCodeCount = 8

	// RecoveryCodeLength is the character length of a single recovery code.
	RecoveryCodeLength = 10
)

/*
GenerateSecureToken produces a URL-safe random token of n bytes of entropy,
used for magic links and OAuth state parameters.

Parameters:
  - n: number of random bytes; the encoded string is ~4n/3 characters.

Returns:
  - string: the base64url-encoded token without padding.
  - error: on entropy failure.
*/
func GenerateSecureToken(n int) (string, error) {

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("secure_token_entropy_failed: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

/*
GenerateNumericOTP produces a random numeric one-time password.

Each digit is drawn independently from crypto/rand so leading zeros are as
likely as any other digit.

Parameters:
  - digits: code length, typically 6.

Returns:
  - string: the numeric code.
  - error: on entropy failure.
*/
func GenerateNumericOTP(digits int) (string, error) {

	code := make([]byte, 0, digits)
	buf := make([]byte, digits)

	for len(code) < digits {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("otp_entropy_failed: %w", err)
		}

		for _, b := range buf {
			// Reject bytes >= 250 so every digit is exactly 1/10 likely
			if b >= 250 {
				continue
			}
			code = append(code, '0'+b%10)
			if len(code) == digits {
				break
			}
		}
	}

	return string(code), nil
}

/*
GenerateRecoveryCodes produces the fixed set of single-use backup codes handed
to a user when TOTP is disabled.

Returns:
  - []string: RecoveryCodeCount uppercase codes of RecoveryCodeLength characters.
  - error: on entropy failure.
*/
func GenerateRecoveryCodes() ([]string, error) {

	codes := make([]string, RecoveryCodeCount)

	for i := range codes {
		buf := make([]byte, RecoveryCodeLength)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("recovery_code_entropy_failed: %w", err)
		}

		out := make([]byte, RecoveryCodeLength)
		for j, b := range buf {
			out[j] = recoveryAlphabet[int(b)%len(recoveryAlphabet)]
		}
		codes[i] = string(out)
	}

	return codes, nil
}
