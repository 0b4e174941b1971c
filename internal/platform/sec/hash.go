// Copyright (c) 2026 CyberVPN. All rights reserved.

package sec

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// # Password Hashing

const (

	// Balances security and login latency
	hashCost = bcrypt.DefaultCost
)

/*
HashPassword converts a plaintext password into a bcrypt hash suitable for
persistent storage.

Parameters:
  - plain: the raw password provided by the user.

Returns:
  - string: the encoded bcrypt hash.
  - error: on hashing failure or if the input exceeds bcrypt's 72-byte limit.
*/
func HashPassword(plain string) (string, error) {

	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), hashCost)
	if err != nil {
		return "", fmt.Errorf("password_hash_failed: %w", err)
	}

	return string(hashed), nil
}

/*
CheckPassword verifies a plaintext password against its stored bcrypt hash.

Parameters:
  - plain: the raw password to test.
  - hashed: the stored bcrypt hash.

Returns:
  - bool: true only when the password matches.
*/
func CheckPassword(plain, hashed string) bool {

	// bcrypt comparison is constant-time internally
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

/*
UnusablePassword produces a bcrypt hash of random material that no plaintext
password can ever match in practice. Accounts created through OAuth providers
receive it so that the password login path behaves uniformly for them.

Returns:
  - string: a valid bcrypt hash of 32 random bytes.
  - error: on entropy or hashing failure.
*/
func UnusablePassword() (string, error) {

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("unusable_password_entropy_failed: %w", err)
	}

	return HashPassword(base64.RawURLEncoding.EncodeToString(buf))
}
