// Copyright (c) 2026 CyberVPN. All rights reserved.

package sec

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
	"github.com/Beep206/CyberVPN-sub000/pkg/uuid"
)

// # Token Types

const (
	// TokenTypeAccess marks short-lived tokens used on API requests.
	TokenTypeAccess = "access"

	// TokenTypeRefresh marks long-lived tokens exchanged for new pairs.
	TokenTypeRefresh = "refresh"
)

// # Claims

// AuthClaims defines the custom JWT payload carried by every CyberVPN token.
type AuthClaims struct {
	jwt.RegisteredClaims

	// Account identifier, duplicated from the subject for explicit access
	UserID string `json:"uid"`

	// Authorization role at issuance time
	Role string `json:"rol"`

	// Either "access" or "refresh"
	TokenType string `json:"typ"`

	// SHA-256 hex of the device fingerprint the token is bound to, if any
	Fingerprint string `json:"fph,omitempty"`

	// Flow-specific payload, e.g. the pending 2FA marker
	Extra map[string]string `json:"ext,omitempty"`
}

// # Issued Tokens

// IssuedToken bundles a signed token with the metadata callers need to
// track or revoke it later.
type IssuedToken struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

// ExpiresIn reports the remaining lifetime in whole seconds, never negative.
func (t IssuedToken) ExpiresIn() int64 {

	secs := int64(time.Until(t.ExpiresAt).Seconds())
	if secs < 0 {
		return 0
	}

	return secs
}

// # Token Service

// TokenService signs and verifies RS256 JSON Web Tokens for the identity domain.
type TokenService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

/*
NewTokenService loads an RSA keypair from PEM files and builds the signing
service used across the API.

Parameters:
  - privPath: filesystem path to the PKCS#1/PKCS#8 private key PEM.
  - pubPath: filesystem path to the public key PEM.
  - issuer: value placed in the iss claim and required during verification.
  - accessTTL: lifetime of access tokens.
  - refreshTTL: lifetime of refresh tokens.

Returns:
  - *TokenService: the ready service.
  - error: when either key cannot be read or parsed.
*/
func NewTokenService(privPath, pubPath, issuer string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {

	// 1. Load and parse the private signing key
	privPEM, err := os.ReadFile(privPath)
	if err != nil {
		return nil, fmt.Errorf("jwt_private_key_read_failed: %w", err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("jwt_private_key_parse_failed: %w", err)
	}

	// 2. Load and parse the public verification key
	pubPEM, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("jwt_public_key_read_failed: %w", err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("jwt_public_key_parse_failed: %w", err)
	}

	return &TokenService{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

/*
NewTokenServiceFromKeys builds the service from an in-memory keypair.
Intended for tests and tooling that generate ephemeral keys.

Parameters:
  - key: the RSA private key; its public half is derived automatically.
  - issuer: value placed in the iss claim.
  - accessTTL: lifetime of access tokens.
  - refreshTTL: lifetime of refresh tokens.

Returns:
  - *TokenService: the ready service.
*/
func NewTokenServiceFromKeys(key *rsa.PrivateKey, issuer string, accessTTL, refreshTTL time.Duration) *TokenService {

	return &TokenService{
		privateKey: key,
		publicKey:  &key.PublicKey,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// AccessTTL exposes the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL exposes the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// # Issuance

/*
CreateAccessToken signs a new access token for the given account.

Parameters:
  - userID: subject account identifier.
  - role: role string embedded in the rol claim.
  - fingerprint: raw device fingerprint to bind the token to, or empty.
  - extra: optional flow-specific payload, may be nil.

Returns:
  - IssuedToken: the signed token with its jti and expiry.
  - error: on signing failure.
*/
func (s *TokenService) CreateAccessToken(userID, role, fingerprint string, extra map[string]string) (IssuedToken, error) {
	return s.create(userID, role, TokenTypeAccess, fingerprint, extra, s.accessTTL)
}

/*
CreateRefreshToken signs a new refresh token for the given account.

Parameters:
  - userID: subject account identifier.
  - role: role string embedded in the rol claim.
  - fingerprint: raw device fingerprint to bind the token to, or empty.

Returns:
  - IssuedToken: the signed token with its jti and expiry.
  - error: on signing failure.
*/
func (s *TokenService) CreateRefreshToken(userID, role, fingerprint string) (IssuedToken, error) {
	return s.create(userID, role, TokenTypeRefresh, fingerprint, nil, s.refreshTTL)
}

/*
CreatePendingToken signs a deliberately short-lived access token carrying the
2fa_pending role. It grants exactly one capability: completing TOTP verification.

Parameters:
  - userID: subject account identifier.
  - fingerprint: raw device fingerprint to bind the token to, or empty.
  - ttl: pending token lifetime, typically a few minutes.

Returns:
  - IssuedToken: the signed token with its jti and expiry.
  - error: on signing failure.
*/
func (s *TokenService) CreatePendingToken(userID, fingerprint string, ttl time.Duration) (IssuedToken, error) {
	return s.create(userID, string(RolePending2FA), TokenTypeAccess, fingerprint, nil, ttl)
}

func (s *TokenService) create(userID, role, tokenType, fingerprint string, extra map[string]string, ttl time.Duration) (IssuedToken, error) {

	now := time.Now().UTC()
	tokenID := uuid.New()

	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:    userID,
		Role:      role,
		TokenType: tokenType,
		Extra:     extra,
	}

	if fingerprint != "" {
		claims.Fingerprint = FingerprintHash(fingerprint)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("jwt_sign_failed: %w", err)
	}

	return IssuedToken{
		Token:     signed,
		TokenID:   tokenID,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// # Verification

/*
VerifyToken parses and validates a signed token of the expected type.

Parameters:
  - tokenString: the raw compact JWT.
  - expectedType: TokenTypeAccess or TokenTypeRefresh.

Returns:
  - *AuthClaims: the validated claims.
  - error: an apperr.Unauthorized for any invalid, expired, or mistyped token.
*/
func (s *TokenService) VerifyToken(tokenString, expectedType string) (*AuthClaims, error) {

	// 1. Parse with strict algorithm and issuer checks
	claims := &AuthClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("jwt_unexpected_signing_method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())

	if err != nil || !token.Valid {
		return nil, apperr.UnauthorizedCode(apperr.CodeTokenInvalid, "token is invalid or expired")
	}

	// 2. Reject cross-type use, e.g. a refresh token on an API request
	if claims.TokenType != expectedType {
		return nil, apperr.UnauthorizedCode(apperr.CodeTokenInvalid, "token type mismatch")
	}

	return claims, nil
}

// VerifyAccessToken validates an access token. Satisfies the middleware's
// TokenVerifier interface.
func (s *TokenService) VerifyAccessToken(tokenString string) (*AuthClaims, error) {
	return s.VerifyToken(tokenString, TokenTypeAccess)
}

// VerifyRefreshToken validates a refresh token.
func (s *TokenService) VerifyRefreshToken(tokenString string) (*AuthClaims, error) {
	return s.VerifyToken(tokenString, TokenTypeRefresh)
}

// # Fingerprint Binding

// FingerprintHash derives the stable SHA-256 hex digest stored in the fph
// claim. Raw fingerprints never appear inside tokens.
func FingerprintHash(raw string) string {

	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
