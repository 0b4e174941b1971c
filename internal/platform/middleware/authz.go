// Copyright (c) 2026 CyberVPN. All rights reserved.

package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/constants"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/ctxkey"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/respond"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/sec"
)

// TokenVerifier defines the interface needed to verify tokens in middleware.
//
// # Why an interface?
//
// Defining TokenVerifier here decouples the middleware from the token service
// implementation, allowing us to easily inject mocks during unit testing.
type TokenVerifier interface {
	VerifyAccessToken(tokenStr string) (*sec.AuthClaims, error)
}

// RevocationChecker answers whether a structurally valid token has been
// invalidated by a logout, a logout-all, or a password change.
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, tokenID, userID string, issuedAt time.Time) (bool, error)
}

// Authenticate extracts and verifies the JWT from the Authorization header.
//
// # Flow
//  1. Check for 'Authorization: Bearer <token>' header.
//  2. If absent, request proceeds as anonymous.
//  3. If present, parse and verify the JWT via [TokenVerifier].
//  4. Reject tokens struck by the [RevocationChecker].
//  5. Enforce device fingerprint binding when the token carries one.
//  6. Inject [*sec.AuthClaims] into the request context for downstream use.
//
// # Parameters
//   - verifier: The TokenVerifier instance.
//   - revocations: The RevocationChecker instance.
//
// # Returns
//   - An [http.Handler] middleware.
func Authenticate(verifier TokenVerifier, revocations RevocationChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			authHeader := request.Header.Get("Authorization")

			// ── 1. Anonymous Access ───────────────────────────────────────────
			if authHeader == "" {
				next.ServeHTTP(writer, request)
				return
			}

			// ── 2. Format Validation ──────────────────────────────────────────
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				respond.Error(writer, request, apperr.Unauthorized("Invalid authorization format"))
				return
			}

			// ── 3. Token Verification ─────────────────────────────────────────
			tokenStr := parts[1]
			claims, err := verifier.VerifyAccessToken(tokenStr)
			if err != nil {
				respond.Error(writer, request, apperr.Unauthorized("Invalid or expired token"))
				return
			}

			// ── 4. Revocation Check ───────────────────────────────────────────
			revoked, err := revocations.IsTokenRevoked(request.Context(), claims.ID, claims.UserID, claims.IssuedAt.Time)
			if err != nil {
				// Fail closed: an unreachable revocation store must not admit
				// possibly-revoked tokens.
				respond.Error(writer, request, apperr.Internal(err))
				return
			}
			if revoked {
				respond.Error(writer, request, apperr.UnauthorizedCode(apperr.CodeTokenRevoked, "Token has been revoked"))
				return
			}

			// ── 5. Fingerprint Binding ────────────────────────────────────────
			if claims.Fingerprint != "" {
				presented := strings.TrimSpace(request.Header.Get(constants.HeaderDeviceFingerprint))
				if presented == "" || sec.FingerprintHash(presented) != claims.Fingerprint {
					respond.Error(writer, request, apperr.UnauthorizedCode(apperr.CodeFingerprintMismatch, "Token is bound to a different device"))
					return
				}
			}

			// ── 6. Context Injection ──────────────────────────────────────────
			ctx := context.WithValue(request.Context(), ctxkey.KeyUser, claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireAuth blocks requests that are not fully authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
//
// # Flow
//  1. Check if [*sec.AuthClaims] exists in context.
//  2. If missing, abort with HTTP 401 Unauthorized.
//  3. Reject tokens still pending 2FA verification with HTTP 403.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		claims := GetUser(request.Context())
		if claims == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}

		// A pending token grants exactly one capability: 2FA verification.
		if claims.Role == string(sec.RolePending2FA) {
			respond.Error(writer, request, &apperr.AppError{
				Code:       apperr.CodeTwoFARequired,
				Message:    "Two-factor verification required",
				HTTPStatus: http.StatusForbidden,
			})
			return
		}

		next.ServeHTTP(writer, request)
	})
}

// AllowPending2FA admits both fully authenticated users and holders of a
// pending 2FA token. Mounted only on the 2FA verification endpoint.
func AllowPending2FA(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		claims := GetUser(request.Context())
		if claims == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRole blocks requests if the authenticated user doesn't have the required role.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate]. It automatically implies
// [RequireAuth] so you don't need to mount both.
//
// # Flow
//  1. Check if [*sec.AuthClaims] exists in context (implies AuthN).
//  2. Check if the user's role meets or exceeds the target via [sec.UserRole.AtLeast].
//  3. If insufficient, abort with HTTP 403 Forbidden.
func RequireRole(role sec.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := GetUser(request.Context())

			// ── 1. Authentication Check ───────────────────────────────────────
			if claims == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}

			// ── 2. Authorization Check ────────────────────────────────────────
			userRole := sec.UserRole(claims.Role)
			if !userRole.AtLeast(role) {
				respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// GetUser retrieves the [*sec.AuthClaims] from the [context.Context].
//
// # Returns
//   - A pointer to [*sec.AuthClaims] if the user is authenticated.
//   - nil if the user is anonymous.
func GetUser(ctx context.Context) *sec.AuthClaims {
	claims, ok := ctx.Value(ctxkey.KeyUser).(*sec.AuthClaims)
	if !ok {
		return nil
	}
	return claims
}
