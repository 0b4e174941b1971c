// Copyright (c) 2026 CyberVPN. All rights reserved.

/*
Package apperr defines the centralized error handling framework for CyberVPN.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct containing machine-readable ErrorCode and user-friendly messages.
  - Security taxonomy: Dedicated constructors for lockout, OTP, rate-limit, and
    2FA state errors so the identity core never builds status codes by hand.
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// # Machine-Readable Codes

// Stable error codes consumed by API clients. Handlers and services reference
// these instead of raw strings so the wire contract never drifts.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeConflict        = "CONFLICT"
	CodeValidation      = "VALIDATION_ERROR"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL_ERROR"
	CodeAccountLocked   = "ACCOUNT_LOCKED"
	CodeOTPInvalid      = "OTP_INVALID"
	CodeOTPExpired      = "OTP_EXPIRED"
	CodeOTPNotFound     = "OTP_NOT_FOUND"
	CodeOTPExhausted    = "OTP_EXHAUSTED"
	CodeAlreadyVerified = "ALREADY_VERIFIED"
	CodeReauthRequired  = "REAUTH_REQUIRED"
	CodeAlreadyEnabled  = "ALREADY_ENABLED"
	CodeNotEnabled      = "NOT_ENABLED"
	CodeTooManyAttempts = "TOO_MANY_ATTEMPTS"

	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeTokenInvalid        = "TOKEN_INVALID"
	CodeTokenRevoked        = "TOKEN_REVOKED"
	CodeFingerprintMismatch = "FINGERPRINT_MISMATCH"
	CodeMagicLinkInvalid    = "MAGIC_LINK_INVALID"
	CodeTwoFARequired       = "TWO_FA_REQUIRED"
)

// AppError is the canonical error type for the CyberVPN API.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., SQL queries).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "NOT_FOUND", "ACCOUNT_LOCKED").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
	// RetryAfterSeconds is set for lockout and rate-limit errors so clients
	// (and the Retry-After header) know when the operation may be retried.
	// Zero means "not applicable" or "permanent".
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
	// Permanent marks an ACCOUNT_LOCKED error that requires manual unlock.
	Permanent bool `json:"permanent,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// # Client Errors (4xx)

// NotFound creates a 404 [AppError] for a named resource.
//
// Example:
//
//	apperr.NotFound("User") // Returns "User not found"
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// Unauthorized creates a 401 [AppError].
func Unauthorized(msg string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// UnauthorizedCode creates a 401 [AppError] with an explicit machine code.
// Token validation failures use it so clients can distinguish expired
// credentials from revoked ones.
func UnauthorizedCode(code, msg string) *AppError {
	return &AppError{
		Code:       code,
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a 403 [AppError].
func Forbidden(msg string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    msg,
		HTTPStatus: http.StatusForbidden,
	}
}

// Conflict creates a 409 [AppError] for duplicate or unique-constraint violations.
func Conflict(msg string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    msg,
		HTTPStatus: http.StatusConflict,
	}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// BadRequest creates a 400 [AppError] with an explicit machine code.
// Used by the OTP and 2FA flows where clients branch on the code.
func BadRequest(code, msg string) *AppError {
	return &AppError{
		Code:       code,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
	}
}

// RateLimited creates a 429 [AppError].
func RateLimited(retryAfterSeconds int) *AppError {
	return &AppError{
		Code:              CodeRateLimited,
		Message:           fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds),
		HTTPStatus:        http.StatusTooManyRequests,
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// TooManyAttempts creates a 429 [AppError] for exhausted security budgets
// (OTP verification attempts, 2FA code attempts).
func TooManyAttempts(code, msg string) *AppError {
	return &AppError{
		Code:       code,
		Message:    msg,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// Locked creates a 423 [AppError] for an account in a lockout window.
//
// A timed lockout carries the retry-after delay; a permanent lockout carries
// the Permanent flag and no delay (manual unlock required).
func Locked(permanent bool, retryAfterSeconds int) *AppError {
	if permanent {
		return &AppError{
			Code:       CodeAccountLocked,
			Message:    "Account locked. Contact support to restore access.",
			HTTPStatus: http.StatusLocked,
			Permanent:  true,
		}
	}
	return &AppError{
		Code:              CodeAccountLocked,
		Message:           fmt.Sprintf("Account temporarily locked. Try again in %ds.", retryAfterSeconds),
		HTTPStatus:        http.StatusLocked,
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// # Server Errors (5xx)

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// ServiceUnavailable creates a 503 [AppError] for maintenance mode.
func ServiceUnavailable(msg string) *AppError {
	return &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// HasCode reports whether err is an [*AppError] carrying the given code.
func HasCode(err error, code string) bool {
	ae := As(err)
	return ae != nil && ae.Code == code
}
