// Copyright (c) 2026 CyberVPN. All rights reserved.

// Package loginname derives local login names from external identity data.
//
// # Usage
//
// Accounts created through OAuth providers or magic links arrive without a
// chosen login. This package handles normalization, accent removal, and
// character sanitization so that every synthesized login fits the platform
// format (ASCII letters, digits, underscore).
package loginname

import (
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxTelegramNameLength caps a Telegram first-name fallback login.
const MaxTelegramNameLength = 32

// minUsableLength is the shortest login we accept from provider data before
// falling through to the next candidate in the chain.
const minUsableLength = 3

// Sanitize converts an arbitrary Unicode string into an ASCII login candidate.
//
// # Transformation Pipeline
//
// 1. Normalizes to NFD (decomposes accented chars: é → e + combining acute).
// 2. Removes combining marks (accents).
// 3. Drops every rune that is not an ASCII letter, digit, or underscore.
//
// The result may be empty; callers decide the fallback.
func Sanitize(s string) string {
	// 1. Normalize and remove accents
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn))
	result, _, _ := transform.String(t, s)

	// 2. Keep only the login alphabet
	var b strings.Builder
	b.Grow(len(result))
	for _, r := range result {
		if r == '_' || (r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r))) {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// FromEmail returns the local part of an email address, sanitized.
// Returns an empty string when the address has no usable local part.
func FromEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	return Sanitize(email[:at])
}

// ForTelegram synthesizes a login for the Telegram provider, which has no
// email concept. The fallback chain is deterministic:
//
//  1. The public username, sanitized, when at least 3 characters remain.
//  2. The first name with spaces replaced by underscores, truncated to 32
//     characters, when at least 3 characters long.
//  3. "tg_<numeric id>".
func ForTelegram(username, firstName, telegramID string) string {

	// 1. Public username wins when it survives sanitization
	if cleaned := Sanitize(username); len(cleaned) >= minUsableLength {
		return cleaned
	}

	// 2. First name, underscored and capped
	name := strings.ReplaceAll(firstName, " ", "_")
	if len(name) > MaxTelegramNameLength {
		name = name[:MaxTelegramNameLength]
	}
	if len(name) >= minUsableLength {
		return name
	}

	// 3. Numeric placeholder
	return "tg_" + telegramID
}

// isMn reports whether r is a Unicode non-spacing mark (e.g., accents).
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
