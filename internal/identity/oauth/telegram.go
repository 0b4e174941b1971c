// Copyright (c) 2026 CyberVPN. All rights reserved.

package oauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
)

// TelegramPayload is the signed field set posted by the Telegram login
// widget. Hash is the widget's signature over the remaining fields.
type TelegramPayload struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
	AuthDate  string `json:"auth_date"`
	Hash      string `json:"hash"`
}

// TelegramVerifier authenticates Telegram login-widget payloads.
//
// Telegram is not an OAuth provider: the widget signs the user's profile
// with HMAC-SHA256 keyed by SHA-256 of the bot token, and the backend only
// has to check that signature and the payload's age.
type TelegramVerifier struct {
	botToken string
	maxAge   time.Duration
}

// NewTelegramVerifier constructs the verifier for the configured bot.
func NewTelegramVerifier(botToken string, maxAge time.Duration) *TelegramVerifier {
	return &TelegramVerifier{botToken: botToken, maxAge: maxAge}
}

// Enabled reports whether a bot token is configured.
func (verifier *TelegramVerifier) Enabled() bool {
	return verifier.botToken != ""
}

/*
Verify checks the widget signature and freshness, returning the normalized
identity.

# Flow

 1. Rebuild the data-check string: every non-empty field except hash, as
    "key=value" lines sorted by key, joined with newlines.
 2. HMAC-SHA256 it with SHA-256(botToken) as the key and compare against
    the presented hash in constant time.
 3. Reject payloads older than the configured maximum age.
*/
func (verifier *TelegramVerifier) Verify(payload TelegramPayload, now time.Time) (*UserInfo, error) {

	if payload.ID == "" || payload.Hash == "" || payload.AuthDate == "" {
		return nil, apperr.Unauthorized("Incomplete Telegram payload")
	}

	// ── 1. Signature ──────────────────────────────────────────────────────

	fields := map[string]string{
		"id":         payload.ID,
		"first_name": payload.FirstName,
		"last_name":  payload.LastName,
		"username":   payload.Username,
		"photo_url":  payload.PhotoURL,
		"auth_date":  payload.AuthDate,
	}

	lines := make([]string, 0, len(fields))
	for key, value := range fields {
		if value != "" {
			lines = append(lines, key+"="+value)
		}
	}
	sort.Strings(lines)

	secret := sha256.Sum256([]byte(verifier.botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(payload.Hash))) != 1 {
		return nil, apperr.Unauthorized("Invalid Telegram signature")
	}

	// ── 2. Freshness ──────────────────────────────────────────────────────

	authDate, err := strconv.ParseInt(payload.AuthDate, 10, 64)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid Telegram payload")
	}

	if now.Sub(time.Unix(authDate, 0)) > verifier.maxAge {
		return nil, apperr.Unauthorized("Telegram login has expired")
	}

	// ── 3. Normalization ──────────────────────────────────────────────────

	return &UserInfo{
		Provider:       "telegram",
		ProviderUserID: payload.ID,
		Username:       payload.Username,
		FirstName:      payload.FirstName,
		AvatarURL:      payload.PhotoURL,
		// Telegram never exposes an email; ownership of the account itself
		// is the proof of identity.
		EmailVerified: false,
	}, nil
}

// SignPayload computes the widget signature for the given payload. Exposed
// for tests and local tooling.
func SignPayload(botToken string, payload TelegramPayload) string {

	fields := map[string]string{
		"id":         payload.ID,
		"first_name": payload.FirstName,
		"last_name":  payload.LastName,
		"username":   payload.Username,
		"photo_url":  payload.PhotoURL,
		"auth_date":  payload.AuthDate,
	}

	lines := make([]string, 0, len(fields))
	for key, value := range fields {
		if value != "" {
			lines = append(lines, key+"="+value)
		}
	}
	sort.Strings(lines)

	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))

	return hex.EncodeToString(mac.Sum(nil))
}
