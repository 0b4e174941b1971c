// Copyright (c) 2026 CyberVPN. All rights reserved.

package oauth_test

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beep206/CyberVPN-sub000/internal/identity/oauth"
)

const testBotToken = "7000000001:AAF3kTestBotTokenForSignatureChecks"

// signedPayload builds a widget payload signed with the test bot token.
func signedPayload(authDate time.Time) oauth.TelegramPayload {
	payload := oauth.TelegramPayload{
		ID:        "424242",
		FirstName: "Trinity",
		Username:  "trinity_tg",
		PhotoURL:  "https://t.me/i/userpic/320/trinity.jpg",
		AuthDate:  strconv.FormatInt(authDate.Unix(), 10),
	}
	payload.Hash = oauth.SignPayload(testBotToken, payload)
	return payload
}

/*
TestTelegramVerifier_Verify verifies a correctly signed, fresh payload and
the identity mapping.
*/
func TestTelegramVerifier_Verify(t *testing.T) {
	verifier := oauth.NewTelegramVerifier(testBotToken, 24*time.Hour)
	now := time.Now()

	info, err := verifier.Verify(signedPayload(now), now)
	require.NoError(t, err)
	assert.Equal(t, "telegram", info.Provider)
	assert.Equal(t, "424242", info.ProviderUserID)
	assert.Equal(t, "trinity_tg", info.Username)
	assert.Equal(t, "Trinity", info.FirstName)

	// Telegram never vouches for an email address
	assert.Empty(t, info.Email)
	assert.False(t, info.EmailVerified)
}

/*
TestTelegramVerifier_TamperedPayload verifies that changing any signed field
invalidates the hash.
*/
func TestTelegramVerifier_TamperedPayload(t *testing.T) {
	verifier := oauth.NewTelegramVerifier(testBotToken, 24*time.Hour)
	now := time.Now()

	tests := []struct {
		name   string
		mutate func(*oauth.TelegramPayload)
	}{
		{"id", func(p *oauth.TelegramPayload) { p.ID = "424243" }},
		{"first_name", func(p *oauth.TelegramPayload) { p.FirstName = "Agent" }},
		{"username", func(p *oauth.TelegramPayload) { p.Username = "smith" }},
		{"auth_date", func(p *oauth.TelegramPayload) { p.AuthDate = strconv.FormatInt(now.Add(time.Hour).Unix(), 10) }},
		{"hash", func(p *oauth.TelegramPayload) { p.Hash = strings.Repeat("0", 64) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload := signedPayload(now)
			tc.mutate(&payload)

			_, err := verifier.Verify(payload, now)
			require.Error(t, err)
		})
	}
}

/*
TestTelegramVerifier_WrongBotToken verifies that a signature from another
bot is rejected.
*/
func TestTelegramVerifier_WrongBotToken(t *testing.T) {
	verifier := oauth.NewTelegramVerifier("7000000002:AADifferentBot", 24*time.Hour)

	now := time.Now()
	_, err := verifier.Verify(signedPayload(now), now)
	require.Error(t, err)
}

/*
TestTelegramVerifier_HashCaseInsensitive verifies that an uppercase hex
digest still verifies.
*/
func TestTelegramVerifier_HashCaseInsensitive(t *testing.T) {
	verifier := oauth.NewTelegramVerifier(testBotToken, 24*time.Hour)
	now := time.Now()

	payload := signedPayload(now)
	payload.Hash = strings.ToUpper(payload.Hash)

	_, err := verifier.Verify(payload, now)
	assert.NoError(t, err)
}

/*
TestTelegramVerifier_StalePayload verifies the auth_date freshness window.
*/
func TestTelegramVerifier_StalePayload(t *testing.T) {
	verifier := oauth.NewTelegramVerifier(testBotToken, 24*time.Hour)
	now := time.Now()

	// Signed 25 hours ago, window is 24
	_, err := verifier.Verify(signedPayload(now.Add(-25*time.Hour)), now)
	require.Error(t, err)

	// Just inside the window
	_, err = verifier.Verify(signedPayload(now.Add(-23*time.Hour)), now)
	assert.NoError(t, err)
}

/*
TestTelegramVerifier_IncompletePayload verifies the required-field guard.
*/
func TestTelegramVerifier_IncompletePayload(t *testing.T) {
	verifier := oauth.NewTelegramVerifier(testBotToken, 24*time.Hour)
	now := time.Now()

	for _, mutate := range []func(*oauth.TelegramPayload){
		func(p *oauth.TelegramPayload) { p.ID = "" },
		func(p *oauth.TelegramPayload) { p.Hash = "" },
		func(p *oauth.TelegramPayload) { p.AuthDate = "" },
	} {
		payload := signedPayload(now)
		mutate(&payload)

		_, err := verifier.Verify(payload, now)
		require.Error(t, err)
	}
}

/*
TestTelegramVerifier_OptionalFieldsOmitted verifies that absent optional
fields stay out of the signed document.
*/
func TestTelegramVerifier_OptionalFieldsOmitted(t *testing.T) {
	verifier := oauth.NewTelegramVerifier(testBotToken, 24*time.Hour)
	now := time.Now()

	payload := oauth.TelegramPayload{
		ID:       "424242",
		AuthDate: strconv.FormatInt(now.Unix(), 10),
	}
	payload.Hash = oauth.SignPayload(testBotToken, payload)

	info, err := verifier.Verify(payload, now)
	require.NoError(t, err)
	assert.Equal(t, "424242", info.ProviderUserID)
}
