// Copyright (c) 2026 CyberVPN. All rights reserved.

/*
Package oauth implements third-party identity federation.

Architecture:

  - Each provider (Google, GitHub, Telegram) is an adapter behind the
    [Provider] interface, normalizing its wire format into a [UserInfo].
  - The [Resolver] owns the account linking policy: existing link, auto-link
    by verified email, or fresh account creation.
  - The HTTP layer manages the state cookie dance and delegates token
    issuance back to the auth service.
*/
package oauth

import (
	"context"
)

// UserInfo is the provider-agnostic identity projection.
//
// ProviderUserID is the only field guaranteed non-empty; everything else is
// best-effort and provider-dependent.
type UserInfo struct {
	Provider       string
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Username       string
	FirstName      string
	AvatarURL      string
	AccessToken    string
	RefreshToken   string
}

// Provider abstracts a redirect-based OAuth identity source.
//
// Telegram does not fit this shape (its login widget posts a signed payload
// instead of running an authorization-code exchange) and is handled by
// [TelegramVerifier] directly.
type Provider interface {
	// Name returns the lowercase provider key used in URLs and storage.
	Name() string

	// AuthorizeURL builds the provider consent page URL for the given
	// callback and CSRF state.
	AuthorizeURL(redirectURI, state string) string

	// Exchange swaps an authorization code for the provider's tokens and
	// fetches the normalized profile.
	Exchange(ctx context.Context, code, redirectURI string) (*UserInfo, error)
}
