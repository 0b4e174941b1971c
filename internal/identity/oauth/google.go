// Copyright (c) 2026 CyberVPN. All rights reserved.

package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleProvider federates identity through Google's OIDC endpoints.
type GoogleProvider struct {
	clientID     string
	clientSecret string
}

// NewGoogleProvider constructs the Google adapter.
func NewGoogleProvider(clientID, clientSecret string) *GoogleProvider {
	return &GoogleProvider{clientID: clientID, clientSecret: clientSecret}
}

// Name implements [Provider].
func (provider *GoogleProvider) Name() string { return "google" }

func (provider *GoogleProvider) config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     provider.clientID,
		ClientSecret: provider.clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

// AuthorizeURL implements [Provider].
func (provider *GoogleProvider) AuthorizeURL(redirectURI, state string) string {
	return provider.config(redirectURI).AuthCodeURL(state)
}

// googleUserInfo mirrors the OIDC userinfo response.
type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Exchange implements [Provider].
func (provider *GoogleProvider) Exchange(ctx context.Context, code, redirectURI string) (*UserInfo, error) {

	cfg := provider.config(redirectURI)

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google_code_exchange_failed: %w", err)
	}

	response, err := cfg.Client(ctx, token).Get(googleUserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("google_userinfo_fetch_failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google_userinfo_fetch_failed: unexpected status %d", response.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(response.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("google_userinfo_decode_failed: %w", err)
	}

	if info.Sub == "" {
		return nil, fmt.Errorf("google_userinfo_decode_failed: missing subject")
	}

	return &UserInfo{
		Provider:       provider.Name(),
		ProviderUserID: info.Sub,
		Email:          info.Email,
		EmailVerified:  info.EmailVerified,
		Username:       info.Name,
		AvatarURL:      info.Picture,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
	}, nil
}
