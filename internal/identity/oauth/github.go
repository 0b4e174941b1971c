// Copyright (c) 2026 CyberVPN. All rights reserved.

package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	ghendpoint "golang.org/x/oauth2/github"
)

const (
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
)

// GitHubProvider federates identity through the GitHub OAuth app flow.
type GitHubProvider struct {
	clientID     string
	clientSecret string
}

// NewGitHubProvider constructs the GitHub adapter.
func NewGitHubProvider(clientID, clientSecret string) *GitHubProvider {
	return &GitHubProvider{clientID: clientID, clientSecret: clientSecret}
}

// Name implements [Provider].
func (provider *GitHubProvider) Name() string { return "github" }

func (provider *GitHubProvider) config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     provider.clientID,
		ClientSecret: provider.clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     ghendpoint.Endpoint,
	}
}

// AuthorizeURL implements [Provider].
func (provider *GitHubProvider) AuthorizeURL(redirectURI, state string) string {
	return provider.config(redirectURI).AuthCodeURL(state)
}

// githubUser mirrors the /user response fields we consume.
type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// githubEmail mirrors one entry of the /user/emails response.
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Exchange implements [Provider].
//
// The public profile email is often hidden, so the verified primary address
// is fetched from /user/emails as a fallback.
func (provider *GitHubProvider) Exchange(ctx context.Context, code, redirectURI string) (*UserInfo, error) {

	cfg := provider.config(redirectURI)

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github_code_exchange_failed: %w", err)
	}

	client := cfg.Client(ctx, token)

	var profile githubUser
	if err := getJSON(ctx, client, githubUserURL, &profile); err != nil {
		return nil, fmt.Errorf("github_profile_fetch_failed: %w", err)
	}

	if profile.ID == 0 {
		return nil, fmt.Errorf("github_profile_fetch_failed: missing user id")
	}

	info := &UserInfo{
		Provider:       provider.Name(),
		ProviderUserID: strconv.FormatInt(profile.ID, 10),
		Email:          profile.Email,
		EmailVerified:  profile.Email != "",
		Username:       profile.Login,
		AvatarURL:      profile.AvatarURL,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
	}

	if info.Email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, client, githubEmailsURL, &emails); err == nil {
			for _, candidate := range emails {
				if candidate.Primary && candidate.Verified {
					info.Email = candidate.Email
					info.EmailVerified = true
					break
				}
			}
		}
	}

	return info, nil
}

// getJSON performs an authenticated GET and decodes the JSON body.
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", "application/vnd.github+json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", response.StatusCode)
	}

	return json.NewDecoder(response.Body).Decode(out)
}
