// Copyright (c) 2026 CyberVPN. All rights reserved.

/*
Package provision talks to the VPN backend that owns server-side user state
(device slots, traffic accounting).

The identity service is the source of truth for credentials; the VPN
backend only needs to know that a user exists. EnsureUser is idempotent on
the backend side, so retries are always safe.
*/
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client calls the VPN provisioning API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs the provisioning client.
//
// An empty baseURL disables provisioning: EnsureUser becomes a no-op so
// local development does not need the VPN backend running.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ensureUserRequest is the provisioning API payload.
type ensureUserRequest struct {
	UserID string `json:"user_id"`
	Login  string `json:"login"`
}

// EnsureUser creates the VPN-side account if it does not exist yet.
func (client *Client) EnsureUser(ctx context.Context, userID, login string) error {

	if client.baseURL == "" {
		return nil
	}

	body, err := json.Marshal(ensureUserRequest{UserID: userID, Login: login})
	if err != nil {
		return fmt.Errorf("provision_encode_failed: %w", err)
	}

	url := client.baseURL + "/internal/v1/users/ensure"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("provision_request_failed: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+client.token)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("provision_request_failed: %w", err)
	}
	defer response.Body.Close()

	// 200 means existed, 201 means created; both are success.
	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusCreated {
		return fmt.Errorf("provision_request_failed: unexpected status %d", response.StatusCode)
	}

	return nil
}
