// Copyright (c) 2026 CyberVPN. All rights reserved.

package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/constants"
	requestutil "github.com/Beep206/CyberVPN-sub000/internal/platform/request"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/respond"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/sec"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/validate"
)

// stateTokenBytes sizes the CSRF state nonce.
const stateTokenBytes = 24

// HandlerConfig carries the transport-level federation settings.
type HandlerConfig struct {
	RedirectBaseURL string        // Public base URL the provider redirects back to.
	StateTTL        time.Duration // Lifetime of the CSRF state nonce.
}

// Handler implements the federated login HTTP endpoints.
type Handler struct {
	providers map[string]Provider
	telegram  *TelegramVerifier
	resolver  *Resolver
	client    *redis.Client
	cfg       HandlerConfig
}

// NewHandler constructs the federation handler.
//
// Providers with empty credentials should simply not be passed in; an
// unknown provider key answers 404.
func NewHandler(providers []Provider, telegram *TelegramVerifier, resolver *Resolver, client *redis.Client, cfg HandlerConfig) *Handler {

	index := make(map[string]Provider, len(providers))
	for _, provider := range providers {
		index[provider.Name()] = provider
	}

	return &Handler{
		providers: index,
		telegram:  telegram,
		resolver:  resolver,
		client:    client,
		cfg:       cfg,
	}
}

// Routes returns a [chi.Router] configured with federation routes.
//
// # Endpoints
//   - GET  /{provider}/login          : Redirects to the provider consent page.
//   - GET  /{provider}/login/callback : Provider redirect target; completes the exchange.
//   - POST /{provider}/login/callback : SPA relay of {code, state}; same completion.
//   - POST /telegram                  : Verifies a signed login-widget payload.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/telegram", handler.telegramLogin)
	router.Get("/{provider}/login", handler.login)
	router.Get("/{provider}/login/callback", handler.callbackRedirect)
	router.Post("/{provider}/login/callback", handler.callbackRelay)

	return router
}

// login handles GET /api/v1/oauth/{provider}/login requests.
//
// Stores a single-use CSRF state nonce in Redis, then issues a 302 to the
// provider's consent page.
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {

	provider, ok := handler.providers[requestutil.Param(request, "provider")]
	if !ok {
		respond.Error(writer, request, apperr.NotFound("provider"))
		return
	}

	state, err := sec.GenerateSecureToken(stateTokenBytes)
	if err != nil {
		respond.Error(writer, request, apperr.Internal(err))
		return
	}

	key := constants.RedisPrefixOAuthState + state
	if err := handler.client.Set(request.Context(), key, provider.Name(), handler.cfg.StateTTL).Err(); err != nil {
		respond.Error(writer, request, apperr.Internal(fmt.Errorf("oauth_state_store_failed: %w", err)))
		return
	}

	redirectURI := handler.callbackURL(provider.Name())
	http.Redirect(writer, request, provider.AuthorizeURL(redirectURI, state), http.StatusFound)
}

// callbackRedirect handles GET /api/v1/oauth/{provider}/login/callback, the
// redirect target registered with the provider.
func (handler *Handler) callbackRedirect(writer http.ResponseWriter, request *http.Request) {
	handler.completeLogin(writer, request,
		request.URL.Query().Get("state"),
		request.URL.Query().Get("code"))
}

// callbackRelay handles POST /api/v1/oauth/{provider}/login/callback for
// single-page clients that receive the provider redirect themselves and
// forward {code, state} as JSON.
func (handler *Handler) callbackRelay(writer http.ResponseWriter, request *http.Request) {

	var payload struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(request.Body).Decode(&payload); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	handler.completeLogin(writer, request, payload.State, payload.Code)
}

// completeLogin finishes a federated sign-in once code and state are in hand.
//
// # Flow
//
//  1. Consume the state nonce (GETDEL) and check it was minted for this
//     provider. A replayed or foreign state fails here.
//  2. Exchange the authorization code for the provider profile.
//  3. Resolve to a local account and issue tokens.
func (handler *Handler) completeLogin(writer http.ResponseWriter, request *http.Request, state, code string) {
	// ── 1. State Validation ───────────────────────────────────────────────

	provider, ok := handler.providers[requestutil.Param(request, "provider")]
	if !ok {
		respond.Error(writer, request, apperr.NotFound("provider"))
		return
	}

	if state == "" || code == "" {
		respond.Error(writer, request, validate.RequiredError("state/code", "are required"))
		return
	}

	stored, err := handler.client.GetDel(request.Context(), constants.RedisPrefixOAuthState+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			respond.Error(writer, request, apperr.Unauthorized("Invalid or expired login state"))
			return
		}
		respond.Error(writer, request, apperr.Internal(fmt.Errorf("oauth_state_lookup_failed: %w", err)))
		return
	}
	if stored != provider.Name() {
		respond.Error(writer, request, apperr.Unauthorized("Invalid or expired login state"))
		return
	}

	// ── 2. Code Exchange ──────────────────────────────────────────────────

	info, err := provider.Exchange(request.Context(), code, handler.callbackURL(provider.Name()))
	if err != nil {
		respond.Error(writer, request, apperr.Unauthorized("Provider sign-in failed"))
		return
	}

	// ── 3. Account Resolution ─────────────────────────────────────────────

	session, err := handler.resolver.ResolveAndLogin(request.Context(), info, requestutil.DeviceFingerprint(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, session)
}

// telegramLogin handles POST /api/v1/oauth/telegram requests.
//
// The login widget posts the signed profile directly; there is no redirect
// round-trip and no state nonce.
func (handler *Handler) telegramLogin(writer http.ResponseWriter, request *http.Request) {

	if handler.telegram == nil || !handler.telegram.Enabled() {
		respond.Error(writer, request, apperr.NotFound("provider"))
		return
	}

	var payload TelegramPayload
	if err := json.NewDecoder(request.Body).Decode(&payload); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	info, err := handler.telegram.Verify(payload, time.Now())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.resolver.ResolveAndLogin(request.Context(), info, requestutil.DeviceFingerprint(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, session)
}

// callbackURL builds the provider redirect target for this deployment.
func (handler *Handler) callbackURL(provider string) string {
	return handler.cfg.RedirectBaseURL + "/api/v1/oauth/" + provider + "/login/callback"
}
