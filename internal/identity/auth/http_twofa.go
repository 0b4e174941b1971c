// Copyright (c) 2026 CyberVPN. All rights reserved.

package auth

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/middleware"
	requestutil "github.com/Beep206/CyberVPN-sub000/internal/platform/request"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/respond"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/sec"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/validate"
)

// TwoFAHandler implements the TOTP two-factor HTTP endpoints.
type TwoFAHandler struct {
	totpService *TotpService
	authService *Service
}

// NewTwoFAHandler constructs a new [TwoFAHandler].
func NewTwoFAHandler(totpService *TotpService, authService *Service) *TwoFAHandler {
	return &TwoFAHandler{totpService: totpService, authService: authService}
}

// Routes returns a [chi.Router] configured with two-factor routes.
//
// # Endpoints
//   - POST /reauth   : Re-proves the password before sensitive changes. (auth)
//   - POST /setup    : Begins enrollment, returns the provisioning URI. (auth)
//   - POST /verify   : Confirms enrollment, or completes a pending login.
//   - POST /validate : Checks a code for an already-enabled account. (auth)
//   - GET  /status   : Reports disabled / pending_setup / enabled. (auth)
//   - DELETE /disable : Turns 2FA off, returns one-time recovery codes. (auth)
//
// /verify accepts the limited 2fa_pending credential so a login interrupted
// by the second factor can be completed; everything else demands a full
// session.
func (handler *TwoFAHandler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Group(func(r chi.Router) {
		r.Use(middleware.AllowPending2FA)

		r.Post("/verify", handler.verify)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Post("/reauth", handler.reauth)
		r.Post("/setup", handler.setup)
		r.Post("/validate", handler.validateCode)
		r.Get("/status", handler.status)
		r.Delete("/disable", handler.disable)
	})

	return router
}

// passwordRequest carries a bare password re-proof.
type passwordRequest struct {
	Password string `json:"password"`
}

// reauth handles POST /api/v1/2fa/reauth requests.
//
// # Returns
//   - Writes HTTP 200 OK with the re-auth window length in minutes.
//   - Writes HTTP 401 Unauthorized for a wrong password.
func (handler *TwoFAHandler) reauth(writer http.ResponseWriter, request *http.Request) {

	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input passwordRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.Password == "" {
		respond.Error(writer, request, validate.RequiredError("password", "is required"))
		return
	}

	minutes, err := handler.totpService.Reauth(request.Context(), userID, input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"valid_for_minutes": minutes})
}

// setup handles POST /api/v1/2fa/setup requests.
//
// # Returns
//   - Writes HTTP 200 OK with the shared secret and otpauth:// URI.
//   - Writes HTTP 401 Unauthorized when no fresh re-auth is on record.
//   - Writes HTTP 400 Bad Request when 2FA is already enabled.
func (handler *TwoFAHandler) setup(writer http.ResponseWriter, request *http.Request) {

	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	secret, uri, err := handler.totpService.Setup(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"secret": secret,
		"qr_uri": uri,
	})
}

// codeRequest carries a six-digit authenticator code.
type codeRequest struct {
	Code string `json:"code"`
}

// verify handles POST /api/v1/2fa/verify requests.
//
// Two callers land here:
//   - A 2fa_pending credential from login: a correct code completes the
//     login and the response carries a full token pair.
//   - A full session mid-enrollment: a correct code flips the account to
//     enabled and the response is a plain confirmation.
func (handler *TwoFAHandler) verify(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input codeRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	if err := validator.NumericCode("code", input.Code, 6).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 2. Pending-Login Completion ───────────────────────────────────────

	if claims.Role == string(sec.RolePending2FA) {
		session, err := handler.authService.CompleteTwoFALogin(request.Context(),
			claims.UserID, input.Code, requestutil.DeviceFingerprint(request))
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		respond.OK(writer, session)
		return
	}

	// ── 3. Enrollment Confirmation ────────────────────────────────────────

	if err := handler.totpService.Verify(request.Context(), claims.UserID, input.Code); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"status": TwoFAStatusEnabled})
}

// validateCode handles POST /api/v1/2fa/validate requests.
//
// A pure check for already-enabled accounts; nothing changes server-side.
func (handler *TwoFAHandler) validateCode(writer http.ResponseWriter, request *http.Request) {

	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input codeRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	if err := validator.NumericCode("code", input.Code, 6).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	valid, err := handler.totpService.Validate(request.Context(), userID, input.Code)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"valid": valid})
}

// status handles GET /api/v1/2fa/status requests.
func (handler *TwoFAHandler) status(writer http.ResponseWriter, request *http.Request) {

	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	state, err := handler.totpService.Status(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"status": state})
}

// disableRequest carries the double proof required to turn 2FA off.
type disableRequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

// disable handles DELETE /api/v1/2fa/disable requests.
//
// # Returns
//   - Writes HTTP 200 OK with freshly generated recovery codes. The
//     plaintext codes appear in this response only; the server keeps
//     hashes.
//   - Writes HTTP 401 Unauthorized when either proof fails.
func (handler *TwoFAHandler) disable(writer http.ResponseWriter, request *http.Request) {

	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input disableRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required("password", input.Password).
		NumericCode("code", input.Code, 6)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	codes, err := handler.totpService.Disable(request.Context(), userID, input.Password, input.Code)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"status":         TwoFAStatusDisabled,
		"recovery_codes": codes,
	})
}
