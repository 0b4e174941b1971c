// Copyright (c) 2026 CyberVPN. All rights reserved.

package auth

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/middleware"
	requestutil "github.com/Beep206/CyberVPN-sub000/internal/platform/request"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/respond"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/validate"
)

// Handler implements the authentication HTTP endpoints.
//
// # Scope
//
// Everything related to session lifecycle entry points: login, registration,
// email verification, magic links, and password recovery. Handlers parse and
// validate the payload, call the service, and shape the response — no
// business logic lives here.
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

// Routes returns a [chi.Router] configured with authentication routes.
//
// # Endpoints
//   - POST /register          : Creates a new account and sends the OTP.
//   - POST /login             : Authenticates and returns tokens.
//   - POST /refresh           : Rotates a refresh token.
//   - POST /verify-otp        : Activates an account with an emailed code.
//   - POST /resend-otp        : Re-sends the verification code.
//   - POST /magic-link        : Requests a passwordless login link.
//   - POST /magic-link/verify : Consumes a magic-link token.
//   - POST /forgot-password   : Starts password recovery.
//   - POST /reset-password    : Completes password recovery.
//   - POST /logout            : Revokes the presented tokens. (auth)
//   - POST /logout-all        : Revokes every session of the user. (auth)
//   - GET  /me                : Returns the authenticated profile. (auth)
//   - DELETE /me              : Soft-deletes the account, revokes every session. (auth)
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Post("/verify-otp", handler.verifyOTP)
	router.Post("/resend-otp", handler.resendOTP)
	router.Post("/magic-link", handler.requestMagicLink)
	router.Post("/magic-link/verify", handler.verifyMagicLink)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Post("/reset-password", handler.resetPassword)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Post("/logout", handler.logout)
		r.Post("/logout-all", handler.logoutAll)
		r.Get("/me", handler.me)
		r.Delete("/me", handler.deleteAccount)
	})

	return router
}

// registerRequest represents the JSON payload expected for account creation.
type registerRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// register handles POST /api/v1/auth/register requests.
//
// # Returns
//   - Writes HTTP 201 Created with the inactive user profile.
//   - Writes HTTP 400 Bad Request if validation rules fail.
//   - Writes HTTP 409 Conflict if the login or email is taken.
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	var input registerRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	// ── 2. Boundary Validation ────────────────────────────────────────────

	validator := &validate.Validator{}
	validator.LoginName("login", input.Login).
		Email("email", input.Email).
		Password("password", input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Application Execution ──────────────────────────────────────────

	user, err := handler.authService.Register(request.Context(), RegisterInput{
		Login:    input.Login,
		Email:    input.Email,
		Password: input.Password,
	})

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 4. Presentation Output ────────────────────────────────────────────

	respond.Created(writer, user)
}

// loginRequest represents the JSON payload expected for authentication.
type loginRequest struct {
	Identifier string `json:"identifier"` // Can be login or email
	Password   string `json:"password"`
}

// login handles POST /api/v1/auth/login requests.
//
// # Returns
//   - Writes HTTP 200 OK with tokens and the user profile. When the account
//     has TOTP enabled the payload carries requires_2fa=true and only a
//     limited pending token.
//   - Writes HTTP 401 Unauthorized for bad credentials.
//   - Writes HTTP 423 Locked when the account is locked out.
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	var input loginRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	// ── 2. Boundary Validation ────────────────────────────────────────────

	if input.Identifier == "" || input.Password == "" {
		respond.Error(writer, request, validate.RequiredError("identifier/password", "are required"))
		return
	}

	// ── 3. Application Execution ──────────────────────────────────────────

	session, err := handler.authService.Login(request.Context(), LoginInput{
		Identifier:  input.Identifier,
		Password:    input.Password,
		Fingerprint: requestutil.DeviceFingerprint(request),
	})

	if err != nil {
		// Will return HTTP 401 without leaking the reason (wrong password vs
		// unknown account).
		respond.Error(writer, request, err)
		return
	}

	// ── 4. Presentation Output ────────────────────────────────────────────

	respond.OK(writer, session)
}

// refreshRequest carries the refresh token to rotate.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refresh handles POST /api/v1/auth/refresh requests.
//
// # Returns
//   - Writes HTTP 200 OK with a freshly rotated token pair.
//   - Writes HTTP 401 Unauthorized for invalid, revoked, or rebound tokens.
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	var input refreshRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.RefreshToken == "" {
		respond.Error(writer, request, validate.RequiredError("refresh_token", "is required"))
		return
	}

	// ── 2. Application Execution ──────────────────────────────────────────

	session, err := handler.authService.Refresh(request.Context(), input.RefreshToken, requestutil.DeviceFingerprint(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Presentation Output ────────────────────────────────────────────

	respond.OK(writer, session)
}

// logoutRequest optionally carries the refresh token to strike together with
// the presented access token.
type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// logout handles POST /api/v1/auth/logout requests.
//
// Idempotent: logging out an already-dead session still returns 200.
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {

	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// The body is optional; an empty or malformed one means access-only.
	var input logoutRequest
	_ = json.NewDecoder(request.Body).Decode(&input)

	if err := handler.authService.Logout(request.Context(), claims, input.RefreshToken); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// logoutAll handles POST /api/v1/auth/logout-all requests.
func (handler *Handler) logoutAll(writer http.ResponseWriter, request *http.Request) {

	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	count, err := handler.authService.LogoutAll(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"sessions_revoked": count})
}

// me handles GET /api/v1/auth/me requests.
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {

	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.Me(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// deleteAccount handles DELETE /api/v1/auth/me requests.
func (handler *Handler) deleteAccount(writer http.ResponseWriter, request *http.Request) {

	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.DeleteAccount(request.Context(), userID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// verifyOTPRequest carries an emailed verification code.
type verifyOTPRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// verifyOTP handles POST /api/v1/auth/verify-otp requests.
//
// # Returns
//   - Writes HTTP 200 OK with tokens once the account is activated.
//   - Writes HTTP 400 Bad Request for wrong, expired, or missing codes.
//   - Writes HTTP 429 Too Many Requests once the attempt budget is spent.
func (handler *Handler) verifyOTP(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	var input verifyOTPRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	// ── 2. Boundary Validation ────────────────────────────────────────────

	validator := &validate.Validator{}
	validator.Email("email", input.Email).
		NumericCode("code", input.Code, 6)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Application Execution ──────────────────────────────────────────

	session, err := handler.authService.VerifyOTP(request.Context(), input.Email, input.Code, requestutil.DeviceFingerprint(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 4. Presentation Output ────────────────────────────────────────────

	respond.OK(writer, session)
}

// emailRequest is the shared single-field payload for email-driven flows.
type emailRequest struct {
	Email string `json:"email"`
}

// resendOTP handles POST /api/v1/auth/resend-otp requests.
func (handler *Handler) resendOTP(writer http.ResponseWriter, request *http.Request) {

	var input emailRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	if err := validator.Email("email", input.Email).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ResendOTP(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"message": "Verification code sent"})
}

// requestMagicLink handles POST /api/v1/auth/magic-link requests.
//
// Always answers 200 for a well-formed address so the endpoint cannot be
// used to enumerate accounts. Only the rate limit surfaces as an error.
func (handler *Handler) requestMagicLink(writer http.ResponseWriter, request *http.Request) {

	var input emailRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	if err := validator.Email("email", input.Email).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err := handler.authService.RequestMagicLink(request.Context(), input.Email, requestutil.ClientIP(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"message": "If the address is registered, a login link is on its way"})
}

// verifyMagicLinkRequest carries the opaque single-use token.
type verifyMagicLinkRequest struct {
	Token string `json:"token"`
}

// verifyMagicLink handles POST /api/v1/auth/magic-link/verify requests.
//
// # Returns
//   - Writes HTTP 200 OK with tokens; first use of an unknown address
//     creates the account.
//   - Writes HTTP 400 Bad Request for unknown, expired, or consumed tokens.
func (handler *Handler) verifyMagicLink(writer http.ResponseWriter, request *http.Request) {

	var input verifyMagicLinkRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.Token == "" {
		respond.Error(writer, request, validate.RequiredError("token", "is required"))
		return
	}

	session, err := handler.authService.VerifyMagicLink(request.Context(), input.Token, requestutil.DeviceFingerprint(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, session)
}

// forgotPassword handles POST /api/v1/auth/forgot-password requests.
//
// Unconditionally answers 200 for a well-formed address.
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {

	var input emailRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	if err := validator.Email("email", input.Email).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.authService.ForgotPassword(request.Context(), input.Email)

	respond.OK(writer, map[string]any{"message": "If the address is registered, a reset code is on its way"})
}

// resetPasswordRequest carries the reset code and the replacement password.
type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// resetPassword handles POST /api/v1/auth/reset-password requests.
//
// # Returns
//   - Writes HTTP 200 OK once the password is replaced; every existing
//     session is revoked as a side effect.
//   - Writes HTTP 400 Bad Request for wrong or expired codes.
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	var input resetPasswordRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	// ── 2. Boundary Validation ────────────────────────────────────────────

	validator := &validate.Validator{}
	validator.Email("email", input.Email).
		NumericCode("code", input.Code, 6).
		Password("new_password", input.NewPassword)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Application Execution ──────────────────────────────────────────

	err := handler.authService.ResetPassword(request.Context(), input.Email, input.Code, input.NewPassword)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 4. Presentation Output ────────────────────────────────────────────

	respond.OK(writer, map[string]any{"message": "Password updated. Please log in again."})
}
