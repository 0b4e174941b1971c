// Copyright (c) 2026 CyberVPN. All rights reserved.

package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Beep206/CyberVPN-sub000/internal/identity/auth"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/ctxutil"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/sec"
	"github.com/Beep206/CyberVPN-sub000/pkg/loginname"
	"github.com/Beep206/CyberVPN-sub000/pkg/uuid"
)

// Resolver maps a federated identity onto a local account.
type Resolver struct {
	users       auth.UserRepository
	accounts    auth.OAuthAccountRepository
	authService *auth.Service
	provisioner auth.Provisioner
	autoLink    bool
}

// NewResolver constructs the account resolution policy.
func NewResolver(
	users auth.UserRepository,
	accounts auth.OAuthAccountRepository,
	authService *auth.Service,
	provisioner auth.Provisioner,
	autoLink bool,
) *Resolver {
	return &Resolver{
		users:       users,
		accounts:    accounts,
		authService: authService,
		provisioner: provisioner,
		autoLink:    autoLink,
	}
}

/*
ResolveAndLogin turns a verified federated identity into a local session.

# Resolution Order

 1. Existing link: an oauth_account row for (provider, provider_user_id)
    wins unconditionally; the provider's email of the day is ignored.
 2. Auto-link: a verified provider email matching an existing local account
    attaches a new link to it, when the policy allows.
 3. Creation: otherwise a fresh active account is minted with a synthesized
    login and an unusable password.

The same provider identity always resolves to the same local account, no
matter how many times or through which branch it arrives.
*/
func (resolver *Resolver) ResolveAndLogin(ctx context.Context, info *UserInfo, fingerprint string) (*auth.LoginResult, error) {

	// ── 1. Existing Link ──────────────────────────────────────────────────

	account, err := resolver.accounts.FindByProviderID(ctx, info.Provider, info.ProviderUserID)
	if err == nil {
		user, err := resolver.users.FindByID(ctx, account.UserID)
		if err != nil {
			// An orphaned link means the owning account is gone. Reported
			// like any other failed sign-in, not as a missing resource.
			ctxutil.GetLogger(ctx).ErrorContext(ctx, "oauth_linked_user_missing",
				slog.String("provider", info.Provider),
				slog.String("user_id", account.UserID))
			return nil, apperr.Unauthorized("Provider sign-in failed")
		}

		resolver.refreshLink(ctx, account, info)

		return resolver.authService.IssueSession(ctx, user, fingerprint)
	}

	// ── 2. Auto-Link By Verified Email ────────────────────────────────────

	if resolver.autoLink && info.EmailVerified && info.Email != "" {
		user, err := resolver.users.FindByEmail(ctx, info.Email)
		if err == nil {
			if err := resolver.accounts.Create(ctx, resolver.newLink(user.ID, info)); err != nil {
				return nil, fmt.Errorf("oauth_auto_link_failed: %w", err)
			}

			return resolver.authService.IssueSession(ctx, user, fingerprint)
		}
	}

	// ── 3. Account Creation ───────────────────────────────────────────────

	user, err := resolver.createUser(ctx, info)
	if err != nil {
		return nil, err
	}

	if err := resolver.accounts.Create(ctx, resolver.newLink(user.ID, info)); err != nil {
		return nil, fmt.Errorf("oauth_link_create_failed: %w", err)
	}

	session, err := resolver.authService.IssueSession(ctx, user, fingerprint)
	if err != nil {
		return nil, err
	}
	session.IsNewUser = true

	return session, nil
}

// refreshLink updates the stored provider tokens and profile snapshot.
// Best-effort: a failure here must not break the login.
func (resolver *Resolver) refreshLink(ctx context.Context, account *auth.OAuthAccount, info *UserInfo) {

	account.Username = info.Username
	account.AvatarURL = info.AvatarURL
	account.AccessToken = info.AccessToken
	account.RefreshToken = info.RefreshToken

	if err := resolver.accounts.Update(ctx, account); err != nil {
		ctxutil.GetLogger(ctx).WarnContext(ctx, "oauth_link_refresh_failed",
			slog.String("provider", info.Provider),
			slog.Any("error", err))
	}
}

// newLink assembles an oauth_account row for the given local user.
func (resolver *Resolver) newLink(userID string, info *UserInfo) *auth.OAuthAccount {
	return &auth.OAuthAccount{
		ID:             uuid.New(),
		UserID:         userID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		Username:       info.Username,
		AvatarURL:      info.AvatarURL,
		AccessToken:    info.AccessToken,
		RefreshToken:   info.RefreshToken,
	}
}

// createUser mints a local account for a first-time federated identity.
//
// The account is active immediately: the provider already authenticated the
// person. The email-verified flag reflects whether the provider vouched for
// an address.
func (resolver *Resolver) createUser(ctx context.Context, info *UserInfo) (*auth.User, error) {

	login, err := auth.EnsureUniqueLogin(ctx, resolver.users, resolver.synthesizeLogin(info))
	if err != nil {
		return nil, err
	}

	hash, err := sec.UnusablePassword()
	if err != nil {
		return nil, fmt.Errorf("oauth_user_create_failed: %w", err)
	}

	// Reaching this point means we decided not to attach to any existing
	// account, so an address that already belongs to one cannot be claimed.
	email := strings.ToLower(info.Email)
	if email != "" {
		if _, err := resolver.users.FindByEmail(ctx, email); err == nil {
			email = ""
		}
	}

	// Telegram has no email concept, so its accounts count as verified;
	// everyone else is verified exactly when an address was kept.
	emailVerified := email != "" || info.Provider == "telegram"

	user := &auth.User{
		ID:              uuid.New(),
		Login:           login,
		Email:           email,
		PasswordHash:    hash,
		Role:            sec.RoleMember,
		IsActive:        true,
		IsEmailVerified: emailVerified,
	}

	if err := resolver.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if perr := resolver.provisioner.EnsureUser(ctx, user.ID, user.Login); perr != nil {
		ctxutil.GetLogger(ctx).ErrorContext(ctx, "vpn_provisioning_failed",
			slog.String("user_id", user.ID),
			slog.Any("error", perr))
	}

	return user, nil
}

// synthesizeLogin derives a login-name candidate from whatever identity
// material the provider exposed.
//
// Telegram has its own deterministic chain; every other provider takes the
// sanitized username whenever anything survives sanitization, then the email
// local part, then an anonymous placeholder.
func (resolver *Resolver) synthesizeLogin(info *UserInfo) string {

	if info.Provider == "telegram" {
		return loginname.ForTelegram(info.Username, info.FirstName, info.ProviderUserID)
	}

	if cleaned := loginname.Sanitize(info.Username); cleaned != "" {
		return cleaned
	}

	if cleaned := loginname.FromEmail(info.Email); cleaned != "" {
		return cleaned
	}

	suffix, err := sec.GenerateNumericOTP(8)
	if err != nil {
		// Entropy failure: the provider id is still unique per identity.
		suffix = info.ProviderUserID
	}

	return "user_" + suffix
}
