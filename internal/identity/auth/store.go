// Copyright (c) 2026 CyberVPN. All rights reserved.

package auth

import (
	"context"
)

// UserRepository defines the data access contract for user accounts.
//
// # Review Process
//
// This interface is placed in a separate file from user.go so entity changes
// and storage-contract changes can be reviewed independently by the team.
//
// # Implementations
//
// The canonical implementation is PostgreSQL (store_postgres.go).
type UserRepository interface {
	// FindByID returns the account with the given ID.
	//
	// Returns [apperr.NotFound] if the account does not exist.
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByEmail returns the account with the given email (case-insensitive).
	//
	// Returns [apperr.NotFound] if no user is registered with this email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByLogin returns the account with the given login (case-insensitive).
	//
	// Returns [apperr.NotFound] if the login is available.
	FindByLogin(ctx context.Context, login string) (*User, error)

	// Create persists a brand-new user account to the storage.
	//
	// Returns a wrapped error if a unique constraint (email/login) fails.
	Create(ctx context.Context, user *User) error

	// Update persists changes to the account's mutable flags and 2FA fields.
	// Passwords must be updated via [UpdatePassword].
	Update(ctx context.Context, user *User) error

	// UpdatePassword replaces only the user's password hash.
	// This is separate from [Update] to prevent accidental overwrites
	// during unrelated profile updates.
	UpdatePassword(ctx context.Context, userID, newHash string) error

	// SoftDelete marks the account as deleted without removing the row.
	SoftDelete(ctx context.Context, id string) error
}

// OAuthAccountRepository defines the data access contract for provider links.
//
// # Domain Ownership
//
// Kept alongside [UserRepository] because provider links are owned entirely
// by the identity domain.
type OAuthAccountRepository interface {
	// FindByProviderID returns the link for one (provider, provider user id)
	// pair.
	//
	// Returns [apperr.NotFound] if this provider identity was never linked.
	FindByProviderID(ctx context.Context, provider, providerUserID string) (*OAuthAccount, error)

	// Create persists a new provider link.
	//
	// Returns a wrapped error if the (provider, provider user id) pair
	// already exists.
	Create(ctx context.Context, account *OAuthAccount) error

	// Update refreshes the cached profile and provider tokens on an existing
	// link. Called on every OAuth login through a known identity.
	Update(ctx context.Context, account *OAuthAccount) error
}

// OtpRepository defines the data access contract for one-time codes.
type OtpRepository interface {
	// Create persists a freshly issued code.
	Create(ctx context.Context, code *OtpCode) error

	// FindCurrent returns the most recently issued unconsumed code for
	// (user, purpose), expired or not, so the verifier can report the
	// precise failure kind.
	//
	// Returns [apperr.NotFound] if no such code exists.
	FindCurrent(ctx context.Context, userID string, purpose OtpPurpose) (*OtpCode, error)

	// IncrementAttempts bumps the attempts-used counter by one.
	// Called on every verification attempt, match or not.
	IncrementAttempts(ctx context.Context, id string) error

	// MarkVerified stamps the code as consumed.
	MarkVerified(ctx context.Context, id string) error

	// InvalidateActive closes out every unconsumed code for (user, purpose).
	// Called before issuing a replacement so only one code is ever current.
	InvalidateActive(ctx context.Context, userID string, purpose OtpPurpose) error
}
