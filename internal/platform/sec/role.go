// Copyright (c) 2026 CyberVPN. All rights reserved.

package sec

// # User Roles

// UserRole represents the authorization level granted to an account.
type UserRole string

const (
	// Unrestricted system access
	RoleAdmin UserRole = "admin"

	// Default role for standard registered users
	RoleMember UserRole = "member"

	// RolePending2FA marks a deliberately limited access token issued after
	// a successful password/OAuth check but before TOTP verification. Tokens
	// carrying this role are rejected by every endpoint except 2FA verify.
	RolePending2FA UserRole = "2fa_pending"
)

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r UserRole) AtLeast(target UserRole) bool {
	return r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r UserRole) level() int {

	// Linear scale allows for future intermediate roles
	switch r {
	case RoleAdmin:
		return 40
	case RoleMember:
		return 10
	default:
		// 2fa_pending and unknown roles carry no privileges
		return 0
	}
}
