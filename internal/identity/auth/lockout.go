// Copyright (c) 2026 CyberVPN. All rights reserved.

package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/constants"
)

// # Progressive Lockout

// lockoutCounterTTL bounds how long a failure streak is remembered.
// It must exceed the longest timed lockout tier.
const lockoutCounterTTL = 24 * time.Hour

// permanentMarker is stored in the until-key without an expiry when the
// permanent tier is reached. A timed lockout stores an ordinary expiring key,
// so the two are distinguishable by TTL.
const permanentMarker = "permanent"

// Redis TTL sentinels as go-redis reports them.
const (
	noExpiry   = time.Duration(-1)
	keyMissing = time.Duration(-2)
)

// LockoutPolicy holds the tier thresholds and durations, injected from config.
type LockoutPolicy struct {
	Tier1Attempts     int           // Failures that start the first timed tier.
	Tier1Duration     time.Duration // Length of the first tier.
	Tier2Attempts     int           // Failures that start the second timed tier.
	Tier2Duration     time.Duration // Length of the second tier.
	PermanentAttempts int           // Failures that lock the identifier for good.
}

// LockoutGuard tracks consecutive authentication failures per identifier and
// enforces escalating lockout windows.
//
// # Contract
//
// Check MUST run before any credential verification. Skipping it is a
// protocol violation: a locked identifier must never reach the bcrypt check.
//
// # Storage
//
// Two Redis keys per lowercase identifier:
//   - count key: consecutive failures since the last success (INCR).
//   - until key: present while a lockout window is active; no TTL means the
//     lock is permanent and requires administrative removal.
type LockoutGuard struct {
	client *redis.Client
	policy LockoutPolicy
}

// NewLockoutGuard constructs the guard with its injected policy.
func NewLockoutGuard(client *redis.Client, policy LockoutPolicy) *LockoutGuard {
	return &LockoutGuard{client: client, policy: policy}
}

// normalizeIdentifier folds the login-or-email to its canonical form so
// "User@Example.com" and "user@example.com" share one counter.
func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

/*
Check fails if the identifier is currently inside a lockout window.

Parameters:
  - ctx: context.Context
  - identifier: login or email presented by the caller.

Returns:
  - error: [apperr.Locked] with the permanent flag or retry-after seconds,
    nil when the identifier may proceed to credential verification.
*/
func (guard *LockoutGuard) Check(ctx context.Context, identifier string) error {

	key := constants.RedisPrefixLockoutUntil + normalizeIdentifier(identifier)

	// One TTL read answers everything: -2 means no until-key (not locked),
	// -1 means a key without expiry (the permanent tier), positive is the
	// remaining timed window.
	ttl, err := guard.client.TTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("lockout_check_failed: %w", err)
	}

	switch {
	case ttl == keyMissing:
		return nil
	case ttl == noExpiry:
		return apperr.Locked(true, 0)
	}

	return apperr.Locked(false, int(ttl.Seconds()))
}

/*
RecordFailure increments the consecutive-failure counter and, when a tier
threshold is crossed, opens the matching lockout window.

Parameters:
  - ctx: context.Context
  - identifier: login or email presented by the caller.

Returns:
  - int: total failures recorded since the last success.
  - error: storage failures only; crossing a tier is not an error here.
*/
func (guard *LockoutGuard) RecordFailure(ctx context.Context, identifier string) (int, error) {

	id := normalizeIdentifier(identifier)
	countKey := constants.RedisPrefixLockoutCount + id

	// 1. Atomic increment; the first failure starts the streak window
	attempts, err := guard.client.Incr(ctx, countKey).Result()
	if err != nil {
		return 0, fmt.Errorf("lockout_incr_failed: %w", err)
	}
	if attempts == 1 {
		if err := guard.client.Expire(ctx, countKey, lockoutCounterTTL).Err(); err != nil {
			return int(attempts), fmt.Errorf("lockout_expire_failed: %w", err)
		}
	}

	// 2. Escalate to the tier matching the new total
	untilKey := constants.RedisPrefixLockoutUntil + id

	switch {
	case int(attempts) >= guard.policy.PermanentAttempts:
		// Stored without TTL so Check reports it as permanent
		err = guard.client.Set(ctx, untilKey, permanentMarker, 0).Err()
	case int(attempts) >= guard.policy.Tier2Attempts:
		err = guard.client.Set(ctx, untilKey, "1", guard.policy.Tier2Duration).Err()
	case int(attempts) >= guard.policy.Tier1Attempts:
		err = guard.client.Set(ctx, untilKey, "1", guard.policy.Tier1Duration).Err()
	}

	if err != nil {
		return int(attempts), fmt.Errorf("lockout_set_until_failed: %w", err)
	}

	return int(attempts), nil
}

/*
Reset clears the failure streak and any open lockout window.

Called on every successful authentication for the identifier.
*/
func (guard *LockoutGuard) Reset(ctx context.Context, identifier string) error {

	id := normalizeIdentifier(identifier)

	err := guard.client.Del(ctx,
		constants.RedisPrefixLockoutCount+id,
		constants.RedisPrefixLockoutUntil+id,
	).Err()
	if err != nil {
		return fmt.Errorf("lockout_reset_failed: %w", err)
	}

	return nil
}
