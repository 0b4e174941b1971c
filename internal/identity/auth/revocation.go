// Copyright (c) 2026 CyberVPN. All rights reserved.

package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/constants"
)

// # Token Revocation

// RevocationRegistry tracks invalidated tokens in Redis.
//
// Two mechanisms cover the two logout shapes:
//
//   - Per-token denylist: explicit logout marks the presented jti pair until
//     the refresh token's natural expiry.
//   - Per-user boundary: logout-all stores a unix timestamp; any token whose
//     issued-at precedes it is rejected, while tokens minted afterwards stay
//     valid.
//
// A session-set per user exists purely so logout-all can report how many
// live sessions it struck.
type RevocationRegistry struct {
	client *redis.Client

	// denylist entries and session sets must outlive the longest token
	retention time.Duration
}

// NewRevocationRegistry constructs the registry.
//
// retention must be at least the refresh token TTL.
func NewRevocationRegistry(client *redis.Client, retention time.Duration) *RevocationRegistry {
	return &RevocationRegistry{client: client, retention: retention}
}

/*
Track records a freshly issued refresh token in the user's session set so
logout-all can count it later.

Parameters:
  - ctx: context.Context
  - userID: the token subject.
  - tokenID: the refresh token's jti.
*/
func (registry *RevocationRegistry) Track(ctx context.Context, userID, tokenID string) error {

	key := constants.RedisPrefixUserSessions + userID

	pipe := registry.client.TxPipeline()
	pipe.SAdd(ctx, key, tokenID)
	pipe.Expire(ctx, key, registry.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("revocation_track_failed: %w", err)
	}

	return nil
}

/*
Revoke denylists a single token until its natural expiry.

Parameters:
  - ctx: context.Context
  - tokenID: the jti to strike.
  - userID: the token subject, used to drop it from the session set.
*/
func (registry *RevocationRegistry) Revoke(ctx context.Context, tokenID, userID string) error {

	pipe := registry.client.TxPipeline()
	pipe.Set(ctx, constants.RedisPrefixRevokedToken+tokenID, "1", registry.retention)
	pipe.SRem(ctx, constants.RedisPrefixUserSessions+userID, tokenID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("revocation_revoke_failed: %w", err)
	}

	return nil
}

/*
RevokeAll invalidates every token issued to the user up to now by writing the
per-user boundary timestamp, and clears the session set.

Returns:
  - int: number of live refresh sessions that were struck.
  - error: storage failures.
*/
func (registry *RevocationRegistry) RevokeAll(ctx context.Context, userID string) (int, error) {

	sessionKey := constants.RedisPrefixUserSessions + userID

	// 1. Count live sessions before clearing them
	count, err := registry.client.SCard(ctx, sessionKey).Result()
	if err != nil {
		return 0, fmt.Errorf("revocation_count_failed: %w", err)
	}

	// 2. Write the boundary and drop the set atomically
	now := time.Now().Unix()

	pipe := registry.client.TxPipeline()
	pipe.Set(ctx, constants.RedisPrefixRevokedBefore+userID, strconv.FormatInt(now, 10), registry.retention)
	pipe.Del(ctx, sessionKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("revocation_revoke_all_failed: %w", err)
	}

	return int(count), nil
}

/*
IsTokenRevoked reports whether a structurally valid token has been struck by
an explicit revocation or a logout-all boundary.

Consulted by the middleware on every authenticated request. Satisfies
[middleware.RevocationChecker].

Parameters:
  - ctx: context.Context
  - tokenID: the token's jti.
  - userID: the token subject.
  - issuedAt: the token's iat claim.

Returns:
  - bool: true when the token must be rejected.
  - error: storage failures (callers fail closed).
*/
func (registry *RevocationRegistry) IsTokenRevoked(ctx context.Context, tokenID, userID string, issuedAt time.Time) (bool, error) {

	// 1. Explicit denylist entry
	_, err := registry.client.Get(ctx, constants.RedisPrefixRevokedToken+tokenID).Result()
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("revocation_denylist_check_failed: %w", err)
	}

	// 2. Logout-all boundary
	boundary, err := registry.client.Get(ctx, constants.RedisPrefixRevokedBefore+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("revocation_boundary_check_failed: %w", err)
	}

	boundaryUnix, err := strconv.ParseInt(boundary, 10, 64)
	if err != nil {
		return false, fmt.Errorf("revocation_boundary_parse_failed: %w", err)
	}

	// Tokens minted at or before the boundary second are rejected. The
	// boundary is inclusive because iat has whole-second resolution.
	return issuedAt.Unix() <= boundaryUnix, nil
}
