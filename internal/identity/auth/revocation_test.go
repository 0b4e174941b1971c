// Copyright (c) 2026 CyberVPN. All rights reserved.

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beep206/CyberVPN-sub000/internal/identity/auth"
)

func newRevocationRegistry(t *testing.T) (*auth.RevocationRegistry, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return auth.NewRevocationRegistry(client, 720*time.Hour), mr
}

/*
TestRevocationRegistry_RevokeSingle verifies that striking one token leaves
the user's other tokens alive.
*/
func TestRevocationRegistry_RevokeSingle(t *testing.T) {
	registry, _ := newRevocationRegistry(t)
	ctx := context.Background()
	issued := time.Now()

	require.NoError(t, registry.Track(ctx, "user-1", "token-a"))
	require.NoError(t, registry.Track(ctx, "user-1", "token-b"))

	require.NoError(t, registry.Revoke(ctx, "token-a", "user-1"))

	revoked, err := registry.IsTokenRevoked(ctx, "token-a", "user-1", issued)
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = registry.IsTokenRevoked(ctx, "token-b", "user-1", issued)
	require.NoError(t, err)
	assert.False(t, revoked)
}

/*
TestRevocationRegistry_RevokeAll verifies the logout-all boundary: every
token issued at or before the boundary dies, and the live session count is
reported.
*/
func TestRevocationRegistry_RevokeAll(t *testing.T) {
	registry, _ := newRevocationRegistry(t)
	ctx := context.Background()
	before := time.Now().Add(-time.Minute)

	require.NoError(t, registry.Track(ctx, "user-1", "token-a"))
	require.NoError(t, registry.Track(ctx, "user-1", "token-b"))

	count, err := registry.RevokeAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	revoked, err := registry.IsTokenRevoked(ctx, "token-a", "user-1", before)
	require.NoError(t, err)
	assert.True(t, revoked)

	// A token minted after the boundary is unaffected
	after := time.Now().Add(2 * time.Second)
	revoked, err = registry.IsTokenRevoked(ctx, "token-c", "user-1", after)
	require.NoError(t, err)
	assert.False(t, revoked)
}

/*
TestRevocationRegistry_BoundaryInclusive verifies that a token whose issue
second equals the boundary is rejected. The iat claim has whole-second
resolution, so the same-second case must fail closed.
*/
func TestRevocationRegistry_BoundaryInclusive(t *testing.T) {
	registry, _ := newRevocationRegistry(t)
	ctx := context.Background()

	_, err := registry.RevokeAll(ctx, "user-1")
	require.NoError(t, err)

	revoked, err := registry.IsTokenRevoked(ctx, "same-second", "user-1", time.Now())
	require.NoError(t, err)
	assert.True(t, revoked)
}

/*
TestRevocationRegistry_OtherUserUntouched verifies that one user's
logout-all never affects another user's tokens.
*/
func TestRevocationRegistry_OtherUserUntouched(t *testing.T) {
	registry, _ := newRevocationRegistry(t)
	ctx := context.Background()
	issued := time.Now().Add(-time.Minute)

	require.NoError(t, registry.Track(ctx, "user-2", "token-x"))

	_, err := registry.RevokeAll(ctx, "user-1")
	require.NoError(t, err)

	revoked, err := registry.IsTokenRevoked(ctx, "token-x", "user-2", issued)
	require.NoError(t, err)
	assert.False(t, revoked)
}

/*
TestRevocationRegistry_RevokeAllEmpty verifies that revoking a user with no
tracked sessions reports zero and still installs the boundary.
*/
func TestRevocationRegistry_RevokeAllEmpty(t *testing.T) {
	registry, _ := newRevocationRegistry(t)
	ctx := context.Background()

	count, err := registry.RevokeAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	revoked, err := registry.IsTokenRevoked(ctx, "any", "user-1", time.Now().Add(-time.Second))
	require.NoError(t, err)
	assert.True(t, revoked)
}
