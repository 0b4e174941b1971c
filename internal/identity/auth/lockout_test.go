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
	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/constants"
)

// testPolicy mirrors the production defaults at a glance.
var testPolicy = auth.LockoutPolicy{
	Tier1Attempts:     3,
	Tier1Duration:     5 * time.Minute,
	Tier2Attempts:     6,
	Tier2Duration:     30 * time.Minute,
	PermanentAttempts: 10,
}

func newLockoutGuard(t *testing.T) (*auth.LockoutGuard, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return auth.NewLockoutGuard(client, testPolicy), mr
}

/*
TestLockoutGuard_BelowThreshold verifies that failures below the first tier
never open a lockout window.
*/
func TestLockoutGuard_BelowThreshold(t *testing.T) {
	guard, _ := newLockoutGuard(t)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		attempts, err := guard.RecordFailure(ctx, "neo@example.com")
		require.NoError(t, err)
		assert.Equal(t, i, attempts)
	}

	assert.NoError(t, guard.Check(ctx, "neo@example.com"))
}

/*
TestLockoutGuard_Tier1 verifies that the third failure opens a timed window
carrying a retry-after hint.
*/
func TestLockoutGuard_Tier1(t *testing.T) {
	guard, _ := newLockoutGuard(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := guard.RecordFailure(ctx, "neo@example.com")
		require.NoError(t, err)
	}

	err := guard.Check(ctx, "neo@example.com")
	require.Error(t, err)

	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, apperr.CodeAccountLocked, appError.Code)
	assert.False(t, appError.Permanent)
	assert.Greater(t, appError.RetryAfterSeconds, 0)
	assert.LessOrEqual(t, appError.RetryAfterSeconds, int((5 * time.Minute).Seconds()))
}

/*
TestLockoutGuard_Tier2 verifies escalation to the longer window at six
failures.
*/
func TestLockoutGuard_Tier2(t *testing.T) {
	guard, _ := newLockoutGuard(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := guard.RecordFailure(ctx, "neo@example.com")
		require.NoError(t, err)
	}

	err := guard.Check(ctx, "neo@example.com")
	require.Error(t, err)

	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.False(t, appError.Permanent)
	assert.Greater(t, appError.RetryAfterSeconds, int((5 * time.Minute).Seconds()))
}

/*
TestLockoutGuard_Permanent verifies that the tenth failure locks the
identifier without an expiry.
*/
func TestLockoutGuard_Permanent(t *testing.T) {
	guard, mr := newLockoutGuard(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := guard.RecordFailure(ctx, "neo@example.com")
		require.NoError(t, err)
	}

	err := guard.Check(ctx, "neo@example.com")
	require.Error(t, err)

	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.True(t, appError.Permanent)
	assert.Equal(t, 0, appError.RetryAfterSeconds)

	// A timed window would expire; the permanent one survives any clock jump
	mr.FastForward(48 * time.Hour)
	assert.Error(t, guard.Check(ctx, "neo@example.com"))
}

/*
TestLockoutGuard_WindowExpiry verifies that a timed lockout clears on its
own while the failure streak persists.
*/
func TestLockoutGuard_WindowExpiry(t *testing.T) {
	guard, mr := newLockoutGuard(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := guard.RecordFailure(ctx, "neo@example.com")
		require.NoError(t, err)
	}
	require.Error(t, guard.Check(ctx, "neo@example.com"))

	mr.FastForward(6 * time.Minute)
	assert.NoError(t, guard.Check(ctx, "neo@example.com"))

	// The streak memory outlives the window: one more failure re-locks
	attempts, err := guard.RecordFailure(ctx, "neo@example.com")
	require.NoError(t, err)
	assert.Equal(t, 4, attempts)
	assert.Error(t, guard.Check(ctx, "neo@example.com"))
}

/*
TestLockoutGuard_VanishedWindowIsUnlocked verifies that an until-key that
disappeared between opening the window and checking it reads as unlocked,
never as the permanent tier.
*/
func TestLockoutGuard_VanishedWindowIsUnlocked(t *testing.T) {
	guard, mr := newLockoutGuard(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := guard.RecordFailure(ctx, "neo@example.com")
		require.NoError(t, err)
	}
	require.Error(t, guard.Check(ctx, "neo@example.com"))

	mr.Del(constants.RedisPrefixLockoutUntil + "neo@example.com")

	assert.NoError(t, guard.Check(ctx, "neo@example.com"))
}

/*
TestLockoutGuard_Reset verifies that a successful login clears both the
streak and the window.
*/
func TestLockoutGuard_Reset(t *testing.T) {
	guard, _ := newLockoutGuard(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := guard.RecordFailure(ctx, "neo@example.com")
		require.NoError(t, err)
	}

	require.NoError(t, guard.Reset(ctx, "neo@example.com"))
	assert.NoError(t, guard.Check(ctx, "neo@example.com"))

	attempts, err := guard.RecordFailure(ctx, "neo@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "streak restarts from scratch")
}

/*
TestLockoutGuard_CaseInsensitive verifies that identifier case variants
share one failure counter.
*/
func TestLockoutGuard_CaseInsensitive(t *testing.T) {
	guard, _ := newLockoutGuard(t)
	ctx := context.Background()

	_, err := guard.RecordFailure(ctx, "Neo@Example.com")
	require.NoError(t, err)

	attempts, err := guard.RecordFailure(ctx, "neo@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
