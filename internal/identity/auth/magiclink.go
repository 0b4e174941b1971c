// Copyright (c) 2026 CyberVPN. All rights reserved.

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/constants"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/sec"
)

// # Magic Links

// magicTokenBytes is the entropy of a link token (43 base64url characters).
const magicTokenBytes = 32

// MagicLinkConfig holds the link policy, injected from config.
type MagicLinkConfig struct {
	TTL        time.Duration // Link lifetime.
	RateLimit  int           // Issues per window, applied per email AND per IP.
	RateWindow time.Duration // The rolling window.
}

// MagicLinkService issues and redeems single-use passwordless login tokens.
//
// Tokens live entirely in Redis: the token maps to the email it was issued
// for, and redemption is an atomic GETDEL so exactly one concurrent consumer
// can ever win.
type MagicLinkService struct {
	client *redis.Client
	cfg    MagicLinkConfig
}

// NewMagicLinkService constructs the service.
func NewMagicLinkService(client *redis.Client, cfg MagicLinkConfig) *MagicLinkService {
	return &MagicLinkService{client: client, cfg: cfg}
}

/*
Generate creates an opaque token mapped to the email, enforcing both the
per-email and the per-IP issue budget first.

Parameters:
  - ctx: context.Context
  - email: the destination address.
  - ipAddress: the requesting client's address.

Returns:
  - string: the opaque single-use token.
  - error: [apperr.RateLimited] when either budget is spent.
*/
func (service *MagicLinkService) Generate(ctx context.Context, email, ipAddress string) (string, error) {

	normalized := strings.ToLower(strings.TrimSpace(email))

	// 1. Both budgets must hold before a token is minted
	if err := service.consumeBudget(ctx, constants.RedisPrefixMagicLimitEmail+normalized); err != nil {
		return "", err
	}
	if err := service.consumeBudget(ctx, constants.RedisPrefixMagicLimitIP+ipAddress); err != nil {
		return "", err
	}

	// 2. Mint and store the token with its TTL
	token, err := sec.GenerateSecureToken(magicTokenBytes)
	if err != nil {
		return "", fmt.Errorf("magic_link_generate_failed: %w", err)
	}

	key := constants.RedisPrefixMagicLink + token
	if err := service.client.Set(ctx, key, normalized, service.cfg.TTL).Err(); err != nil {
		return "", fmt.Errorf("magic_link_store_failed: %w", err)
	}

	return token, nil
}

/*
ValidateAndConsume atomically redeems a token.

The lookup and the invalidation are one GETDEL: of any number of concurrent
calls with the same token, exactly one receives the email; all others get "".

Parameters:
  - ctx: context.Context
  - token: the opaque token from the link.

Returns:
  - string: the bound email, or "" when the token is unknown, expired, or
    already consumed.
  - error: storage failures only.
*/
func (service *MagicLinkService) ValidateAndConsume(ctx context.Context, token string) (string, error) {

	email, err := service.client.GetDel(ctx, constants.RedisPrefixMagicLink+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("magic_link_consume_failed: %w", err)
	}

	return email, nil
}

// consumeBudget applies one INCR-with-window rate check to the given key.
func (service *MagicLinkService) consumeBudget(ctx context.Context, key string) error {

	count, err := service.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("magic_link_budget_incr_failed: %w", err)
	}
	if count == 1 {
		if err := service.client.Expire(ctx, key, service.cfg.RateWindow).Err(); err != nil {
			return fmt.Errorf("magic_link_budget_expire_failed: %w", err)
		}
	}

	if int(count) > service.cfg.RateLimit {
		retryAfter := int(service.cfg.RateWindow.Seconds())
		if ttl, err := service.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			retryAfter = int(ttl.Seconds())
		}
		return apperr.RateLimited(retryAfter)
	}

	return nil
}
