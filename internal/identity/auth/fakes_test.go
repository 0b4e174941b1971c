// Copyright (c) 2026 CyberVPN. All rights reserved.

// In-memory repository fakes shared by the service tests in this package.

package auth_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Beep206/CyberVPN-sub000/internal/identity/auth"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
)

// fakeUserRepo is a map-backed UserRepository.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*auth.User // keyed by ID
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*auth.User)}
}

func (repo *fakeUserRepo) FindByID(_ context.Context, id string) (*auth.User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if user, ok := repo.users[id]; ok {
		clone := *user
		return &clone, nil
	}
	return nil, apperr.NotFound("User")
}

func (repo *fakeUserRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, user := range repo.users {
		if user.Email != "" && strings.EqualFold(user.Email, email) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (repo *fakeUserRepo) FindByLogin(_ context.Context, login string) (*auth.User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, user := range repo.users {
		if strings.EqualFold(user.Login, login) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (repo *fakeUserRepo) Create(_ context.Context, user *auth.User) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	clone := *user
	repo.users[user.ID] = &clone
	return nil
}

func (repo *fakeUserRepo) Update(_ context.Context, user *auth.User) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.users[user.ID]; !ok {
		return apperr.NotFound("User")
	}
	clone := *user
	repo.users[user.ID] = &clone
	return nil
}

func (repo *fakeUserRepo) UpdatePassword(_ context.Context, userID, newHash string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	user, ok := repo.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	user.PasswordHash = newHash
	return nil
}

func (repo *fakeUserRepo) SoftDelete(_ context.Context, id string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.users[id]; !ok {
		return apperr.NotFound("User")
	}
	delete(repo.users, id)
	return nil
}

// fakeOtpRepo is a slice-backed OtpRepository preserving issue order.
type fakeOtpRepo struct {
	mu    sync.Mutex
	codes []*auth.OtpCode
}

func newFakeOtpRepo() *fakeOtpRepo {
	return &fakeOtpRepo{}
}

func (repo *fakeOtpRepo) Create(_ context.Context, code *auth.OtpCode) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	clone := *code
	repo.codes = append(repo.codes, &clone)
	return nil
}

func (repo *fakeOtpRepo) FindCurrent(_ context.Context, userID string, purpose auth.OtpPurpose) (*auth.OtpCode, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for i := len(repo.codes) - 1; i >= 0; i-- {
		code := repo.codes[i]
		if code.UserID == userID && code.Purpose == purpose && code.VerifiedAt == nil {
			clone := *code
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("OTP code")
}

func (repo *fakeOtpRepo) IncrementAttempts(_ context.Context, id string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, code := range repo.codes {
		if code.ID == id {
			code.Attempts++
			return nil
		}
	}
	return apperr.NotFound("OTP code")
}

func (repo *fakeOtpRepo) MarkVerified(_ context.Context, id string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, code := range repo.codes {
		if code.ID == id && code.VerifiedAt == nil {
			now := time.Now()
			code.VerifiedAt = &now
			return nil
		}
	}
	return apperr.Conflict("OTP code already consumed")
}

func (repo *fakeOtpRepo) InvalidateActive(_ context.Context, userID string, purpose auth.OtpPurpose) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	now := time.Now()
	for _, code := range repo.codes {
		if code.UserID == userID && code.Purpose == purpose && code.VerifiedAt == nil && code.ExpiresAt.After(now) {
			code.ExpiresAt = now
		}
	}
	return nil
}

// fakeNotifier records dispatched messages for assertions.
type fakeNotifier struct {
	mu         sync.Mutex
	otpCodes   []string
	magicLinks []string
	emails     []string
}

func (notifier *fakeNotifier) DispatchOTPEmail(_ context.Context, email, code string) {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.emails = append(notifier.emails, email)
	notifier.otpCodes = append(notifier.otpCodes, code)
}

func (notifier *fakeNotifier) DispatchMagicLinkEmail(_ context.Context, email, token string) {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.emails = append(notifier.emails, email)
	notifier.magicLinks = append(notifier.magicLinks, token)
}

func (notifier *fakeNotifier) lastOTP() string {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.otpCodes) == 0 {
		return ""
	}
	return notifier.otpCodes[len(notifier.otpCodes)-1]
}

func (notifier *fakeNotifier) lastMagicLink() string {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.magicLinks) == 0 {
		return ""
	}
	return notifier.magicLinks[len(notifier.magicLinks)-1]
}

// fakeProvisioner records EnsureUser calls and optionally fails.
type fakeProvisioner struct {
	mu     sync.Mutex
	calls  []string
	failed bool
}

func (provisioner *fakeProvisioner) EnsureUser(_ context.Context, userID, _ string) error {
	provisioner.mu.Lock()
	defer provisioner.mu.Unlock()
	provisioner.calls = append(provisioner.calls, userID)
	if provisioner.failed {
		return apperr.ServiceUnavailable("vpn backend down")
	}
	return nil
}
