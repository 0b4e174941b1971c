// Copyright (c) 2026 CyberVPN. All rights reserved.

// PostgreSQL implementations of the identity repositories.
//
// # Architecture
//
// Repositories in this file are strictly separated from domain logic. They
// implement the domain-defined interfaces in store.go using the
// [pgxpool.Pool] connection manager.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types to avoid leaking storage implementation details.
//
// # NULL Handling
//
// Email is nullable in the schema (Telegram accounts have none). Inserts pass
// NULLIF(email, '') and selects COALESCE it back, so the entity keeps a plain
// string with "" meaning absent.

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Beep206/CyberVPN-sub000/internal/platform/apperr"
	"github.com/Beep206/CyberVPN-sub000/internal/platform/dberr"
)

// PostgresUserRepository implements the UserRepository interface using pgx.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

const userColumns = `
	id, login, COALESCE(email, ''), passwordhash, role,
	isactive, isemailverified, COALESCE(totpsecret, ''), totpenabled,
	createdat, updatedat`

// scanUser maps one users.account row onto the entity.
func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Login,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.IsActive,
		&user.IsEmailVerified,
		&user.TOTPSecret,
		&user.TOTPEnabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create persists a new user record into the users.account table.
//
// # Parameters
//   - ctx: Context for the database operation.
//   - user: The user entity to persist.
func (repository *PostgresUserRepository) Create(ctx context.Context, user *User) error {
	const query = `
		INSERT INTO users.account (
			id, login, email, passwordhash, role,
			isactive, isemailverified, totpsecret, totpenabled, createdat, updatedat
		) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11)`

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := repository.pool.Exec(ctx, query,
		user.ID,
		user.Login,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.IsActive,
		user.IsEmailVerified,
		user.TOTPSecret,
		user.TOTPEnabled,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		// The service pre-checks uniqueness, but a concurrent insert can
		// still hit the login/email indexes.
		if dberr.IsUniqueViolation(err) {
			return apperr.Conflict("An account with this login or email already exists")
		}
		return fmt.Errorf("postgres_user_repo_create_failed: %w", err)
	}

	return nil
}

// FindByID retrieves a user record by its primary key.
//
// # Returns
//
// Returns [*User] if found, or [apperr.NotFound] if no account exists.
func (repository *PostgresUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users.account
		WHERE id = $1 AND deletedat IS NULL`

	user, err := scanUser(repository.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_id_failed: %w", err)
	}

	return user, nil
}

// FindByEmail retrieves a user record by email, case-insensitively.
//
// # Returns
//
// Returns [*User] if found, or [apperr.NotFound] if no account exists.
func (repository *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users.account
		WHERE LOWER(email) = LOWER($1) AND deletedat IS NULL`

	user, err := scanUser(repository.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_email_failed: %w", err)
	}

	return user, nil
}

// FindByLogin retrieves a user record by login name, case-insensitively.
//
// # Returns
//
// Returns [*User] if found, or [apperr.NotFound] if no account exists.
func (repository *PostgresUserRepository) FindByLogin(ctx context.Context, login string) (*User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users.account
		WHERE LOWER(login) = LOWER($1) AND deletedat IS NULL`

	user, err := scanUser(repository.pool.QueryRow(ctx, query, login))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_login_failed: %w", err)
	}

	return user, nil
}

// Update persists the account's mutable flags and 2FA fields.
func (repository *PostgresUserRepository) Update(ctx context.Context, user *User) error {
	const query = `
		UPDATE users.account
		SET email = NULLIF($2, ''),
		    role = $3,
		    isactive = $4,
		    isemailverified = $5,
		    totpsecret = NULLIF($6, ''),
		    totpenabled = $7,
		    updatedat = $8
		WHERE id = $1 AND deletedat IS NULL`

	user.UpdatedAt = time.Now()

	tag, err := repository.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Role,
		user.IsActive,
		user.IsEmailVerified,
		user.TOTPSecret,
		user.TOTPEnabled,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_user_repo_update_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}

	return nil
}

// UpdatePassword replaces only the password hash column.
func (repository *PostgresUserRepository) UpdatePassword(ctx context.Context, userID, newHash string) error {
	const query = `
		UPDATE users.account
		SET passwordhash = $2, updatedat = $3
		WHERE id = $1 AND deletedat IS NULL`

	tag, err := repository.pool.Exec(ctx, query, userID, newHash, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_user_repo_update_password_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}

	return nil
}

// SoftDelete stamps the account as removed without deleting the row.
func (repository *PostgresUserRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `
		UPDATE users.account
		SET deletedat = $2, updatedat = $2
		WHERE id = $1 AND deletedat IS NULL`

	tag, err := repository.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_user_repo_soft_delete_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}

	return nil
}

// # OAuth Account Repository

// PostgresOAuthAccountRepository implements OAuthAccountRepository using pgx.
type PostgresOAuthAccountRepository struct {
	pool *pgxpool.Pool
}

// NewOAuthAccountRepository creates the PostgreSQL implementation of OAuthAccountRepository.
func NewOAuthAccountRepository(pool *pgxpool.Pool) *PostgresOAuthAccountRepository {
	return &PostgresOAuthAccountRepository{pool: pool}
}

// FindByProviderID retrieves the link for one (provider, provider user id) pair.
//
// # Returns
//
// Returns [*OAuthAccount] if found, or [apperr.NotFound] if never linked.
func (repository *PostgresOAuthAccountRepository) FindByProviderID(ctx context.Context, provider, providerUserID string) (*OAuthAccount, error) {
	const query = `
		SELECT id, userid, provider, provideruserid,
		       COALESCE(username, ''), COALESCE(avatarurl, ''),
		       COALESCE(accesstoken, ''), COALESCE(refreshtoken, ''),
		       createdat, updatedat
		FROM users.oauth_account
		WHERE provider = $1 AND provideruserid = $2`

	account := &OAuthAccount{}
	err := repository.pool.QueryRow(ctx, query, provider, providerUserID).Scan(
		&account.ID,
		&account.UserID,
		&account.Provider,
		&account.ProviderUserID,
		&account.Username,
		&account.AvatarURL,
		&account.AccessToken,
		&account.RefreshToken,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("OAuth account")
		}
		return nil, fmt.Errorf("postgres_oauth_repo_find_failed: %w", err)
	}

	return account, nil
}

// Create persists a new provider link.
func (repository *PostgresOAuthAccountRepository) Create(ctx context.Context, account *OAuthAccount) error {
	const query = `
		INSERT INTO users.oauth_account (
			id, userid, provider, provideruserid,
			username, avatarurl, accesstoken, refreshtoken, createdat, updatedat
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10)`

	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	_, err := repository.pool.Exec(ctx, query,
		account.ID,
		account.UserID,
		account.Provider,
		account.ProviderUserID,
		account.Username,
		account.AvatarURL,
		account.AccessToken,
		account.RefreshToken,
		account.CreatedAt,
		account.UpdatedAt,
	)

	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.Conflict("This provider identity is already linked")
		}
		return fmt.Errorf("postgres_oauth_repo_create_failed: %w", err)
	}

	return nil
}

// Update refreshes the cached profile and provider tokens on an existing link.
func (repository *PostgresOAuthAccountRepository) Update(ctx context.Context, account *OAuthAccount) error {
	const query = `
		UPDATE users.oauth_account
		SET username = NULLIF($2, ''),
		    avatarurl = NULLIF($3, ''),
		    accesstoken = NULLIF($4, ''),
		    refreshtoken = NULLIF($5, ''),
		    updatedat = $6
		WHERE id = $1`

	account.UpdatedAt = time.Now()

	tag, err := repository.pool.Exec(ctx, query,
		account.ID,
		account.Username,
		account.AvatarURL,
		account.AccessToken,
		account.RefreshToken,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_oauth_repo_update_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("OAuth account")
	}

	return nil
}

// # OTP Code Repository

// PostgresOtpRepository implements OtpRepository using pgx.
type PostgresOtpRepository struct {
	pool *pgxpool.Pool
}

// NewOtpRepository creates the PostgreSQL implementation of OtpRepository.
func NewOtpRepository(pool *pgxpool.Pool) *PostgresOtpRepository {
	return &PostgresOtpRepository{pool: pool}
}

// Create persists a freshly issued one-time code.
func (repository *PostgresOtpRepository) Create(ctx context.Context, code *OtpCode) error {
	const query = `
		INSERT INTO users.otp_code (
			id, userid, purpose, code, expiresat, attempts, maxattempts, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}

	_, err := repository.pool.Exec(ctx, query,
		code.ID,
		code.UserID,
		code.Purpose,
		code.Code,
		code.ExpiresAt,
		code.Attempts,
		code.MaxAttempts,
		code.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_otp_repo_create_failed: %w", err)
	}

	return nil
}

// FindCurrent returns the latest unconsumed code for (user, purpose).
//
// Expired or exhausted codes are still returned so the verifier can report
// the precise failure kind instead of a generic "not found".
func (repository *PostgresOtpRepository) FindCurrent(ctx context.Context, userID string, purpose OtpPurpose) (*OtpCode, error) {
	const query = `
		SELECT id, userid, purpose, code, expiresat, attempts, maxattempts, verifiedat, createdat
		FROM users.otp_code
		WHERE userid = $1 AND purpose = $2 AND verifiedat IS NULL
		ORDER BY createdat DESC
		LIMIT 1`

	code := &OtpCode{}
	err := repository.pool.QueryRow(ctx, query, userID, purpose).Scan(
		&code.ID,
		&code.UserID,
		&code.Purpose,
		&code.Code,
		&code.ExpiresAt,
		&code.Attempts,
		&code.MaxAttempts,
		&code.VerifiedAt,
		&code.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("OTP code")
		}
		return nil, fmt.Errorf("postgres_otp_repo_find_failed: %w", err)
	}

	return code, nil
}

// IncrementAttempts bumps the attempts-used counter by one.
func (repository *PostgresOtpRepository) IncrementAttempts(ctx context.Context, id string) error {
	const query = `
		UPDATE users.otp_code
		SET attempts = attempts + 1
		WHERE id = $1`

	if _, err := repository.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("postgres_otp_repo_increment_failed: %w", err)
	}

	return nil
}

// MarkVerified stamps the code as consumed.
func (repository *PostgresOtpRepository) MarkVerified(ctx context.Context, id string) error {
	const query = `
		UPDATE users.otp_code
		SET verifiedat = $2
		WHERE id = $1 AND verifiedat IS NULL`

	tag, err := repository.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_otp_repo_mark_verified_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("OTP code already consumed")
	}

	return nil
}

// InvalidateActive closes out every unconsumed code for (user, purpose).
//
// Superseded codes are expired in place rather than deleted so the audit
// trail survives.
func (repository *PostgresOtpRepository) InvalidateActive(ctx context.Context, userID string, purpose OtpPurpose) error {
	const query = `
		UPDATE users.otp_code
		SET expiresat = $3
		WHERE userid = $1 AND purpose = $2 AND verifiedat IS NULL AND expiresat > $3`

	if _, err := repository.pool.Exec(ctx, query, userID, purpose, time.Now()); err != nil {
		return fmt.Errorf("postgres_otp_repo_invalidate_failed: %w", err)
	}

	return nil
}
