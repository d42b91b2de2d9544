package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newsroom/internal/models"
)

const userColumns = `id, email, password_hash, name, role, totp_secret, mfa_enabled, is_blocked, last_login_at, created_at`

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

type NewUser struct {
	Email        string
	PasswordHash string
	Name         string
	Role         models.Role
	TOTPSecret   string
}

// Create inserts a user with MFA disabled. Returns ErrDuplicate when the email is taken.
func (r *UserRepository) Create(ctx context.Context, params NewUser) (*models.User, error) {
	id, err := GenerateID("usr")
	if err != nil {
		return nil, fmt.Errorf("generating user ID: %w", err)
	}
	now := time.Now().UTC()
	role := params.Role
	if role == "" {
		role = models.RoleUser
	}

	_, err = r.db.ExecContext(ctx, r.db.rebind(
		`INSERT INTO users (id, email, password_hash, name, role, totp_secret, mfa_enabled, is_blocked, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, params.Email, params.PasswordHash, params.Name, string(role), params.TOTPSecret, false, false, now, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	secret := params.TOTPSecret
	return &models.User{
		ID:           id,
		Email:        params.Email,
		Name:         params.Name,
		Role:         role,
		CreatedAt:    now,
		PasswordHash: params.PasswordHash,
		TOTPSecret:   &secret,
	}, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// FindByEmail expects an already normalized email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

// EnableMFA flips mfa_enabled on, only for users that hold a TOTP secret.
func (r *UserRepository) EnableMFA(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.db.rebind(
		`UPDATE users SET mfa_enabled = ?, updated_at = ? WHERE id = ? AND totp_secret IS NOT NULL`),
		true, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("enabling mfa: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, r.db.rebind(
		`UPDATE users SET last_login_at = ? WHERE id = ?`),
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("recording login: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) SetRole(ctx context.Context, id string, role models.Role) error {
	result, err := r.db.ExecContext(ctx, r.db.rebind(
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`),
		string(role), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting role: %w", err)
	}
	return checkRowsAffected(result)
}

// UpdatePasswordAndRevoke stores a new password hash and deletes every refresh
// token of the user in one transaction.
func (r *UserRepository) UpdatePasswordAndRevoke(ctx context.Context, id, passwordHash string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting password change transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, r.db.rebind(
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`),
		passwordHash, time.Now().UTC(), id,
	)
	if err != nil {
		return 0, fmt.Errorf("updating password: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return 0, err
	}

	revoked, err := deleteUserRefreshTokens(ctx, r.db, tx, id)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing password change: %w", err)
	}

	return revoked, nil
}

// SetBlocked updates the block flag. Blocking also deletes every refresh token
// of the user in the same transaction; unblocking restores nothing.
func (r *UserRepository) SetBlocked(ctx context.Context, id string, blocked bool) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting block transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, r.db.rebind(
		`UPDATE users SET is_blocked = ?, updated_at = ? WHERE id = ?`),
		blocked, time.Now().UTC(), id,
	)
	if err != nil {
		return 0, fmt.Errorf("updating block flag: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return 0, err
	}

	var revoked int64
	if blocked {
		revoked, err = deleteUserRefreshTokens(ctx, r.db, tx, id)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing block change: %w", err)
	}

	return revoked, nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	var (
		u           models.User
		role        string
		totpSecret  sql.NullString
		lastLoginAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, r.db.rebind(query), args...).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&role,
		&totpSecret,
		&u.MFAEnabled,
		&u.IsBlocked,
		&lastLoginAt,
		&u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.Role = models.Role(role)
	u.TOTPSecret = nullStringToPtr(totpSecret)
	u.LastLoginAt = nullTimeToPtr(lastLoginAt)
	u.CreatedAt = u.CreatedAt.UTC()

	return &u, nil
}
