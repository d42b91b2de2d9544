package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"newsroom/internal/models"
)

type RefreshTokenRepository struct {
	db *DB
}

func NewRefreshTokenRepository(db *DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	return insertRefreshToken(ctx, r.db, r.db.DB, userID, tokenHash, expiresAt, time.Now().UTC())
}

// Rotate atomically consumes the live row matching consumedHash for userID and
// inserts its replacement. Returns ErrNotFound when no live row matched, which
// callers must treat as a replayed or revoked token.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, userID, consumedHash, newHash string, newExpiresAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting refresh token rotation transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, r.db.rebind(
		`DELETE FROM refresh_tokens
		  WHERE token_hash = ?
		    AND user_id = ?
		    AND expires_at > ?`),
		consumedHash,
		userID,
		now,
	)
	if err != nil {
		return fmt.Errorf("consuming token during rotation: %w", err)
	}

	if err := checkRowsAffected(result); err != nil {
		return err
	}

	if _, err := insertRefreshToken(ctx, r.db, tx, userID, newHash, newExpiresAt, now); err != nil {
		return fmt.Errorf("creating rotated refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing refresh token rotation: %w", err)
	}

	return nil
}

// DeleteByHash removes a single token owned by userID. Deleting a missing row,
// or another user's row, is not an error and reports false.
func (r *RefreshTokenRepository) DeleteByHash(ctx context.Context, userID, tokenHash string) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.db.rebind(
		`DELETE FROM refresh_tokens WHERE token_hash = ? AND user_id = ?`),
		tokenHash, userID,
	)
	if err != nil {
		return false, fmt.Errorf("deleting refresh token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}

	return rows > 0, nil
}

func (r *RefreshTokenRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	return deleteUserRefreshTokens(ctx, r.db, r.db.DB, userID)
}

func (r *RefreshTokenRepository) CountForUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, r.db.rebind(`SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ?`), userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting refresh tokens: %w", err)
	}
	return count, nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.rebind(`DELETE FROM refresh_tokens WHERE expires_at <= ?`), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}

	return result.RowsAffected()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRefreshToken(ctx context.Context, db *DB, ex execer, userID, tokenHash string, expiresAt, now time.Time) (*models.RefreshToken, error) {
	id, err := GenerateID("rft")
	if err != nil {
		return nil, fmt.Errorf("generating refresh token ID: %w", err)
	}

	_, err = ex.ExecContext(ctx, db.rebind(
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`),
		id, userID, tokenHash, expiresAt.UTC(), now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating refresh token: %w", err)
	}

	return &models.RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
	}, nil
}

func deleteUserRefreshTokens(ctx context.Context, db *DB, ex execer, userID string) (int64, error) {
	result, err := ex.ExecContext(ctx, db.rebind(`DELETE FROM refresh_tokens WHERE user_id = ?`), userID)
	if err != nil {
		return 0, fmt.Errorf("revoking user tokens: %w", err)
	}
	return result.RowsAffected()
}
