package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"newsroom/internal/auth"
	"newsroom/internal/db"
	"newsroom/internal/metrics"
	"newsroom/internal/models"
)

// Refresh exchanges a refresh token for a new pair. The presented token is
// consumed atomically with storing its replacement, so of two concurrent
// calls with the same token at most one succeeds.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeInvalidToken)
		return nil, ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if errors.Is(err, db.ErrNotFound) {
		s.metrics.Refresh(metrics.OutcomeInvalidToken)
		return nil, ErrInvalidToken
	}
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeError)
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user.IsBlocked {
		s.metrics.Refresh(metrics.OutcomeBlocked)
		return nil, ErrInvalidToken
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeError)
		return nil, fmt.Errorf("issuing tokens: %w", err)
	}

	err = s.refreshTokens.Rotate(ctx, user.ID, auth.HashToken(refreshToken), auth.HashToken(pair.RefreshToken), pair.RefreshExpiresAt)
	if errors.Is(err, db.ErrNotFound) {
		s.metrics.Refresh(metrics.OutcomeReplayed)
		slog.Warn("refresh token replay rejected", "component", "audit", "user_id", user.ID)
		return nil, ErrInvalidToken
	}
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeError)
		return nil, fmt.Errorf("rotating refresh token: %w", err)
	}

	s.metrics.Refresh(metrics.OutcomeSuccess)
	return pair, nil
}

// Logout deletes the row backing refreshToken when it belongs to userID.
// Unknown tokens and tokens of other users are not an error and stay untouched.
func (s *Service) Logout(ctx context.Context, userID, refreshToken string) error {
	if refreshToken == "" || userID == "" {
		return nil
	}
	if _, err := s.refreshTokens.DeleteByHash(ctx, userID, auth.HashToken(refreshToken)); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

// LogoutAll signs the user out everywhere: every refresh token is deleted and
// live connections are closed. Outstanding access tokens run to expiry.
func (s *Service) LogoutAll(ctx context.Context, userID string, client ClientInfo) (int64, error) {
	revoked, err := s.refreshTokens.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoking refresh tokens: %w", err)
	}

	slog.Info("signed out everywhere", "user_id", userID, "revoked_tokens", revoked)
	s.sessions.RevokeUser(userID, RevokeReasonLogoutAll)
	s.recordAccess(ctx, userID, EventLogoutAll, client)
	return revoked, nil
}

// Activity summarizes a user's sessions for self-service review.
type Activity struct {
	ActiveSessions int
	Recent         []*models.AccessLogEntry
}

func (s *Service) Activity(ctx context.Context, userID string, limit int) (*Activity, error) {
	count, err := s.refreshTokens.CountForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}

	activity := &Activity{ActiveSessions: count, Recent: []*models.AccessLogEntry{}}
	if s.accessLogs == nil {
		return activity, nil
	}
	recent, err := s.accessLogs.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing access logs: %w", err)
	}
	activity.Recent = recent
	return activity, nil
}

// ChangePassword re-verifies the current password, stores the new hash and
// revokes every refresh token of the user.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, client ClientInfo) error {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}

	ok, err := s.hasher.Verify(ctx, currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if err := s.validatePassword(newPassword); err != nil {
		return err
	}

	passwordHash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	revoked, err := s.users.UpdatePasswordAndRevoke(ctx, user.ID, passwordHash)
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("changing password: %w", err)
	}

	slog.Info("password changed", "user_id", user.ID, "revoked_tokens", revoked)
	s.sessions.RevokeUser(user.ID, RevokeReasonPasswordChanged)
	s.recordAccess(ctx, user.ID, EventPasswordChanged, client)
	return nil
}
