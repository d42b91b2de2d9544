package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"newsroom/internal/db"
	"newsroom/internal/models"
)

func (s *Service) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return user, nil
}

// SetBlocked blocks or unblocks a user. Blocking revokes every refresh token
// and closes live connections; access tokens already issued stay valid until
// they expire.
func (s *Service) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	revoked, err := s.users.SetBlocked(ctx, userID, blocked)
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("updating block flag: %w", err)
	}

	slog.Info("user block flag changed", "component", "audit", "user_id", userID, "blocked", blocked, "revoked_tokens", revoked)
	if blocked {
		s.sessions.RevokeUser(userID, RevokeReasonBlocked)
	}
	return nil
}

// SetRole takes effect on the user's next login or refresh.
func (s *Service) SetRole(ctx context.Context, userID string, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	err := s.users.SetRole(ctx, userID, role)
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("setting role: %w", err)
	}

	slog.Info("user role changed", "component", "audit", "user_id", userID, "role", role)
	s.sessions.RoleChanged(userID, string(role))
	return nil
}

// PromoteByEmail is the operator bootstrap path for assigning a role.
func (s *Service) PromoteByEmail(ctx context.Context, email string, role models.Role) (*models.User, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if err := s.SetRole(ctx, user.ID, role); err != nil {
		return nil, err
	}
	user.Role = role
	return user, nil
}
