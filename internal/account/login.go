package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"newsroom/internal/auth"
	"newsroom/internal/db"
	"newsroom/internal/metrics"
	"newsroom/internal/models"
)

type LoginInput struct {
	Email    string
	Password string
	OTPCode  string
	Client   ClientInfo
}

// LoginResult is either an MFA challenge (MFARequired, no tokens) or an
// authenticated session.
type LoginResult struct {
	MFARequired bool
	User        *models.User
	Tokens      *auth.TokenPair
}

// Login runs the credential check, the optional MFA challenge and token
// issuance. Each rejection short-circuits in order: unknown email, blocked
// account, password mismatch, bad OTP code.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		s.metrics.Login(metrics.OutcomeInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		s.hasher.VerifyDummy(ctx, in.Password)
		s.metrics.Login(metrics.OutcomeInvalidCredentials)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.metrics.Login(metrics.OutcomeError)
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if user.IsBlocked {
		s.metrics.Login(metrics.OutcomeBlocked)
		return nil, ErrAccountBlocked
	}

	ok, err := s.hasher.Verify(ctx, in.Password, user.PasswordHash)
	if err != nil {
		s.metrics.Login(metrics.OutcomeError)
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		s.metrics.Login(metrics.OutcomeInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	event := EventLogin
	if user.MFAEnabled {
		code := strings.TrimSpace(in.OTPCode)
		if code == "" {
			s.metrics.Login(metrics.OutcomeMFARequired)
			return &LoginResult{MFARequired: true}, nil
		}

		switch {
		case s.isMasterCode(code):
			s.auditMasterOverride(user.ID, "login", in.Client)
			event = EventLoginMFAOverride
		case user.TOTPSecret != nil && s.totp.Verify(*user.TOTPSecret, code, s.now()):
		default:
			s.metrics.Login(metrics.OutcomeInvalidOTP)
			return nil, ErrInvalidOTP
		}
	}

	now := s.now().UTC()
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		s.metrics.Login(metrics.OutcomeError)
		return nil, fmt.Errorf("recording login: %w", err)
	}
	user.LastLoginAt = &now

	tokens, err := s.issueSession(ctx, user)
	if err != nil {
		s.metrics.Login(metrics.OutcomeError)
		return nil, err
	}

	s.recordAccess(ctx, user.ID, event, in.Client)
	s.metrics.Login(metrics.OutcomeSuccess)

	return &LoginResult{User: user, Tokens: tokens}, nil
}

// issueSession mints a pair and persists the refresh row by its hash.
func (s *Service) issueSession(ctx context.Context, user *models.User) (*auth.TokenPair, error) {
	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return nil, fmt.Errorf("issuing tokens: %w", err)
	}

	if _, err := s.refreshTokens.Create(ctx, user.ID, auth.HashToken(pair.RefreshToken), pair.RefreshExpiresAt); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	return pair, nil
}
