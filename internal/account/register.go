package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"newsroom/internal/db"
	"newsroom/internal/metrics"
	"newsroom/internal/models"
)

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// Enrollment is returned once at registration. The raw TOTP secret is never
// exposed again after this point.
type Enrollment struct {
	User            *models.User
	TOTPSecret      string
	ProvisioningURI string
	QRCode          string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Enrollment, error) {
	email := NormalizeEmail(in.Email)
	if err := s.validateEmail(email); err != nil {
		s.metrics.Registration(metrics.OutcomeInvalidInput)
		return nil, err
	}
	if err := s.validatePassword(in.Password); err != nil {
		s.metrics.Registration(metrics.OutcomeInvalidInput)
		return nil, err
	}
	name, err := s.sanitizeName(in.Name)
	if err != nil {
		s.metrics.Registration(metrics.OutcomeInvalidInput)
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		s.metrics.Registration(metrics.OutcomeError)
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	secret, err := s.totp.GenerateSecret()
	if err != nil {
		s.metrics.Registration(metrics.OutcomeError)
		return nil, err
	}
	uri, err := s.totp.ProvisioningURI(secret, email)
	if err != nil {
		s.metrics.Registration(metrics.OutcomeError)
		return nil, err
	}
	qr, err := s.totp.QRCode(uri)
	if err != nil {
		s.metrics.Registration(metrics.OutcomeError)
		return nil, err
	}

	user, err := s.users.Create(ctx, db.NewUser{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         models.RoleUser,
		TOTPSecret:   secret,
	})
	if errors.Is(err, db.ErrDuplicate) {
		s.metrics.Registration(metrics.OutcomeDuplicate)
		return nil, ErrDuplicateAccount
	}
	if err != nil {
		s.metrics.Registration(metrics.OutcomeError)
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.metrics.Registration(metrics.OutcomeSuccess)
	return &Enrollment{
		User:            user,
		TOTPSecret:      secret,
		ProvisioningURI: uri,
		QRCode:          qr,
	}, nil
}

// EnableMFA turns on MFA after the user proves possession of the secret
// issued at registration. The master override code is also accepted.
func (s *Service) EnableMFA(ctx context.Context, userID, code string, client ClientInfo) error {
	code = strings.TrimSpace(code)
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}
	if user.TOTPSecret == nil {
		return ErrInvalidOTP
	}

	event := EventMFAEnabled
	switch {
	case s.isMasterCode(code):
		s.auditMasterOverride(user.ID, "enable_mfa", client)
		event = EventMFAEnabledOverride
	case s.totp.Verify(*user.TOTPSecret, code, s.now()):
	default:
		return ErrInvalidOTP
	}

	if err := s.users.EnableMFA(ctx, user.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("enabling mfa: %w", err)
	}

	s.recordAccess(ctx, user.ID, event, client)
	return nil
}
