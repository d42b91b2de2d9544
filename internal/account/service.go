// Package account implements registration, the login state machine, refresh
// token rotation and revocation on top of the credential and token stores.
package account

import (
	"context"
	"crypto/subtle"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"newsroom/internal/auth"
	"newsroom/internal/constants"
	"newsroom/internal/db"
	"newsroom/internal/metrics"
	"newsroom/internal/models"
)

type UserStore interface {
	Create(ctx context.Context, params db.NewUser) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	EnableMFA(ctx context.Context, id string) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	SetRole(ctx context.Context, id string, role models.Role) error
	UpdatePasswordAndRevoke(ctx context.Context, id, passwordHash string) (int64, error)
	SetBlocked(ctx context.Context, id string, blocked bool) (int64, error)
}

type RefreshTokenStore interface {
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error)
	Rotate(ctx context.Context, userID, consumedHash, newHash string, newExpiresAt time.Time) error
	DeleteByHash(ctx context.Context, userID, tokenHash string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	CountForUser(ctx context.Context, userID string) (int, error)
}

type AccessLogStore interface {
	Create(ctx context.Context, userID, event, ip, userAgent string) (*models.AccessLogEntry, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]*models.AccessLogEntry, error)
}

// SessionNotifier pushes revocations and role changes to the user's live
// connections.
type SessionNotifier interface {
	RevokeUser(userID, reason string)
	RoleChanged(userID, role string)
}

// Reasons passed to SessionNotifier.RevokeUser.
const (
	RevokeReasonBlocked         = "blocked"
	RevokeReasonPasswordChanged = "password_changed"
	RevokeReasonLogoutAll       = "logout_all"
)

type noopNotifier struct{}

func (noopNotifier) RevokeUser(string, string)  {}
func (noopNotifier) RoleChanged(string, string) {}

// Access log events.
const (
	EventLogin              = "login"
	EventLoginMFAOverride   = "login_mfa_override"
	EventMFAEnabled         = "mfa_enabled"
	EventMFAEnabledOverride = "mfa_enabled_override"
	EventPasswordChanged    = "password_changed"
	EventLogoutAll          = "logout_all"
)

const defaultPasswordMinLength = 8

type Deps struct {
	Users         UserStore
	RefreshTokens RefreshTokenStore
	AccessLogs    AccessLogStore
	Hasher        *auth.PasswordHasher
	TOTP          auth.TOTPEngine
	Tokens        *auth.TokenIssuer
	Metrics       *metrics.Auth
	// Sessions is optional.
	Sessions SessionNotifier
}

type Options struct {
	PasswordMinLength int
	// MFAMasterCode is accepted in place of a TOTP code. Empty disables it.
	MFAMasterCode string
}

// ClientInfo identifies the caller for the access log.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type Service struct {
	users         UserStore
	refreshTokens RefreshTokenStore
	accessLogs    AccessLogStore
	hasher        *auth.PasswordHasher
	totp          auth.TOTPEngine
	tokens        *auth.TokenIssuer
	metrics       *metrics.Auth
	sessions      SessionNotifier

	passwordMinLength int
	masterCode        string
	sanitizer         *bluemonday.Policy
	validate          *validator.Validate
	now               func() time.Time
}

func NewService(deps Deps, opts Options) *Service {
	if opts.PasswordMinLength <= 0 {
		opts.PasswordMinLength = defaultPasswordMinLength
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = noopNotifier{}
	}

	return &Service{
		users:             deps.Users,
		refreshTokens:     deps.RefreshTokens,
		accessLogs:        deps.AccessLogs,
		hasher:            deps.Hasher,
		totp:              deps.TOTP,
		tokens:            deps.Tokens,
		metrics:           deps.Metrics,
		sessions:          sessions,
		passwordMinLength: opts.PasswordMinLength,
		masterCode:        strings.TrimSpace(opts.MFAMasterCode),
		sanitizer:         bluemonday.StrictPolicy(),
		validate:          validator.New(validator.WithRequiredStructEnabled()),
		now:               time.Now,
	}
}

// NormalizeEmail lowercases and trims an address. Lookups and uniqueness are
// always evaluated on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) validateEmail(email string) error {
	if err := s.validate.Var(email, fmt.Sprintf("required,email,max=%d", constants.EmailMaxLength)); err != nil {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	return nil
}

func (s *Service) validatePassword(password string) error {
	if len(password) < s.passwordMinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, s.passwordMinLength)
	}
	if len(password) > constants.PasswordMaxLength {
		return fmt.Errorf("%w: password must be at most %d characters", ErrValidation, constants.PasswordMaxLength)
	}
	return nil
}

const maxSanitizePasses = 4

// sanitizeName strips markup and returns plain text. Sanitize escapes
// entities, so the output is unescaped and stripped again until it is stable.
func (s *Service) sanitizeName(name string) (string, error) {
	clean := strings.TrimSpace(name)
	for pass := 0; ; pass++ {
		next := strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(clean)))
		if next == clean {
			break
		}
		if pass == maxSanitizePasses {
			return "", fmt.Errorf("%w: name contains markup", ErrValidation)
		}
		clean = next
	}
	if clean == "" {
		return "", fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len([]rune(clean)) > constants.NameMaxLength {
		return "", fmt.Errorf("%w: name must be at most %d characters", ErrValidation, constants.NameMaxLength)
	}
	return clean, nil
}

// isMasterCode compares in constant time; an unset master code never matches.
func (s *Service) isMasterCode(code string) bool {
	code = strings.TrimSpace(code)
	if s.masterCode == "" || code == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(code), []byte(s.masterCode)) == 1
}

func (s *Service) auditMasterOverride(userID, action string, client ClientInfo) {
	s.metrics.MFAOverride()
	slog.Warn("mfa master override code used",
		"component", "audit",
		"event", "mfa_master_override",
		"action", action,
		"user_id", userID,
		"ip", client.IP,
	)
}

// recordAccess writes an access log row. Failures are logged and swallowed.
func (s *Service) recordAccess(ctx context.Context, userID, event string, client ClientInfo) {
	if s.accessLogs == nil {
		return
	}
	if _, err := s.accessLogs.Create(ctx, userID, event, client.IP, client.UserAgent); err != nil {
		slog.Error("error writing access log", "error", err, "user_id", userID, "event", event)
	}
}
