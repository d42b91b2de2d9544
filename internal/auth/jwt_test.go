package auth

import (
	"errors"
	"testing"
	"time"

	"newsroom/internal/models"
)

const (
	testAccessSecret  = "access-secret-0123456789abcdef0123456789"
	testRefreshSecret = "refresh-secret-0123456789abcdef012345678"
)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()

	issuer, err := NewTokenIssuer(testAccessSecret, testRefreshSecret, 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	return issuer
}

func testUser() *models.User {
	return &models.User{ID: "usr_1", Email: "alice@example.com", Role: models.RoleEditor}
}

func TestIssuePairAndValidate(t *testing.T) {
	issuer := newTestIssuer(t)

	pair, err := issuer.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	claims, err := issuer.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.UserID != "usr_1" || claims.Email != "alice@example.com" || claims.Role != models.RoleEditor {
		t.Fatalf("claims = %+v, want user fields", claims)
	}

	refreshClaims, err := issuer.ValidateRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("ValidateRefreshToken() error = %v", err)
	}
	if refreshClaims.UserID != "usr_1" {
		t.Fatalf("refresh claims UserID = %q, want %q", refreshClaims.UserID, "usr_1")
	}
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	issuer := newTestIssuer(t)

	pair, err := issuer.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	if _, err := issuer.ValidateAccessToken(pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("ValidateAccessToken(refresh) error = %v, want ErrTokenInvalid", err)
	}
	if _, err := issuer.ValidateRefreshToken(pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("ValidateRefreshToken(access) error = %v, want ErrTokenInvalid", err)
	}
}

func TestRefreshTokensAreUnique(t *testing.T) {
	issuer := newTestIssuer(t)
	fixed := time.Unix(1_700_000_000, 0)
	issuer.now = func() time.Time { return fixed }

	a, err := issuer.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}
	b, err := issuer.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}
	if a.RefreshToken == b.RefreshToken {
		t.Fatal("two refresh tokens minted at the same instant are identical")
	}
	if HashToken(a.RefreshToken) == HashToken(b.RefreshToken) {
		t.Fatal("HashToken() collided for distinct tokens")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	issuer := newTestIssuer(t)
	issued := time.Now().Add(-time.Hour)
	issuer.now = func() time.Time { return issued }

	pair, err := issuer.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	issuer.now = time.Now
	if _, err := issuer.ValidateAccessToken(pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("ValidateAccessToken() error = %v, want ErrTokenExpired", err)
	}
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	issuer := newTestIssuer(t)
	other, err := NewTokenIssuer("other-access-secret-0123456789abcdef01", "other-refresh-secret-0123456789abcdef0", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}

	pair, err := other.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	if _, err := issuer.ValidateAccessToken(pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("ValidateAccessToken() error = %v, want ErrTokenInvalid", err)
	}
	if _, err := issuer.ValidateRefreshToken("not-a-jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("ValidateRefreshToken(garbage) error = %v, want ErrTokenInvalid", err)
	}
}

func TestNewTokenIssuerRejectsSharedSecret(t *testing.T) {
	if _, err := NewTokenIssuer(testAccessSecret, testAccessSecret, time.Minute, time.Hour); err == nil {
		t.Fatal("NewTokenIssuer() error = nil, want error for identical secrets")
	}
}
