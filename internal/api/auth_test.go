package api

import (
	"net/http"
	"strings"
	"testing"

	"newsroom/internal/constants"
	"newsroom/internal/models"
)

func TestRegisterReturnsEnrollment(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "Alice@Example.com",
		"password": testPassword,
		"name":     "Alice",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body=%q", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var resp RegisterResponse
	decodeBody(t, rr, &resp)
	if !resp.Success {
		t.Fatal("success = false")
	}
	if resp.User.Email != "alice@example.com" || resp.User.MFAEnabled {
		t.Fatalf("user = %+v, want normalized email and MFA off", resp.User)
	}
	if resp.TOTPSecret == "" || !strings.HasPrefix(resp.QRCode, "data:image/png;base64,") || !strings.HasPrefix(resp.OTPAuthURL, "otpauth://") {
		t.Fatalf("enrollment fields missing: %+v", resp)
	}
	if strings.Contains(rr.Body.String(), "argon2id") {
		t.Fatal("response leaks password hash")
	}
}

func TestRegisterDuplicateAndValidation(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerUser(t, "bob@example.com")

	rr := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "BOB@example.com",
		"password": testPassword,
		"name":     "Bob Again",
	})
	expectError(t, rr, http.StatusConflict, constants.ErrCodeConflict)

	tests := []struct {
		name string
		body any
	}{
		{name: "bad_email", body: map[string]string{"email": "nope", "password": testPassword, "name": "X"}},
		{name: "short_password", body: map[string]string{"email": "x@example.com", "password": "short", "name": "X"}},
		{name: "missing_name", body: map[string]string{"email": "x@example.com", "password": testPassword}},
		{name: "unknown_field", body: map[string]string{"email": "x@example.com", "password": testPassword, "name": "X", "role": "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, s.do(t, http.MethodPost, "/api/v1/auth/register", "", tt.body), http.StatusBadRequest, constants.ErrCodeInvalidRequest)
		})
	}
}

func TestLoginFailuresAreGeneric(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerUser(t, "carol@example.com")

	wrong := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "carol@example.com", "password": "wrong password"})
	missing := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "ghost@example.com", "password": "wrong password"})

	expectError(t, wrong, http.StatusUnauthorized, constants.ErrCodeInvalidCredentials)
	expectError(t, missing, http.StatusUnauthorized, constants.ErrCodeInvalidCredentials)
	if wrong.Body.String() != missing.Body.String() {
		t.Fatalf("bodies differ:\n%s\n%s", wrong.Body.String(), missing.Body.String())
	}
}

func TestBlockedLoginReturnsForbidden(t *testing.T) {
	s := newTestServer(t, nil)
	adminToken := s.tokenForRole(t, "admin@example.com", models.RoleAdmin)
	userID, _ := s.registerUser(t, "dan@example.com")

	rr := s.do(t, http.MethodPut, "/api/v1/admin/users/"+userID+"/block", adminToken, map[string]bool{"blocked": true})
	if rr.Code != http.StatusOK {
		t.Fatalf("block status = %d, body=%q", rr.Code, rr.Body.String())
	}
	var blocked UserEnvelope
	decodeBody(t, rr, &blocked)
	if !blocked.User.IsBlocked {
		t.Fatal("isBlocked = false after block")
	}

	login := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "dan@example.com", "password": testPassword})
	expectError(t, login, http.StatusForbidden, constants.ErrCodeAccountBlocked)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	_, secret := s.registerUser(t, "erin@example.com")

	first := s.loginTokens(t, "erin@example.com", "")
	if first.MFARequired || first.AccessToken == "" {
		t.Fatalf("login = %+v, want tokens before MFA is enabled", first)
	}

	bad := s.do(t, http.MethodPost, "/api/v1/auth/otp/enable", first.AccessToken, map[string]string{"code": "abcdef"})
	expectError(t, bad, http.StatusBadRequest, constants.ErrCodeInvalidOTP)

	enable := s.do(t, http.MethodPost, "/api/v1/auth/otp/enable", first.AccessToken, map[string]string{"code": currentCode(t, secret)})
	if enable.Code != http.StatusOK {
		t.Fatalf("otp enable status = %d, body=%q", enable.Code, enable.Body.String())
	}

	challenge := s.loginTokens(t, "erin@example.com", "")
	if !challenge.MFARequired || challenge.AccessToken != "" || challenge.RefreshToken != "" {
		t.Fatalf("login = %+v, want mfaRequired without tokens", challenge)
	}

	wrongCode := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "erin@example.com", "password": testPassword, "otpCode": "abcdef"})
	expectError(t, wrongCode, http.StatusUnauthorized, constants.ErrCodeInvalidOTP)

	session := s.loginTokens(t, "erin@example.com", currentCode(t, secret))
	if session.AccessToken == "" || session.RefreshToken == "" || session.User == nil {
		t.Fatalf("login = %+v, want token pair and user", session)
	}

	me := s.do(t, http.MethodGet, "/api/v1/auth/me", session.AccessToken, nil)
	if me.Code != http.StatusOK {
		t.Fatalf("me status = %d, body=%q", me.Code, me.Body.String())
	}
	var meResp UserEnvelope
	decodeBody(t, me, &meResp)
	if !meResp.User.MFAEnabled || strings.Contains(me.Body.String(), secret) {
		t.Fatalf("me = %s, want MFA enabled and no secret", me.Body.String())
	}

	refresh := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": session.RefreshToken})
	if refresh.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body=%q", refresh.Code, refresh.Body.String())
	}
	var rotated RefreshResponse
	decodeBody(t, refresh, &rotated)

	replay := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": session.RefreshToken})
	expectError(t, replay, http.StatusUnauthorized, constants.ErrCodeInvalidToken)

	if rr := s.do(t, http.MethodGet, "/api/v1/auth/me", rotated.AccessToken, nil); rr.Code != http.StatusOK {
		t.Fatalf("me with rotated token status = %d", rr.Code)
	}

	for i := 0; i < 2; i++ {
		logout := s.do(t, http.MethodPost, "/api/v1/auth/logout", rotated.AccessToken, map[string]string{"refreshToken": rotated.RefreshToken})
		if logout.Code != http.StatusOK {
			t.Fatalf("logout %d status = %d, body=%q", i, logout.Code, logout.Body.String())
		}
	}

	afterLogout := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": rotated.RefreshToken})
	expectError(t, afterLogout, http.StatusUnauthorized, constants.ErrCodeInvalidToken)
}

func TestChangePasswordOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerUser(t, "fay@example.com")
	session := s.loginTokens(t, "fay@example.com", "")

	wrong := s.do(t, http.MethodPut, "/api/v1/auth/password", session.AccessToken, map[string]string{
		"currentPassword": "not my password",
		"newPassword":     "a brand new password",
	})
	expectError(t, wrong, http.StatusBadRequest, constants.ErrCodeInvalidCredentials)

	changed := s.do(t, http.MethodPut, "/api/v1/auth/password", session.AccessToken, map[string]string{
		"currentPassword": testPassword,
		"newPassword":     "a brand new password",
	})
	if changed.Code != http.StatusOK {
		t.Fatalf("change status = %d, body=%q", changed.Code, changed.Body.String())
	}

	stale := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": session.RefreshToken})
	expectError(t, stale, http.StatusUnauthorized, constants.ErrCodeInvalidToken)

	relogin := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "fay@example.com", "password": "a brand new password"})
	if relogin.Code != http.StatusOK {
		t.Fatalf("relogin status = %d, body=%q", relogin.Code, relogin.Body.String())
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	s := newTestServer(t, nil)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/auth/me"},
		{http.MethodPost, "/api/v1/auth/logout"},
		{http.MethodPost, "/api/v1/auth/otp/enable"},
		{http.MethodPut, "/api/v1/auth/password"},
		{http.MethodPost, "/api/v1/auth/logout-all"},
		{http.MethodGet, "/api/v1/auth/sessions"},
	} {
		expectError(t, s.do(t, tc.method, tc.path, "", nil), http.StatusUnauthorized, constants.ErrCodeUnauthorized)
	}

	expectError(t, s.do(t, http.MethodGet, "/api/v1/auth/me", "not-a-token", nil), http.StatusUnauthorized, constants.ErrCodeUnauthorized)
}

func TestSessionsAndLogoutAllOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerUser(t, "gus@example.com")
	laptop := s.loginTokens(t, "gus@example.com", "")
	phone := s.loginTokens(t, "gus@example.com", "")

	rr := s.do(t, http.MethodGet, "/api/v1/auth/sessions", laptop.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("sessions status = %d, body=%q", rr.Code, rr.Body.String())
	}
	var sessions SessionsResponse
	decodeBody(t, rr, &sessions)
	if !sessions.Success || sessions.ActiveSessions != 2 || len(sessions.RecentActivity) != 2 {
		t.Fatalf("sessions = %+v", sessions)
	}
	if sessions.RecentActivity[0].Event != "login" || sessions.RecentActivity[0].IP == "" {
		t.Fatalf("recent activity = %+v", sessions.RecentActivity[0])
	}

	rr = s.do(t, http.MethodPost, "/api/v1/auth/logout-all", laptop.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout-all status = %d, body=%q", rr.Code, rr.Body.String())
	}
	var out LogoutAllResponse
	decodeBody(t, rr, &out)
	if out.RevokedSessions != 2 {
		t.Fatalf("revokedSessions = %d, want 2", out.RevokedSessions)
	}

	for _, refresh := range []string{laptop.RefreshToken, phone.RefreshToken} {
		rr := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": refresh})
		expectError(t, rr, http.StatusUnauthorized, constants.ErrCodeInvalidToken)
	}
}
