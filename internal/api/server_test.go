package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"newsroom/internal/account"
	"newsroom/internal/auth"
	"newsroom/internal/config"
	"newsroom/internal/db"
	"newsroom/internal/metrics"
	"newsroom/internal/models"
	"newsroom/internal/ws"
)

const testPassword = "correct horse battery"

type testServer struct {
	handler  http.Handler
	accounts *account.Service
	tokens   *auth.TokenIssuer
	hub      *ws.Hub
	database *db.DB
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	cfg, err := config.Parse([]byte(`
server:
  name: Test Newsroom
auth:
  access_token_secret: access-secret-0123456789abcdef0123456789
  refresh_token_secret: refresh-secret-0123456789abcdef012345678
`))
	if err != nil {
		t.Fatalf("config.Parse() error = %v", err)
	}
	cfg.Database.Path = filepath.Join(t.TempDir(), "api.db")
	if mutate != nil {
		mutate(cfg)
	}

	database, err := db.Open(context.Background(), cfg.Database)
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	hasher, err := auth.NewPasswordHasher(auth.PasswordParams{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1, MaxConcurrent: 4})
	if err != nil {
		t.Fatalf("NewPasswordHasher() error = %v", err)
	}
	tokens, err := auth.NewTokenIssuer(cfg.Auth.AccessTokenSecret, cfg.Auth.RefreshTokenSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	authMetrics := metrics.NewAuth()
	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Shutdown)
	authMetrics.TrackSessions(hub.TotalConnections)

	accounts := account.NewService(account.Deps{
		Users:         db.NewUserRepository(database),
		RefreshTokens: db.NewRefreshTokenRepository(database),
		AccessLogs:    db.NewAccessLogRepository(database),
		Hasher:        hasher,
		TOTP:          auth.NewOTPEngine(cfg.Auth.TOTPIssuer),
		Tokens:        tokens,
		Metrics:       authMetrics,
		Sessions:      hub,
	}, account.Options{
		PasswordMinLength: cfg.Auth.Password.MinLength,
		MFAMasterCode:     cfg.Auth.MFAMasterCode,
	})

	server, err := NewServer(cfg, database, accounts, tokens, authMetrics, hub)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	return &testServer{handler: server, accounts: accounts, tokens: tokens, hub: hub, database: database}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

// registerUser registers email and returns the TOTP secret.
func (s *testServer) registerUser(t *testing.T, email string) (string, string) {
	t.Helper()

	rr := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    email,
		"password": testPassword,
		"name":     "Test User",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body=%q", rr.Code, rr.Body.String())
	}

	var resp RegisterResponse
	decodeBody(t, rr, &resp)
	return resp.User.ID, resp.TOTPSecret
}

func (s *testServer) loginTokens(t *testing.T, email, code string) LoginResponse {
	t.Helper()

	body := map[string]string{"email": email, "password": testPassword}
	if code != "" {
		body["otpCode"] = code
	}
	rr := s.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, body=%q", rr.Code, rr.Body.String())
	}

	var resp LoginResponse
	decodeBody(t, rr, &resp)
	return resp
}

func (s *testServer) tokenForRole(t *testing.T, email string, role models.Role) string {
	t.Helper()

	s.registerUser(t, email)
	if role != models.RoleUser {
		if _, err := s.accounts.PromoteByEmail(context.Background(), email, role); err != nil {
			t.Fatalf("PromoteByEmail() error = %v", err)
		}
	}
	return s.loginTokens(t, email, "").AccessToken
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body=%q", err, rr.Body.String())
	}
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	if rr.Code != status {
		t.Fatalf("status = %d, want %d, body=%q", rr.Code, status, rr.Body.String())
	}
	var resp ErrorResponse
	decodeBody(t, rr, &resp)
	if resp.Success {
		t.Fatalf("success = true on error response, body=%q", rr.Body.String())
	}
	if resp.Error.Code != code {
		t.Fatalf("error.code = %q, want %q", resp.Error.Code, code)
	}
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode() error = %v", err)
	}
	return code
}
