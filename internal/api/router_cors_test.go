package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"newsroom/internal/constants"
)

func TestCORSMiddleware(t *testing.T) {
	allowed := []string{"https://newsroom.example.com"}

	tests := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		wantNext    bool
		wantAllowed string
	}{
		{
			name:        "configured origin",
			method:      http.MethodGet,
			origin:      "https://newsroom.example.com",
			wantStatus:  http.StatusOK,
			wantNext:    true,
			wantAllowed: "https://newsroom.example.com",
		},
		{
			name:        "loopback dev origin",
			method:      http.MethodPost,
			origin:      "http://127.0.0.1:5173",
			wantStatus:  http.StatusOK,
			wantNext:    true,
			wantAllowed: "http://127.0.0.1:5173",
		},
		{
			name:        "preflight stops at middleware",
			method:      http.MethodOptions,
			origin:      "https://newsroom.example.com",
			wantStatus:  http.StatusNoContent,
			wantAllowed: "https://newsroom.example.com",
		},
		{
			name:       "foreign origin",
			method:     http.MethodPost,
			origin:     "https://evil.example",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "no origin header",
			method:     http.MethodPost,
			wantStatus: http.StatusOK,
			wantNext:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := corsMiddleware(allowed)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/v1/auth/login", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if called != tt.wantNext {
				t.Fatalf("next called = %v, want %v", called, tt.wantNext)
			}
			if tt.wantStatus == http.StatusForbidden {
				expectError(t, rr, http.StatusForbidden, constants.ErrCodeInvalidRequest)
				return
			}
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowed {
				t.Fatalf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllowed)
			}
		})
	}
}

func TestIsLoopbackOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{origin: "http://localhost:3000", want: true},
		{origin: "http://127.0.0.1:5173", want: true},
		{origin: "http://[::1]:8080", want: true},
		{origin: "https://example.com", want: false},
		{origin: "file://localhost", want: false},
		{origin: "http://localhost.evil.com", want: false},
	}

	for _, tt := range tests {
		if got := isLoopbackOrigin(tt.origin); got != tt.want {
			t.Fatalf("isLoopbackOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestSecurityHeadersOnTokenResponses(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "irrelevant password",
	})

	for header, want := range map[string]string{
		"Cache-Control":          "no-store",
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rr.Header().Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
}
