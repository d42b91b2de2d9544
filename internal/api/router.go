package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"newsroom/internal/account"
	"newsroom/internal/auth"
	"newsroom/internal/config"
	"newsroom/internal/constants"
	"newsroom/internal/db"
	"newsroom/internal/metrics"
	"newsroom/internal/models"
	"newsroom/internal/ws"
)

type Server struct {
	router *chi.Mux
	config *config.Config
}

func NewServer(
	cfg *config.Config,
	database *db.DB,
	accounts *account.Service,
	tokens *auth.TokenIssuer,
	authMetrics *metrics.Auth,
	hub *ws.Hub,
) (*Server, error) {
	clientIP, err := NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("initializing client IP resolver: %w", err)
	}

	authLimit := func(next http.Handler) http.Handler { return next }
	refreshLimit := authLimit
	if cfg.RateLimit.Enabled {
		authLimit = rateLimit(cfg.RateLimit.AuthPerMinute, time.Minute, clientIP)
		refreshLimit = rateLimit(cfg.RateLimit.RefreshPerMinute, time.Minute, clientIP)
	}

	authHandler := NewAuthHandler(accounts, clientIP)
	userHandler := NewUserHandler(accounts)
	serverInfoHandler := NewServerInfoHandler(cfg.Server.Name, accounts)
	healthHandler := NewHealthHandler(database)
	wsHandler := NewWebSocketHandler(hub, tokens, accounts, cfg.Server.AllowedOrigins)

	authMiddleware := NewAuthMiddleware(tokens)

	r := chi.NewRouter()
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.Server.AllowedOrigins))
	r.Use(securityHeadersMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		notFound(w, "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, constants.ErrCodeInvalidRequest, "Method not allowed")
	})

	r.Get("/health", healthHandler.Check)
	if authMetrics != nil {
		r.Handle("/metrics", authMetrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(maxBodySizeMiddleware(constants.MaxRequestBodyBytes))
		r.With(authMiddleware.OptionalAuth).Get("/server/info", serverInfoHandler.GetInfo)
		r.Get("/ws", wsHandler.ServeWS)

		r.Route("/auth", func(r chi.Router) {
			r.With(authLimit).Post("/register", authHandler.Register)
			r.With(authLimit).Post("/login", authHandler.Login)
			r.With(refreshLimit).Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequireAuth)
				r.With(authLimit).Post("/otp/enable", authHandler.EnableOTP)
				r.Post("/logout", authHandler.Logout)
				r.Post("/logout-all", authHandler.LogoutAll)
				r.Get("/sessions", authHandler.Sessions)
				r.With(authLimit).Put("/password", authHandler.ChangePassword)
				r.Get("/me", userHandler.GetMe)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware.RequireRole(models.RoleAdmin))
			r.Put("/users/{id}/block", userHandler.SetBlocked)
			r.Put("/users/{id}/role", userHandler.SetRole)
		})
	})

	return &Server{
		router: r,
		config: cfg,
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// corsMiddleware allows the configured origins plus any loopback origin.
// Requests without an Origin header pass through untouched.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !slices.Contains(allowedOrigins, origin) && !isLoopbackOrigin(origin) {
				writeError(w, http.StatusForbidden, constants.ErrCodeInvalidRequest, "Origin not allowed")
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}

	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func maxBodySizeMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
