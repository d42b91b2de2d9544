package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"newsroom/internal/account"
	"newsroom/internal/api"
	"newsroom/internal/auth"
	"newsroom/internal/config"
	"newsroom/internal/db"
	"newsroom/internal/metrics"
	"newsroom/internal/models"
	"newsroom/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	promote := flag.String("promote", "", "assign a role and exit, as email=role")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		slog.Error("invalid log level", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("starting server", "name", cfg.Server.Name)

	database, err := db.Open(context.Background(), cfg.Database)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.Info("database opened", "driver", database.Dialect())

	hasher, err := auth.NewPasswordHasher(auth.PasswordParams{
		MemoryKiB:     cfg.Auth.Password.MemoryKiB,
		Iterations:    cfg.Auth.Password.Iterations,
		Parallelism:   cfg.Auth.Password.Parallelism,
		MaxConcurrent: cfg.Auth.Password.MaxConcurrent,
	})
	if err != nil {
		slog.Error("failed to initialize password hasher", "error", err)
		os.Exit(1)
	}

	tokens, err := auth.NewTokenIssuer(
		cfg.Auth.AccessTokenSecret,
		cfg.Auth.RefreshTokenSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	if err != nil {
		slog.Error("failed to initialize token issuer", "error", err)
		os.Exit(1)
	}

	authMetrics := metrics.NewAuth()
	hub := ws.NewHub()
	go hub.Run()
	defer hub.Shutdown()
	authMetrics.TrackSessions(hub.TotalConnections)

	refreshTokenRepo := db.NewRefreshTokenRepository(database)
	accessLogRepo := db.NewAccessLogRepository(database)

	accounts := account.NewService(account.Deps{
		Users:         db.NewUserRepository(database),
		RefreshTokens: refreshTokenRepo,
		AccessLogs:    accessLogRepo,
		Hasher:        hasher,
		TOTP:          auth.NewOTPEngine(cfg.Auth.TOTPIssuer),
		Tokens:        tokens,
		Metrics:       authMetrics,
		Sessions:      hub,
	}, account.Options{
		PasswordMinLength: cfg.Auth.Password.MinLength,
		MFAMasterCode:     cfg.Auth.MFAMasterCode,
	})

	if *promote != "" {
		if err := runPromote(accounts, *promote); err != nil {
			slog.Error("promote failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if cfg.Auth.MFAMasterCode != "" {
		slog.Warn("mfa master override code is enabled", "component", "audit")
	}

	cleanupService := db.NewCleanupService(refreshTokenRepo, accessLogRepo, cfg.Database.AccessLogRetention)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	go cleanupService.Start(cleanupCtx)

	server, err := api.NewServer(cfg, database, accounts, tokens, authMetrics, hub)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", addr, "base_url", cfg.Server.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")

	cleanupCancel()
	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

func runPromote(accounts *account.Service, arg string) error {
	email, role, err := parsePromote(arg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, err := accounts.PromoteByEmail(ctx, email, role)
	if err != nil {
		return fmt.Errorf("assigning role to %s: %w", email, err)
	}

	slog.Info("role assigned", "component", "audit", "user_id", user.ID, "email", user.Email, "role", user.Role)
	return nil
}

func parsePromote(arg string) (string, models.Role, error) {
	email, role, found := strings.Cut(arg, "=")
	email = strings.TrimSpace(email)
	r := models.Role(strings.ToLower(strings.TrimSpace(role)))
	if !found || email == "" {
		return "", "", fmt.Errorf("-promote expects email=role, got %q", arg)
	}
	if !r.Valid() {
		return "", "", fmt.Errorf("unknown role %q", role)
	}
	return email, r, nil
}

func parseLogLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, fmt.Errorf("parsing log level %q: %w", value, err)
	}
	return level, nil
}
