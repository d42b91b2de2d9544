package db

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultCleanupInterval = 1 * time.Hour
	cleanupTimeout         = 30 * time.Second
)

// CleanupService sweeps expired refresh tokens and access log entries older
// than the retention window. A zero retention keeps access logs forever.
type CleanupService struct {
	refreshTokens *RefreshTokenRepository
	accessLogs    *AccessLogRepository
	retention     time.Duration
	interval      time.Duration
	now           func() time.Time
}

func NewCleanupService(refreshTokens *RefreshTokenRepository, accessLogs *AccessLogRepository, retention time.Duration) *CleanupService {
	return &CleanupService{
		refreshTokens: refreshTokens,
		accessLogs:    accessLogs,
		retention:     retention,
		interval:      DefaultCleanupInterval,
		now:           time.Now,
	}
}

func (s *CleanupService) Start(ctx context.Context) {
	slog.Info("starting cleanup service", "component", "cleanup", "interval", s.interval, "access_log_retention", s.retention)

	s.runCleanup(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping cleanup service", "component", "cleanup")
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *CleanupService) runCleanup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	refreshDeleted, err := s.refreshTokens.DeleteExpired(ctx)
	if err != nil {
		slog.Error("error deleting expired refresh tokens", "component", "cleanup", "error", err)
	} else if refreshDeleted > 0 {
		slog.Info("deleted expired refresh tokens", "component", "cleanup", "count", refreshDeleted)
	}

	if s.accessLogs == nil || s.retention <= 0 {
		return
	}
	logsDeleted, err := s.accessLogs.DeleteOlderThan(ctx, s.now().Add(-s.retention))
	if err != nil {
		slog.Error("error pruning access logs", "component", "cleanup", "error", err)
	} else if logsDeleted > 0 {
		slog.Info("pruned access logs", "component", "cleanup", "count", logsDeleted)
	}
}
