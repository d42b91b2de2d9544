package db

import (
	"context"
	"fmt"
	"time"

	"newsroom/internal/models"
)

type AccessLogRepository struct {
	db *DB
}

func NewAccessLogRepository(db *DB) *AccessLogRepository {
	return &AccessLogRepository{db: db}
}

func (r *AccessLogRepository) Create(ctx context.Context, userID, event, ip, userAgent string) (*models.AccessLogEntry, error) {
	id, err := GenerateID("alg")
	if err != nil {
		return nil, fmt.Errorf("generating access log ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx, r.db.rebind(
		`INSERT INTO access_logs (id, user_id, event, ip, user_agent, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		id, userID, event, ip, userAgent, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating access log entry: %w", err)
	}

	return &models.AccessLogEntry{
		ID:        id,
		UserID:    userID,
		Event:     event,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
	}, nil
}

func (r *AccessLogRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*models.AccessLogEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, r.db.rebind(
		`SELECT id, user_id, event, ip, user_agent, created_at
		   FROM access_logs
		  WHERE user_id = ?
		  ORDER BY created_at DESC
		  LIMIT ?`),
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying access logs: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.AccessLogEntry, 0)
	for rows.Next() {
		var e models.AccessLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Event, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning access log entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access logs: %w", err)
	}

	return entries, nil
}

// DeleteOlderThan prunes entries created before cutoff.
func (r *AccessLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.rebind(`DELETE FROM access_logs WHERE created_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting old access logs: %w", err)
	}

	return result.RowsAffected()
}
