package db

import (
	"context"
	"testing"
)

func TestAccessLogCreateAndList(t *testing.T) {
	database := openTestDB(t)
	user := createTestUser(t, database, "ivy@example.com")
	logs := NewAccessLogRepository(database)
	ctx := context.Background()

	if _, err := logs.Create(ctx, user.ID, "login", "203.0.113.7", "curl/8.0"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := logs.Create(ctx, user.ID, "login_mfa_override", "203.0.113.8", "curl/8.0"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	entries, err := logs.ListForUser(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
}
