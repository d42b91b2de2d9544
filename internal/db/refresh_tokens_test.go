package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRefreshTokenRotateConsumesOnce(t *testing.T) {
	database := openTestDB(t)
	user := createTestUser(t, database, "alice@example.com")
	tokens := NewRefreshTokenRepository(database)
	ctx := context.Background()

	if _, err := tokens.Create(ctx, user.ID, "old", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := tokens.Rotate(ctx, user.ID, "old", "new", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if err := tokens.Rotate(ctx, user.ID, "old", "newer", time.Now().Add(time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Rotate(replay) error = %v, want ErrNotFound", err)
	}

	if count, _ := tokens.CountForUser(ctx, user.ID); count != 1 {
		t.Fatalf("CountForUser() = %d, want 1", count)
	}
}

func TestRefreshTokenRotateRejectsExpiredAndForeignRows(t *testing.T) {
	database := openTestDB(t)
	alice := createTestUser(t, database, "alice@example.com")
	bob := createTestUser(t, database, "bob@example.com")
	tokens := NewRefreshTokenRepository(database)
	ctx := context.Background()

	if _, err := tokens.Create(ctx, alice.ID, "expired", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := tokens.Create(ctx, alice.ID, "alice-live", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := tokens.Rotate(ctx, alice.ID, "expired", "n1", time.Now().Add(time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Rotate(expired) error = %v, want ErrNotFound", err)
	}
	if err := tokens.Rotate(ctx, bob.ID, "alice-live", "n2", time.Now().Add(time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Rotate(foreign) error = %v, want ErrNotFound", err)
	}
}

func TestRefreshTokenConcurrentRotateSingleWinner(t *testing.T) {
	database := openTestDB(t)
	user := createTestUser(t, database, "race@example.com")
	tokens := NewRefreshTokenRepository(database)
	ctx := context.Background()

	if _, err := tokens.Create(ctx, user.ID, "contended", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			newHash, _ := GenerateID("hash")
			err := tokens.Rotate(ctx, user.ID, "contended", newHash, time.Now().Add(time.Hour))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("successful rotations = %d, want 1", successes)
	}
	for _, err := range failures {
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("losing rotation error = %v, want ErrNotFound", err)
		}
	}
}

func TestRefreshTokenDeleteByHashIsIdempotent(t *testing.T) {
	database := openTestDB(t)
	user := createTestUser(t, database, "gina@example.com")
	tokens := NewRefreshTokenRepository(database)
	ctx := context.Background()

	if _, err := tokens.Create(ctx, user.ID, "h1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	deleted, err := tokens.DeleteByHash(ctx, user.ID, "h1")
	if err != nil || !deleted {
		t.Fatalf("DeleteByHash() = %v, %v, want true, nil", deleted, err)
	}
	deleted, err = tokens.DeleteByHash(ctx, user.ID, "h1")
	if err != nil || deleted {
		t.Fatalf("DeleteByHash(again) = %v, %v, want false, nil", deleted, err)
	}
}

func TestRefreshTokenDeleteByHashScopedToOwner(t *testing.T) {
	database := openTestDB(t)
	owner := createTestUser(t, database, "hank@example.com")
	other := createTestUser(t, database, "iris@example.com")
	tokens := NewRefreshTokenRepository(database)
	ctx := context.Background()

	if _, err := tokens.Create(ctx, owner.ID, "owned", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	deleted, err := tokens.DeleteByHash(ctx, other.ID, "owned")
	if err != nil || deleted {
		t.Fatalf("DeleteByHash(other user) = %v, %v, want false, nil", deleted, err)
	}
	if count, err := tokens.CountForUser(ctx, owner.ID); err != nil || count != 1 {
		t.Fatalf("CountForUser(owner) = %d, %v, want 1, nil", count, err)
	}
}

func TestRefreshTokenDeleteExpired(t *testing.T) {
	database := openTestDB(t)
	user := createTestUser(t, database, "hank@example.com")
	tokens := NewRefreshTokenRepository(database)
	ctx := context.Background()

	if _, err := tokens.Create(ctx, user.ID, "stale", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := tokens.Create(ctx, user.ID, "live", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	deleted, err := tokens.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("DeleteExpired() = %d, want 1", deleted)
	}
	if count, _ := tokens.CountForUser(ctx, user.ID); count != 1 {
		t.Fatalf("CountForUser() = %d, want 1", count)
	}
}
