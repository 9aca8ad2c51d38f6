package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected error for malformed redis url")
	}
}

func TestSaveAndLookupSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveSession(ctx, "abc", Data{UserID: 7, UserType: "user"}, time.Hour); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	data, err := store.LookupSession(ctx, "abc")
	if err != nil {
		t.Fatalf("LookupSession failed: %v", err)
	}
	if data.UserID != 7 || data.UserType != "user" {
		t.Fatalf("unexpected session data: %+v", data)
	}
	if data.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be stamped")
	}
}

func TestLookupSessionExpires(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveSession(ctx, "abc", Data{UserID: 7, UserType: "user"}, time.Minute); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	s.FastForward(2 * time.Minute)

	if _, err := store.LookupSession(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestRevokeSession(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveSession(ctx, "abc", Data{UserID: 7, UserType: "user"}, 0); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if ttl := s.TTL("sess:abc"); ttl != defaultTTL {
		t.Fatalf("expected default ttl, got %v", ttl)
	}
	if err := store.RevokeSession(ctx, "abc"); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if s.Exists("sess:abc") {
		t.Fatal("session key should be gone after revoke")
	}
}

func TestLookupSessionRejectsCorruptPayload(t *testing.T) {
	store, s := setupTestRedis(t)
	if err := s.Set("sess:bad", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := store.LookupSession(context.Background(), "bad")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
