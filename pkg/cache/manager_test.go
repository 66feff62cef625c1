package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client against a local instance.
// Integration tests under tests/integration use testcontainers-go instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func pageKey(page string) CacheKey {
	return CacheKey{
		URL:         "https://api.example.com/v1/suppliers",
		QueryParams: url.Values{"page": []string{page}},
	}
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := pageKey("1")
	entry := NewEntry([]byte(`{"results":[{"id":1}],"remainingPages":2}`), 200, 5*time.Minute)

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if string(retrieved.Data) != string(entry.Data) {
		t.Errorf("Data mismatch: got %s, want %s", retrieved.Data, entry.Data)
	}
	if retrieved.StatusCode != entry.StatusCode {
		t.Errorf("StatusCode mismatch: got %d, want %d", retrieved.StatusCode, entry.StatusCode)
	}

	// Different page must not collide
	if _, err := manager.Get(ctx, pageKey("2")); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for other page, got %v", err)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)

	_, err := manager.Get(context.Background(), pageKey("99"))
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Get_ExpiredEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := pageKey("1")
	entry := &CacheEntry{
		Data:    []byte(`{"results":[]}`),
		Expires: time.Now().Add(-1 * time.Hour),
	}

	// Set should not cache expired entries
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	_, err := manager.Get(ctx, key)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
}

func TestManager_Get_InvalidEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := pageKey("1")
	if err := client.Set(ctx, key.String(), "not json", time.Minute).Err(); err != nil {
		t.Fatalf("raw set failed: %v", err)
	}

	_, err := manager.Get(ctx, key)
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Expected ErrInvalidEntry, got %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := pageKey("1")
	if err := manager.Set(ctx, key, NewEntry([]byte(`{}`), 200, 5*time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := manager.Get(ctx, key); err != nil {
		t.Fatalf("Get after Set failed: %v", err)
	}

	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := manager.Get(ctx, key)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)

	if err := manager.Set(context.Background(), pageKey("1"), nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}

func rejectTruncated(body []byte) error {
	if !json.Valid(body) {
		return errors.New("truncated body")
	}
	return nil
}

func TestManager_Set_Rejects(t *testing.T) {
	// Rejection happens before any Redis round trip
	client := redis.NewClient(&redis.Options{Addr: "localhost:1"})
	defer client.Close()
	manager := NewManager(client, WithValidator(rejectTruncated))

	tests := []struct {
		name  string
		entry *CacheEntry
	}{
		{"truncated body", NewEntry([]byte(`{"results": [1,`), 200, time.Minute)},
		{"server error status", NewEntry([]byte(`{"results":[]}`), 503, time.Minute)},
		{"empty body", NewEntry(nil, 200, time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := manager.Set(context.Background(), pageKey("2"), tt.entry)
			if !errors.Is(err, ErrRejectedBody) {
				t.Errorf("Set() error = %v, want ErrRejectedBody", err)
			}
		})
	}
}

func TestManager_Set_ValidBodyStored(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, WithValidator(rejectTruncated))
	ctx := context.Background()

	key := pageKey("1")
	if err := manager.Set(ctx, key, NewEntry([]byte(`{"results":[{"id":1}]}`), 200, time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); err != nil {
		t.Errorf("Get after valid Set failed: %v", err)
	}
}

func TestManager_Get_EvictsInvalidBody(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	key := pageKey("2")

	// Stored before the validator was in place
	if err := NewManager(client).Set(ctx, key, NewEntry([]byte(`{"results": [1,`), 200, time.Minute)); err != nil {
		t.Fatalf("unvalidated Set failed: %v", err)
	}

	manager := NewManager(client, WithValidator(rejectTruncated))
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get() error = %v, want ErrCacheMiss", err)
	}

	n, err := client.Exists(ctx, key.String()).Result()
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if n != 0 {
		t.Error("invalid body should have been evicted")
	}
}
