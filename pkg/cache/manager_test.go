package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips the test when none is
// running. Container-backed coverage lives in tests/integration.
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

var testKey = CacheKey{Namespace: "search", Endpoint: "/sbdb_query.api", Fingerprint: "0123456789abcdef"}

func TestDisabledManager(t *testing.T) {
	m := Disabled("redis disabled")
	ctx := context.Background()

	if m.Available() {
		t.Error("Available() = true, want false")
	}
	if m.Reason() != "redis disabled" {
		t.Errorf("Reason() = %q", m.Reason())
	}
	if err := m.Set(ctx, testKey, NewEntry([]byte("x"), time.Minute, time.Now())); err != nil {
		t.Errorf("Set() error = %v, want nil", err)
	}
	if _, err := m.Get(ctx, testKey); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
	if err := m.Delete(ctx, testKey); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
}

func TestNewManager_NilClient(t *testing.T) {
	if NewManager(nil).Available() {
		t.Error("NewManager(nil) is available")
	}
}

func TestManager_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	m := NewManager(client)
	ctx := context.Background()

	entry := NewEntry([]byte(`[{"id":"1"}]`), time.Minute, time.Now())
	entry.Source = "primary"

	if err := m.Set(ctx, testKey, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := m.Get(ctx, testKey)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Data) != string(entry.Data) || got.Source != "primary" {
		t.Errorf("Get() = %+v, want %+v", got, entry)
	}

	ttl, err := client.TTL(ctx, testKey.String()).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("redis TTL = %v, want within 1m", ttl)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	m := NewManager(setupTestRedis(t))

	if _, err := m.Get(context.Background(), testKey); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Set_ExpiredEntryNotStored(t *testing.T) {
	client := setupTestRedis(t)
	m := NewManager(client)
	ctx := context.Background()

	entry := NewEntry([]byte("x"), -time.Second, time.Now())
	if err := m.Set(ctx, testKey, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if n := client.Exists(ctx, testKey.String()).Val(); n != 0 {
		t.Errorf("expired entry stored")
	}
}

func TestManager_Delete(t *testing.T) {
	m := NewManager(setupTestRedis(t))
	ctx := context.Background()

	if err := m.Set(ctx, testKey, NewEntry([]byte("x"), time.Minute, time.Now())); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := m.Delete(ctx, testKey); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := m.Get(ctx, testKey); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after Delete error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	if err := Disabled("x").Set(context.Background(), testKey, nil); err == nil {
		t.Error("Set(nil) expected error")
	}
}
