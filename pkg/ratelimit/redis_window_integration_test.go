//go:build integration

package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisWindow_Integration_SlidingWindow(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	w := NewRedisWindow(client, "test:")
	ctx := context.Background()
	start := time.UnixMilli(time.Now().UnixMilli())

	for i := 0; i < 3; i++ {
		res, err := w.CheckAndRecord(ctx, WindowRequest{
			Key: "bucket", Now: start.Add(time.Duration(i) * time.Second), Limit: 3, Window: time.Minute,
		})
		if err != nil {
			t.Fatalf("CheckAndRecord() error = %v", err)
		}
		if !res.Allowed || res.Count != i+1 {
			t.Errorf("request %d: Allowed = %v, Count = %d", i+1, res.Allowed, res.Count)
		}
		if !res.Oldest.Equal(start) {
			t.Errorf("Oldest = %v, want %v", res.Oldest, start)
		}
	}

	res, err := w.CheckAndRecord(ctx, WindowRequest{Key: "bucket", Now: start.Add(3 * time.Second), Limit: 3, Window: time.Minute})
	if err != nil {
		t.Fatalf("CheckAndRecord() error = %v", err)
	}
	if res.Allowed {
		t.Error("4th request allowed, want rejected")
	}

	card, err := client.ZCard(ctx, "test:bucket").Result()
	if err != nil {
		t.Fatalf("ZCard() error = %v", err)
	}
	if card != 3 {
		t.Errorf("markers = %d, want 3 (rejections are not recorded)", card)
	}

	ttl, err := client.PTTL(ctx, "test:bucket").Result()
	if err != nil {
		t.Fatalf("PTTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want within one window", ttl)
	}

	res, err = w.CheckAndRecord(ctx, WindowRequest{Key: "bucket", Now: start.Add(time.Minute), Limit: 3, Window: time.Minute})
	if err != nil {
		t.Fatalf("CheckAndRecord() error = %v", err)
	}
	if !res.Allowed {
		t.Error("request after oldest marker expired rejected, want allowed")
	}
}

func TestRedisWindow_Integration_Burst(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	w := NewRedisWindow(client, "test:")
	ctx := context.Background()
	start := time.UnixMilli(time.Now().UnixMilli())

	var last WindowResult
	for i := 0; i < 6; i++ {
		var err error
		last, err = w.CheckAndRecord(ctx, WindowRequest{
			Key:         "burst",
			Now:         start.Add(time.Duration(i) * 400 * time.Millisecond),
			Limit:       100,
			Window:      time.Minute,
			BurstLimit:  5,
			BurstWindow: 10 * time.Second,
		})
		if err != nil {
			t.Fatalf("CheckAndRecord() error = %v", err)
		}
	}

	if last.Allowed {
		t.Error("6th request allowed, want burst rejection")
	}
	if last.BurstCount != 5 {
		t.Errorf("BurstCount = %d, want 5", last.BurstCount)
	}
	if !last.OldestBurst.Equal(start) {
		t.Errorf("OldestBurst = %v, want %v", last.OldestBurst, start)
	}
}

func TestRedisWindow_Integration_Atomic(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	w := NewRedisWindow(client, "test:")
	ctx := context.Background()
	now := time.Now()

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := w.CheckAndRecord(ctx, WindowRequest{Key: "race", Now: now, Limit: 10, Window: time.Minute})
			if err != nil {
				t.Errorf("CheckAndRecord() error = %v", err)
				return
			}
			if res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 10 {
		t.Errorf("allowed = %d, want exactly 10", got)
	}
}

func TestLimiter_Integration_StoreDown(t *testing.T) {
	client, cleanup := setupRedis(t)
	w := NewRedisWindow(client, "test:")
	cleanup()

	fallback, err := NewMemoryWindow(8)
	if err != nil {
		t.Fatalf("NewMemoryWindow() error = %v", err)
	}
	l, err := NewLimiter(Connected(w), fallback, DefaultPolicies())
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}

	d, err := l.Check(context.Background(), addressClient, LimitBrowse)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !d.Allowed || d.Backend != BackendMemory {
		t.Errorf("decision = %+v, want allowed by memory backend", d)
	}
}
