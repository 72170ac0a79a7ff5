package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return Wrap(rdb, zap.NewNop()), mr
}

func TestIdempotencyService_NewRequestReserves(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	result, err := svc.CheckOrReserve(ctx, "user-1", "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result for new request, got: %+v", result)
	}

	if _, err := svc.CheckOrReserve(ctx, "user-1", "key-1"); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest while in flight, got: %v", err)
	}
}

func TestIdempotencyService_ReplayReturnsStoredJob(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "user-1", "key-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := svc.Store(ctx, "user-1", "key-1", &IdempotencyResult{
		JobID:      "job-789",
		Module:     "image-to-video",
		StatusCode: 201,
	}, IdempotencyTTL); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	cached, err := svc.CheckOrReserve(ctx, "user-1", "key-1")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if cached == nil || cached.JobID != "job-789" {
		t.Fatalf("expected job-789, got %+v", cached)
	}
	if cached.CreatedAt == 0 {
		t.Error("expected CreatedAt to be stamped")
	}
}

func TestIdempotencyService_UserIsolation(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "user-A", "same-key"); err != nil {
		t.Fatalf("user A failed: %v", err)
	}
	result, err := svc.CheckOrReserve(ctx, "user-B", "same-key")
	if err != nil {
		t.Fatalf("user B should succeed: %v", err)
	}
	if result != nil {
		t.Fatal("user B should get nil (new request)")
	}
}

func TestIdempotencyService_Release(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "user-1", "bad-params"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := svc.Release(ctx, "user-1", "bad-params"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := svc.CheckOrReserve(ctx, "user-1", "bad-params"); err != nil {
		t.Fatalf("key should be reusable after release: %v", err)
	}

	// Release never drops a finished result.
	_ = svc.Store(ctx, "user-1", "done", &IdempotencyResult{JobID: "job-1"}, IdempotencyTTL)
	if err := svc.Release(ctx, "user-1", "done"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	cached, _ := svc.Check(ctx, "user-1", "done")
	if cached == nil || cached.JobID != "job-1" {
		t.Fatalf("stored result should survive release, got %+v", cached)
	}

	if err := svc.Release(ctx, "user-1", "never-seen"); err != nil {
		t.Fatalf("release of unknown key should be a no-op: %v", err)
	}
}

func TestIdempotencyService_ReservationExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CheckOrReserve(ctx, "user-1", "k"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	mr.FastForward(processingTTL + time.Second)

	if _, err := svc.CheckOrReserve(ctx, "user-1", "k"); err != nil {
		t.Fatalf("expired reservation should be reclaimable: %v", err)
	}
}

func TestIdempotencyService_CorruptValue(t *testing.T) {
	client, mr := setupTestRedis(t)
	svc := NewIdempotencyService(client, zap.NewNop())

	_ = mr.Set(svc.buildKey("user-1", "k"), "{not json")
	if _, err := svc.Check(context.Background(), "user-1", "k"); err == nil {
		t.Fatal("expected error for corrupt cached value")
	}
}
