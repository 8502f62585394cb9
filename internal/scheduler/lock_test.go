package scheduler

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Runs against a real server when RECONCILER_TEST_REDIS_ADDR is set.
func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("RECONCILER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RECONCILER_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	locker := NewRedisLocker(rdb, "reconciler-test:"+uuid.NewString()+":")
	release, err := locker.Acquire(ctx, "reminder", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := locker.Acquire(ctx, "reminder", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected lock held, got %v", err)
	}
	if _, err := locker.Acquire(ctx, "autoclose", time.Minute); err != nil {
		t.Fatalf("other job key must be free: %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("second release must be a no-op: %v", err)
	}
	again, err := locker.Acquire(ctx, "reminder", time.Minute)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	_ = again(ctx)
}
