package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisClientFromConn(rdb), mr
}

func TestGetMissingKeyIsNotAnError(t *testing.T) {
	rc, _ := newTestRedis(t)

	val, ok, err := rc.Get(context.Background(), "otp:nobody@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || val != "" {
		t.Fatalf("expected absent key, got %q ok=%v", val, ok)
	}
}

func TestSetGetExistsDel(t *testing.T) {
	rc, mr := newTestRedis(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, ok, err := rc.Get(ctx, "k")
	if err != nil || !ok || val != "v" {
		t.Fatalf("get: val=%q ok=%v err=%v", val, ok, err)
	}
	if exists, _ := rc.Exists(ctx, "k"); !exists {
		t.Fatal("expected key to exist")
	}

	mr.FastForward(61 * time.Second)
	if exists, _ := rc.Exists(ctx, "k"); exists {
		t.Fatal("expected key to expire")
	}

	_ = rc.Set(ctx, "a", 1, 0)
	_ = rc.Set(ctx, "b", 2, 0)
	if err := rc.Del(ctx, "a", "b", "missing"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if mr.Exists("a") || mr.Exists("b") {
		t.Fatal("expected both keys deleted")
	}
}

func TestIncrWithExpireRefreshesTTL(t *testing.T) {
	rc, mr := newTestRedis(t)
	ctx := context.Background()

	n, err := rc.IncrWithExpire(ctx, "counter", time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("first incr: n=%d err=%v", n, err)
	}

	mr.FastForward(30 * time.Minute)
	n, err = rc.IncrWithExpire(ctx, "counter", time.Hour)
	if err != nil || n != 2 {
		t.Fatalf("second incr: n=%d err=%v", n, err)
	}
	if ttl := mr.TTL("counter"); ttl != time.Hour {
		t.Fatalf("expected refreshed ttl of 1h, got %v", ttl)
	}
}

func TestIncrWithExpireConcurrent(t *testing.T) {
	rc, mr := newTestRedis(t)
	ctx := context.Background()

	const workers = 25
	var wg sync.WaitGroup
	seen := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := rc.IncrWithExpire(ctx, "counter", time.Minute)
			if err != nil {
				t.Errorf("incr: %v", err)
				return
			}
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for n := range seen {
		if unique[n] {
			t.Fatalf("value %d observed twice", n)
		}
		unique[n] = true
	}
	if got, _ := mr.Get("counter"); got != "25" {
		t.Fatalf("expected counter 25, got %s", got)
	}
}

func TestScanKeys(t *testing.T) {
	rc, mr := newTestRedis(t)
	for _, k := range []string{"otp:a", "otp:b", "otp_lock:a", "other"} {
		_ = mr.Set(k, "1")
	}

	keys, err := rc.ScanKeys(context.Background(), "otp:*", 10)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}

func TestHealthCheck(t *testing.T) {
	rc, mr := newTestRedis(t)
	if err := rc.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check: %v", err)
	}
	mr.Close()
	if err := rc.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check to fail after shutdown")
	}
}
