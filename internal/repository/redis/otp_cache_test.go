package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"otp-guard/internal/client"
	"otp-guard/internal/otp"
)

func newTestCache(t *testing.T) (*OTPCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewOTPCache(client.NewRedisClientFromConn(rdb)), mr
}

func seed(t *testing.T, mr *miniredis.Miniredis, key, value string, ttl time.Duration) {
	t.Helper()
	if err := mr.Set(key, value); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
	if ttl > 0 {
		mr.SetTTL(key, ttl)
	}
}

func TestSnapshotEmptyIdentity(t *testing.T) {
	cache, _ := newTestCache(t)

	snap, err := cache.Snapshot(context.Background(), "nobody@x.com")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Code.Active || snap.Lock.Active || snap.SpamLock.Active || snap.Cooldown.Active {
		t.Fatalf("expected no active keys: %+v", snap)
	}
	if snap.RequestCount != nil || snap.FailedAttempts != nil {
		t.Fatal("absent counters must be nil")
	}
}

func TestSnapshotReportsKeys(t *testing.T) {
	cache, mr := newTestCache(t)
	id := "a@x.com"
	seed(t, mr, otp.CodeKey(id), "4821", 5*time.Minute)
	seed(t, mr, otp.CooldownKey(id), "true", time.Minute)
	seed(t, mr, otp.RequestCountKey(id), "2", time.Hour)
	seed(t, mr, otp.AttemptsKey(id), "1", 5*time.Minute)

	snap, err := cache.Snapshot(context.Background(), id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if !snap.Code.Active || snap.Code.TTLSeconds != 300 {
		t.Fatalf("unexpected code state: %+v", snap.Code)
	}
	if !snap.Cooldown.Active || snap.Cooldown.TTL != time.Minute {
		t.Fatalf("unexpected cooldown state: %+v", snap.Cooldown)
	}
	if snap.RequestCount == nil || *snap.RequestCount != 2 {
		t.Fatalf("unexpected request count: %v", snap.RequestCount)
	}
	if snap.FailedAttempts == nil || *snap.FailedAttempts != 1 {
		t.Fatalf("unexpected failed attempts: %v", snap.FailedAttempts)
	}
	if snap.Lock.Active || snap.SpamLock.Active {
		t.Fatal("no locks were seeded")
	}
}

func TestSnapshotRejectsCorruptCounter(t *testing.T) {
	cache, mr := newTestCache(t)
	seed(t, mr, otp.AttemptsKey("bad@x.com"), "many", 0)

	if _, err := cache.Snapshot(context.Background(), "bad@x.com"); err == nil {
		t.Fatal("expected an error for a non-numeric counter")
	}
}

func TestClearRestrictionsKeepsCode(t *testing.T) {
	cache, mr := newTestCache(t)
	id := "locked@x.com"
	seed(t, mr, otp.CodeKey(id), "4821", 5*time.Minute)
	for _, key := range []string{otp.LockKey(id), otp.SpamLockKey(id), otp.CooldownKey(id)} {
		seed(t, mr, key, "true", time.Hour)
	}
	seed(t, mr, otp.RequestCountKey(id), "3", time.Hour)
	seed(t, mr, otp.AttemptsKey(id), "2", 5*time.Minute)

	if err := cache.ClearRestrictions(context.Background(), id); err != nil {
		t.Fatalf("clear: %v", err)
	}

	for _, key := range []string{otp.LockKey(id), otp.SpamLockKey(id), otp.CooldownKey(id), otp.RequestCountKey(id), otp.AttemptsKey(id)} {
		if mr.Exists(key) {
			t.Fatalf("expected %s to be deleted", key)
		}
	}
	if !mr.Exists(otp.CodeKey(id)) {
		t.Fatal("a live code must survive an unlock")
	}
}

func TestStatsCountsFamilies(t *testing.T) {
	cache, mr := newTestCache(t)
	for i := 0; i < 3; i++ {
		seed(t, mr, otp.CodeKey(fmt.Sprintf("u%d@x.com", i)), "1234", time.Minute)
	}
	seed(t, mr, otp.LockKey("l@x.com"), "true", time.Minute)
	seed(t, mr, otp.SpamLockKey("s1@x.com"), "true", time.Minute)
	seed(t, mr, otp.SpamLockKey("s2@x.com"), "true", time.Minute)
	seed(t, mr, otp.CooldownKey("u0@x.com"), "true", time.Minute)
	seed(t, mr, "session:unrelated", "x", 0)

	stats, err := cache.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	want := Stats{ActiveCodes: 3, Cooldowns: 1, SpamLocks: 2, Locks: 1}
	if *stats != want {
		t.Fatalf("got %+v, want %+v", *stats, want)
	}
}

func TestStatsStoreUnavailable(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()

	if _, err := cache.Stats(context.Background()); err == nil {
		t.Fatal("expected an error with the store down")
	}
}
