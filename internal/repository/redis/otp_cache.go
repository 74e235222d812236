package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"otp-guard/internal/client"
	"otp-guard/internal/otp"
	"otp-guard/internal/util"
)

const scanBatch = 500

// OTPCache inspects and administers the guard's key space. The guard itself
// never goes through it.
type OTPCache struct {
	client *client.RedisClient
}

func NewOTPCache(client *client.RedisClient) *OTPCache {
	return &OTPCache{client: client}
}

// KeyState is the presence and remaining lifetime of one key.
type KeyState struct {
	Active     bool          `json:"active"`
	TTL        time.Duration `json:"-"`
	TTLSeconds int64         `json:"ttl_seconds"`
}

// Snapshot is everything the store holds for one identity. Counters are nil
// while their key is absent, which the guard treats as zero.
type Snapshot struct {
	Identity       string   `json:"identity"`
	Code           KeyState `json:"code"`
	Cooldown       KeyState `json:"cooldown"`
	SpamLock       KeyState `json:"spam_lock"`
	Lock           KeyState `json:"lock"`
	RequestCount   *int64   `json:"request_count"`
	RequestWindow  KeyState `json:"request_window"`
	FailedAttempts *int64   `json:"failed_attempts"`
	AttemptsWindow KeyState `json:"attempts_window"`
}

// Snapshot reads all six keys of identity in one pipeline. The code value
// itself is never returned.
func (c *OTPCache) Snapshot(ctx context.Context, identity string) (*Snapshot, error) {
	pipe := c.client.Pipeline()

	codeTTL := pipe.TTL(ctx, otp.CodeKey(identity))
	cooldownTTL := pipe.TTL(ctx, otp.CooldownKey(identity))
	spamTTL := pipe.TTL(ctx, otp.SpamLockKey(identity))
	lockTTL := pipe.TTL(ctx, otp.LockKey(identity))
	requestTTL := pipe.TTL(ctx, otp.RequestCountKey(identity))
	requestCount := pipe.Get(ctx, otp.RequestCountKey(identity))
	attemptsTTL := pipe.TTL(ctx, otp.AttemptsKey(identity))
	attempts := pipe.Get(ctx, otp.AttemptsKey(identity))

	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		util.Error("Failed to snapshot OTP keys", util.Identity(identity), zap.Error(err))
		return nil, fmt.Errorf("failed to snapshot OTP keys: %w", err)
	}

	snap := &Snapshot{
		Identity:       identity,
		Code:           keyState(codeTTL),
		Cooldown:       keyState(cooldownTTL),
		SpamLock:       keyState(spamTTL),
		Lock:           keyState(lockTTL),
		RequestWindow:  keyState(requestTTL),
		AttemptsWindow: keyState(attemptsTTL),
	}

	var err error
	if snap.RequestCount, err = counterValue(requestCount); err != nil {
		return nil, fmt.Errorf("invalid request count for %s: %w", identity, err)
	}
	if snap.FailedAttempts, err = counterValue(attempts); err != nil {
		return nil, fmt.Errorf("invalid attempt count for %s: %w", identity, err)
	}
	return snap, nil
}

// ClearRestrictions lifts every gate on identity: lockout, spam lock,
// cooldown and both counters. A live code stays valid.
func (c *OTPCache) ClearRestrictions(ctx context.Context, identity string) error {
	keys := []string{
		otp.LockKey(identity),
		otp.SpamLockKey(identity),
		otp.CooldownKey(identity),
		otp.RequestCountKey(identity),
		otp.AttemptsKey(identity),
	}
	if err := c.client.Del(ctx, keys...); err != nil {
		util.Error("Failed to clear OTP restrictions", util.Identity(identity), zap.Error(err))
		return fmt.Errorf("failed to clear OTP restrictions: %w", err)
	}

	util.Info("OTP restrictions cleared", util.Identity(identity))
	return nil
}

// Stats counts live keys per family.
type Stats struct {
	ActiveCodes     int `json:"active_codes"`
	Cooldowns       int `json:"cooldowns"`
	RequestCounters int `json:"request_counters"`
	SpamLocks       int `json:"spam_locks"`
	AttemptCounters int `json:"attempt_counters"`
	Locks           int `json:"locks"`
}

// Stats scans each key family concurrently with SCAN.
func (c *OTPCache) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	targets := map[string]*int{
		otp.CodePrefix:         &stats.ActiveCodes,
		otp.CooldownPrefix:     &stats.Cooldowns,
		otp.RequestCountPrefix: &stats.RequestCounters,
		otp.SpamLockPrefix:     &stats.SpamLocks,
		otp.AttemptsPrefix:     &stats.AttemptCounters,
		otp.LockPrefix:         &stats.Locks,
	}

	g, gctx := errgroup.WithContext(ctx)
	for prefix, target := range targets {
		prefix, target := prefix, target
		g.Go(func() error {
			keys, err := c.client.ScanKeys(gctx, prefix+"*", scanBatch)
			if err != nil {
				return fmt.Errorf("scan %s: %w", prefix, err)
			}
			*target = len(keys)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		util.Warn("Failed to collect OTP stats", zap.Error(err))
		return nil, err
	}
	return stats, nil
}

func keyState(cmd *goredis.DurationCmd) KeyState {
	ttl := cmd.Val()
	// go-redis reports -2 for a missing key and -1 for a key without expiry.
	if cmd.Err() != nil || ttl == -2 {
		return KeyState{}
	}
	if ttl < 0 {
		return KeyState{Active: true}
	}
	return KeyState{Active: true, TTL: ttl, TTLSeconds: int64(ttl / time.Second)}
}

func counterValue(cmd *goredis.StringCmd) (*int64, error) {
	raw, err := cmd.Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
