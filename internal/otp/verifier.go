package otp

import (
	"context"
	"crypto/subtle"
	"fmt"

	"otp-guard/internal/util"
)

// VerifyOTP checks submitted against the identity's live code.
//
//   - no live code: ErrCodeExpired
//   - match: code and attempt counter are deleted, nil is returned
//   - mismatch within budget: the counter is bumped, ErrCodeIncorrect with
//     the attempts still left
//   - mismatch past MaxFailedAttempts: the identity is locked for LockTTL,
//     code and counter are deleted, ErrAttemptsExhausted
func (g *Guard) VerifyOTP(ctx context.Context, identity, submitted string) error {
	codeKey := CodeKey(identity)
	attemptsKey := AttemptsKey(identity)

	stored, ok, err := g.store.Get(ctx, codeKey)
	if err != nil {
		return storeError("load code", err)
	}
	if !ok {
		return rejection(ErrCodeExpired, "OTP expired! Please request a new one", 0)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1 {
		if err := g.store.Del(ctx, codeKey, attemptsKey); err != nil {
			return storeError("clear code", err)
		}
		g.logger.Info("OTP verified", util.Identity(identity))
		return nil
	}

	failures, err := g.store.IncrWithExpire(ctx, attemptsKey, g.policy.AttemptsTTL)
	if err != nil {
		return storeError("count failed attempt", err)
	}

	if failures > int64(g.policy.MaxFailedAttempts) {
		if err := g.store.Set(ctx, LockKey(identity), flagValue, g.policy.LockTTL); err != nil {
			return storeError("set lock", err)
		}
		if err := g.store.Del(ctx, codeKey, attemptsKey); err != nil {
			return storeError("discard code", err)
		}
		g.logger.Warn("OTP lockout engaged",
			util.Identity(identity),
			util.Int64("failures", failures),
			util.Duration("lock_ttl", g.policy.LockTTL),
		)
		return rejection(ErrAttemptsExhausted,
			fmt.Sprintf("Account locked due to multiple failed attempts! Account locked for %s", formatWait(g.policy.LockTTL)),
			g.policy.LockTTL)
	}

	left := g.policy.MaxFailedAttempts - int(failures) + 1
	g.logger.Info("OTP incorrect", util.Identity(identity), util.Int("attempts_left", left))
	verr := rejection(ErrCodeIncorrect, fmt.Sprintf("Incorrect OTP! Attempts left: %d", left), 0)
	verr.AttemptsLeft = left
	return verr
}
