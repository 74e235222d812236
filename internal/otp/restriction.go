package otp

import (
	"context"
	"fmt"
	"time"

	"otp-guard/internal/util"
)

type restriction struct {
	name    string
	key     string
	kind    error
	message string
	wait    time.Duration
}

// CheckRestriction denies a new code while the identity is locked out, spam
// locked or cooling down, checked in that order. It only reads.
func (g *Guard) CheckRestriction(ctx context.Context, identity string) error {
	checks := []restriction{
		{
			name:    "lock",
			key:     LockKey(identity),
			kind:    ErrLocked,
			message: fmt.Sprintf("Account locked due to multiple failed attempts! Try again after %s", formatWait(g.policy.LockTTL)),
			wait:    g.policy.LockTTL,
		},
		{
			name:    "spam_lock",
			key:     SpamLockKey(identity),
			kind:    ErrSpamLock,
			message: fmt.Sprintf("Too many OTP requests! Try again after %s", formatWait(g.policy.SpamLockTTL)),
			wait:    g.policy.SpamLockTTL,
		},
		{
			name:    "cooldown",
			key:     CooldownKey(identity),
			kind:    ErrCooldown,
			message: fmt.Sprintf("You have already requested an OTP! Try again after %s", formatWait(g.policy.CooldownTTL)),
			wait:    g.policy.CooldownTTL,
		},
	}

	for _, check := range checks {
		active, err := g.store.Exists(ctx, check.key)
		if err != nil {
			return storeError("check restriction", err)
		}
		if active {
			g.logger.Info("OTP request restricted",
				util.Identity(identity),
				util.String("restriction", check.name),
			)
			return rejection(check.kind, check.message, check.wait)
		}
	}
	return nil
}
