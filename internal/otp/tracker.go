package otp

import (
	"context"
	"fmt"

	"otp-guard/internal/util"
)

// TrackRequest counts a code request against the identity's window. The
// request that pushes the count past MaxRequests engages the spam lock and is
// denied.
//
// Every counted request resets the window TTL, so steady traffic keeps the
// window open. The counter is bumped atomically, so concurrent requests are
// never under-counted.
func (g *Guard) TrackRequest(ctx context.Context, identity string) error {
	count, err := g.store.IncrWithExpire(ctx, RequestCountKey(identity), g.policy.RequestWindow)
	if err != nil {
		return storeError("track request", err)
	}

	if count > int64(g.policy.MaxRequests) {
		if err := g.store.Set(ctx, SpamLockKey(identity), flagValue, g.policy.SpamLockTTL); err != nil {
			return storeError("set spam lock", err)
		}
		g.logger.Warn("OTP spam lock engaged",
			util.Identity(identity),
			util.Int64("requests", count),
			util.Duration("lock_ttl", g.policy.SpamLockTTL),
		)
		return rejection(ErrSpamThresholdExceeded,
			fmt.Sprintf("Too many OTP requests! Try again after %s", formatWait(g.policy.SpamLockTTL)),
			g.policy.SpamLockTTL)
	}

	g.logger.Debug("OTP request tracked", util.Identity(identity), util.Int64("requests", count))
	return nil
}
