package otp

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCheckRestrictionFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   []string
		kind    error
		message string
		wait    time.Duration
	}{
		{
			name:    "lockout",
			flags:   []string{LockPrefix},
			kind:    ErrLocked,
			message: "Account locked due to multiple failed attempts! Try again after 30 minutes",
			wait:    30 * time.Minute,
		},
		{
			name:    "spam lock",
			flags:   []string{SpamLockPrefix},
			kind:    ErrSpamLock,
			message: "Too many OTP requests! Try again after 1 hour",
			wait:    time.Hour,
		},
		{
			name:    "cooldown",
			flags:   []string{CooldownPrefix},
			kind:    ErrCooldown,
			message: "You have already requested an OTP! Try again after 1 minute",
			wait:    time.Minute,
		},
		{
			name:    "lockout wins over the others",
			flags:   []string{CooldownPrefix, SpamLockPrefix, LockPrefix},
			kind:    ErrLocked,
			message: "Account locked due to multiple failed attempts! Try again after 30 minutes",
			wait:    30 * time.Minute,
		},
		{
			name:    "spam lock wins over cooldown",
			flags:   []string{CooldownPrefix, SpamLockPrefix},
			kind:    ErrSpamLock,
			message: "Too many OTP requests! Try again after 1 hour",
			wait:    time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard, mr, _ := newTestGuard(t)
			identity := "c@x.com"
			for _, prefix := range tt.flags {
				mustSet(t, mr, prefix+identity, "true")
			}

			err := guard.CheckRestriction(context.Background(), identity)
			verr := expectValidation(t, err, tt.kind, tt.message)
			if !errors.Is(err, ErrLockActive) {
				t.Fatal("every gating flag should match ErrLockActive")
			}
			if verr.RetryAfter != tt.wait {
				t.Fatalf("expected retry after %v, got %v", tt.wait, verr.RetryAfter)
			}
			if verr.StatusCode() != 400 {
				t.Fatalf("expected status 400, got %d", verr.StatusCode())
			}
		})
	}
}

func TestCheckRestrictionAllowsAndDoesNotWrite(t *testing.T) {
	guard, mr, _ := newTestGuard(t)

	if err := guard.CheckRestriction(context.Background(), "free@x.com"); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("restriction check must not write, found %v", keys)
	}
}

func TestCheckRestrictionIgnoresOtherIdentities(t *testing.T) {
	guard, mr, _ := newTestGuard(t)
	mustSet(t, mr, LockKey("other@x.com"), "true")

	if err := guard.CheckRestriction(context.Background(), "me@x.com"); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestCheckRestrictionAfterExpiry(t *testing.T) {
	guard, mr, _ := newTestGuard(t)
	identity := "exp@x.com"
	mustSet(t, mr, CooldownKey(identity), "true")
	mr.SetTTL(CooldownKey(identity), time.Minute)

	mr.FastForward(61 * time.Second)
	if err := guard.CheckRestriction(context.Background(), identity); err != nil {
		t.Fatalf("expected cooldown to have expired, got %v", err)
	}
}

func TestCheckRestrictionStoreUnavailable(t *testing.T) {
	guard, mr, _ := newTestGuard(t)
	mr.Close()

	err := guard.CheckRestriction(context.Background(), "down@x.com")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		t.Fatal("store failures must not be reported as validation errors")
	}
}

// P6: right after a successful issuance the cooldown denies a second request
// even though no lock or spam lock exists.
func TestCooldownBlocksImmediateReissue(t *testing.T) {
	guard, mr, _ := newTestGuard(t)
	ctx := context.Background()
	identity := "p6@x.com"

	if err := guard.IssueOTP(ctx, "P", identity, "user-activation-mail"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	expectValidation(t, guard.CheckRestriction(ctx, identity), ErrCooldown, "")

	mr.FastForward(60 * time.Second)
	if err := guard.CheckRestriction(ctx, identity); err != nil {
		t.Fatalf("expected allow once the cooldown elapsed, got %v", err)
	}
}
