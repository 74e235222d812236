package otp

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrLockActive is the parent of every gating flag error: lockout, spam
	// lock and cooldown all satisfy errors.Is(err, ErrLockActive).
	ErrLockActive = errors.New("otp restriction active")

	ErrLocked   = fmt.Errorf("%w: locked after failed attempts", ErrLockActive)
	ErrSpamLock = fmt.Errorf("%w: too many requests", ErrLockActive)
	ErrCooldown = fmt.Errorf("%w: cooldown", ErrLockActive)

	ErrSpamThresholdExceeded = errors.New("otp request threshold exceeded")
	ErrCodeExpired           = errors.New("otp expired or absent")
	ErrCodeIncorrect         = errors.New("otp incorrect")
	ErrAttemptsExhausted     = errors.New("otp attempts exhausted")
	ErrDeliveryFailed        = errors.New("otp delivery failed")

	// ErrStoreUnavailable wraps every failure of the backing store. It is
	// never turned into a ValidationError.
	ErrStoreUnavailable = errors.New("otp store unavailable")
)

// ValidationError is a user-facing rejection. Message is safe to show to the
// end user as-is; Kind is one of the sentinels above.
type ValidationError struct {
	Kind         error
	Message      string
	Status       int
	AttemptsLeft int
	RetryAfter   time.Duration
	cause        error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

// StatusCode is the HTTP status a controller should answer with.
func (e *ValidationError) StatusCode() int {
	if e.Status == 0 {
		return http.StatusBadRequest
	}
	return e.Status
}

func rejection(kind error, message string, retryAfter time.Duration) *ValidationError {
	return &ValidationError{Kind: kind, Message: message, Status: http.StatusBadRequest, RetryAfter: retryAfter}
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// formatWait renders a lock duration for humans: "1 minute", "30 minutes",
// "1 hour".
func formatWait(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d.Round(time.Second)/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
