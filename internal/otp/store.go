package otp

import (
	"context"
	"time"
)

// Store is the expiring key-value contract the guard runs on. Each call is
// atomic on its own; nothing here composes calls into a transaction.
type Store interface {
	// Get returns ok=false when the key is absent or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// IncrWithExpire increments key (absent counts as zero) and resets its
	// TTL in one round trip, returning the new value.
	IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// MailSender delivers a rendered-by-template mail. data carries the template
// variables.
type MailSender interface {
	Send(ctx context.Context, to, subject, templateID string, data map[string]interface{}) error
}
