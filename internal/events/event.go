// Package events records OTP security events for analytics and audit.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"otp-guard/internal/bucketing"
)

type EventType string

const (
	EventOTPIssued     EventType = "otp_issued"
	EventOTPDenied     EventType = "otp_denied"
	EventOTPVerified   EventType = "otp_verified"
	EventOTPIncorrect  EventType = "otp_incorrect"
	EventOTPExpired    EventType = "otp_expired"
	EventAccountLocked EventType = "account_locked"
	EventSpamLocked    EventType = "spam_locked"
	EventDeliveryFail  EventType = "otp_delivery_failed"
	EventLocksCleared  EventType = "locks_cleared"
)

type SecurityEvent struct {
	EventID     string            `json:"event_id"`
	EventBucket int               `json:"event_bucket"`
	EventDate   string            `json:"event_date"`
	Identity    string            `json:"identity"`
	EventType   EventType         `json:"event_type"`
	Purpose     string            `json:"purpose,omitempty"`
	EventTime   time.Time         `json:"event_time"`
	Details     map[string]string `json:"details,omitempty"`
}

// Recorder persists security events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, event SecurityEvent) error
}

// DefaultHistoryLimit caps history reads that do not ask for a size.
const DefaultHistoryLimit = 50

// HistoryReader returns an identity's most recent events, newest first.
type HistoryReader interface {
	Recent(ctx context.Context, identity string, limit int) ([]SecurityEvent, error)
}

// Factory stamps events with an ID, time and bucket.
type Factory struct {
	buckets *bucketing.BucketingManager
	now     func() time.Time
}

func NewFactory(buckets *bucketing.BucketingManager) *Factory {
	return &Factory{buckets: buckets, now: time.Now}
}

func (f *Factory) New(identity string, eventType EventType, purpose string, details map[string]string) SecurityEvent {
	now := f.now().UTC()
	return SecurityEvent{
		EventID:     uuid.NewString(),
		EventBucket: f.buckets.GetEventBucket(identity),
		EventDate:   f.buckets.GetDateBucket(now),
		Identity:    identity,
		EventType:   eventType,
		Purpose:     purpose,
		EventTime:   now,
		Details:     details,
	}
}
