package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"otp-guard/internal/events"
	"otp-guard/internal/metrics"
	"otp-guard/internal/otp"
	"otp-guard/internal/util"
)

var ErrUnknownPurpose = errors.New("unknown otp purpose")

// Purpose names the flow an OTP belongs to. Each purpose mails a different
// template.
type Purpose string

const (
	PurposeUserRegistration     Purpose = "user-registration"
	PurposeSellerRegistration   Purpose = "seller-registration"
	PurposeUserForgotPassword   Purpose = "user-forgot-password"
	PurposeSellerForgotPassword Purpose = "seller-forgot-password"
)

var purposeTemplates = map[Purpose]string{
	PurposeUserRegistration:     "user-activation-mail",
	PurposeSellerRegistration:   "seller-activation-mail",
	PurposeUserForgotPassword:   "forgot-password-user-mail",
	PurposeSellerForgotPassword: "forgot-password-seller-mail",
}

// Template returns the mail template for p.
func (p Purpose) Template() (string, error) {
	tpl, ok := purposeTemplates[p]
	if !ok {
		return "", ErrUnknownPurpose
	}
	return tpl, nil
}

const eventTimeout = 2 * time.Second

// AuthService sequences the guard for each OTP flow and reports what happened
// to metrics and the security event sinks.
type AuthService struct {
	guard    *otp.Guard
	recorder events.Recorder
	events   *events.Factory
	logger   *zap.Logger
}

func NewAuthService(guard *otp.Guard, recorder events.Recorder, eventFactory *events.Factory, logger *zap.Logger) *AuthService {
	if recorder == nil {
		recorder = events.NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		guard:    guard,
		recorder: recorder,
		events:   eventFactory,
		logger:   logger,
	}
}

// RequestOTP gates, counts and issues a code for email. name is used in the
// mail greeting and defaults to the email's local part.
func (s *AuthService) RequestOTP(ctx context.Context, purpose Purpose, name, email string) error {
	defer metrics.ObserveDuration("request", time.Now())

	template, err := purpose.Template()
	if err != nil {
		return err
	}
	email = util.NormalizeEmail(email)
	if name = strings.TrimSpace(name); name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	if err := s.guard.CheckRestriction(ctx, email); err != nil {
		return s.requestFailed(ctx, purpose, email, err)
	}
	if err := s.guard.TrackRequest(ctx, email); err != nil {
		return s.requestFailed(ctx, purpose, email, err)
	}
	if err := s.guard.IssueOTP(ctx, name, email, template); err != nil {
		return s.requestFailed(ctx, purpose, email, err)
	}

	metrics.RecordRequest(string(purpose), "issued")
	s.record(ctx, email, events.EventOTPIssued, purpose, map[string]string{"template": template})
	return nil
}

func (s *AuthService) requestFailed(ctx context.Context, purpose Purpose, email string, err error) error {
	switch {
	case errors.Is(err, otp.ErrLockActive):
		reason := denialReason(err)
		metrics.RecordRequest(string(purpose), "denied")
		metrics.RecordDenial(reason)
		s.record(ctx, email, events.EventOTPDenied, purpose, map[string]string{"reason": reason})
	case errors.Is(err, otp.ErrSpamThresholdExceeded):
		metrics.RecordRequest(string(purpose), "denied")
		metrics.RecordDenial("spam_threshold")
		s.record(ctx, email, events.EventSpamLocked, purpose, nil)
	case errors.Is(err, otp.ErrDeliveryFailed):
		metrics.RecordRequest(string(purpose), "delivery_failed")
		s.record(ctx, email, events.EventDeliveryFail, purpose, nil)
	default:
		metrics.RecordRequest(string(purpose), "error")
		s.logger.Error("OTP request failed", util.Identity(email), zap.Error(err))
	}
	return err
}

// VerifyOTP checks code for email.
func (s *AuthService) VerifyOTP(ctx context.Context, purpose Purpose, email, code string) error {
	defer metrics.ObserveDuration("verify", time.Now())

	if _, err := purpose.Template(); err != nil {
		return err
	}
	email = util.NormalizeEmail(email)

	err := s.guard.VerifyOTP(ctx, email, strings.TrimSpace(code))

	var verr *otp.ValidationError
	switch {
	case err == nil:
		metrics.RecordVerification(string(purpose), "success")
		s.record(ctx, email, events.EventOTPVerified, purpose, nil)
	case errors.Is(err, otp.ErrCodeIncorrect) && errors.As(err, &verr):
		metrics.RecordVerification(string(purpose), "incorrect")
		s.record(ctx, email, events.EventOTPIncorrect, purpose,
			map[string]string{"attempts_left": strconv.Itoa(verr.AttemptsLeft)})
	case errors.Is(err, otp.ErrCodeExpired):
		metrics.RecordVerification(string(purpose), "expired")
		s.record(ctx, email, events.EventOTPExpired, purpose, nil)
	case errors.Is(err, otp.ErrAttemptsExhausted):
		metrics.RecordVerification(string(purpose), "locked")
		s.record(ctx, email, events.EventAccountLocked, purpose, nil)
	default:
		metrics.RecordVerification(string(purpose), "error")
		s.logger.Error("OTP verification failed", util.Identity(email), zap.Error(err))
	}
	return err
}

// record never fails the caller; a lost event is logged and counted.
func (s *AuthService) record(ctx context.Context, email string, eventType events.EventType, purpose Purpose, details map[string]string) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	event := s.events.New(email, eventType, string(purpose), details)
	if err := s.recorder.Record(ctx, event); err != nil {
		metrics.SecurityEventFailures.Inc()
		s.logger.Warn("failed to record security event",
			zap.String("event_type", string(eventType)),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
}

func denialReason(err error) string {
	switch {
	case errors.Is(err, otp.ErrLocked):
		return "locked"
	case errors.Is(err, otp.ErrSpamLock):
		return "spam_lock"
	case errors.Is(err, otp.ErrCooldown):
		return "cooldown"
	default:
		return "unknown"
	}
}
