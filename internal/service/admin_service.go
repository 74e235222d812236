package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"otp-guard/internal/events"
	redisrepo "otp-guard/internal/repository/redis"
	"otp-guard/internal/util"
)

var ErrHistoryUnavailable = errors.New("security event history is not configured")

// AdminService gives operators a view into, and an escape hatch from, an
// identity's OTP state.
type AdminService struct {
	cache    *redisrepo.OTPCache
	recorder events.Recorder
	events   *events.Factory
	history  events.HistoryReader
	logger   *zap.Logger
}

func NewAdminService(cache *redisrepo.OTPCache, recorder events.Recorder, eventFactory *events.Factory, logger *zap.Logger) *AdminService {
	if recorder == nil {
		recorder = events.NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{cache: cache, recorder: recorder, events: eventFactory, logger: logger}
}

func (s *AdminService) Inspect(ctx context.Context, email string) (*redisrepo.Snapshot, error) {
	return s.cache.Snapshot(ctx, util.NormalizeEmail(email))
}

func (s *AdminService) Unlock(ctx context.Context, email string) error {
	email = util.NormalizeEmail(email)
	if err := s.cache.ClearRestrictions(ctx, email); err != nil {
		return err
	}

	if s.events != nil {
		event := s.events.New(email, events.EventLocksCleared, "", nil)
		if err := s.recorder.Record(context.WithoutCancel(ctx), event); err != nil {
			s.logger.Warn("failed to record security event", zap.String("event_type", string(event.EventType)), zap.Error(err))
		}
	}
	return nil
}

func (s *AdminService) Stats(ctx context.Context) (*redisrepo.Stats, error) {
	return s.cache.Stats(ctx)
}

// History returns the identity's latest security events, newest first.
func (s *AdminService) History(ctx context.Context, email string, limit int) ([]events.SecurityEvent, error) {
	if s.history == nil {
		return nil, ErrHistoryUnavailable
	}
	return s.history.Recent(ctx, util.NormalizeEmail(email), limit)
}
